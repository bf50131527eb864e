package locale

// Pick returns the text matching the group language, defaulting to Japanese.
func Pick(language, english, japanese string) string {
	if Resolve(language) == LanguageEnglish {
		if english != "" {
			return english
		}
		return japanese
	}
	if japanese != "" {
		return japanese
	}
	return english
}
