package locale

import "strings"

const (
	LanguageJapanese = "ja"
	LanguageEnglish  = "en"
)

// NormalizeLanguage 将 ja-JP、EN_us 等写法归一为支持的语言代码，无法识别时返回空字符串。
func NormalizeLanguage(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "ja") || trimmed == "jp" {
		return LanguageJapanese
	}
	if strings.HasPrefix(trimmed, "en") {
		return LanguageEnglish
	}
	return ""
}

// LanguageFromAcceptLanguage 从 Accept-Language 头粗略判断语言。
func LanguageFromAcceptLanguage(header string) string {
	trimmed := strings.ToLower(strings.TrimSpace(header))
	if trimmed == "" {
		return ""
	}
	jaIdx := strings.Index(trimmed, "ja")
	enIdx := strings.Index(trimmed, "en")
	switch {
	case jaIdx >= 0 && (enIdx < 0 || jaIdx < enIdx):
		return LanguageJapanese
	case enIdx >= 0:
		return LanguageEnglish
	}
	return ""
}

// Resolve 返回可用的语言代码，默认日语。
func Resolve(language string) string {
	if NormalizeLanguage(language) == LanguageEnglish {
		return LanguageEnglish
	}
	return LanguageJapanese
}
