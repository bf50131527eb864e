package locale

import (
	"fmt"
	"strings"
	"time"
)

const (
	signatureJA = "🎩 あそボット より"
	signatureEN = "🎩 From Asobot"
)

// ReminderKind 区分日程投票与参加确认的提醒。
type ReminderKind string

const (
	ReminderSchedule ReminderKind = "schedule"
	ReminderConfirm  ReminderKind = "confirm"
)

// Suggestion 是提案消息中的一行。
type Suggestion struct {
	Title         string
	InterestCount int
}

var weekdaysJA = [...]string{"日", "月", "火", "水", "木", "金", "土"}

// FormatDate 按语言输出用于消息正文的日期。
func FormatDate(language string, t time.Time) string {
	if Resolve(language) == LanguageEnglish {
		return t.Format("Mon, Jan 2 2006")
	}
	return fmt.Sprintf("%d年%d月%d日(%s)", t.Year(), int(t.Month()), t.Day(), weekdaysJA[t.Weekday()])
}

func compose(language string, lines ...string) string {
	signature := Pick(language, signatureEN, signatureJA)
	body := strings.Join(lines, "\n\n")
	return signature + "\n\n" + strings.TrimSpace(body)
}

func answerLink(language, link string) string {
	if strings.TrimSpace(link) == "" {
		return ""
	}
	return Pick(language, "▼ Answer here", "▼ 回答はこちら") + "\n" + link
}

// ScheduleStart 日程投票开始。
func ScheduleStart(language, title, link string) string {
	return compose(language,
		Pick(language,
			fmt.Sprintf("📋 Date polling for \"%s\" has started.", title),
			fmt.Sprintf("📋「%s」の日程調整が始まりました。", title)),
		Pick(language, "Please let us know which days work for you.", "ご都合をお聞かせください。"),
		answerLink(language, link),
	)
}

// ConfirmStart 参加确认开始。
func ConfirmStart(language, title string, date time.Time, link string) string {
	return compose(language,
		Pick(language,
			fmt.Sprintf("📋 Attendance check for \"%s\" has started.", title),
			fmt.Sprintf("📋「%s」の参加確認が始まりました。", title)),
		"📅 "+FormatDate(language, date),
		Pick(language, "Will you join?", "ご都合をお聞かせください。"),
		answerLink(language, link),
	)
}

// Reminder 截止提醒；daysLeft 为 1 时使用“明天截止”的措辞。
func Reminder(language, title string, daysLeft int, kind ReminderKind, link string) string {
	var headline string
	if Resolve(language) == LanguageEnglish {
		label := "date poll"
		if kind == ReminderConfirm {
			label = "attendance check"
		}
		urgency := fmt.Sprintf("closes in %d days", daysLeft)
		if daysLeft <= 1 {
			urgency = "closes tomorrow"
		}
		headline = fmt.Sprintf("⏰ The %s for \"%s\" %s.", label, title, urgency)
	} else {
		label := "日程調整"
		if kind == ReminderConfirm {
			label = "参加確認"
		}
		urgency := fmt.Sprintf("あと%d日", daysLeft)
		if daysLeft <= 1 {
			urgency = "明日が締め切り"
		}
		headline = fmt.Sprintf("⏰「%s」の%s、%sでございます。", title, label, urgency)
	}

	return compose(language,
		headline,
		Pick(language, "If you have not answered yet, please do so soon.", "まだの方はお早めにご回答を。"),
		answerLink(language, link),
	)
}

// DateConfirmed 日期确定。
func DateConfirmed(language, title string, date time.Time) string {
	return compose(language,
		Pick(language,
			fmt.Sprintf("📅 The date for \"%s\" is set.", title),
			fmt.Sprintf("📅「%s」の日程が決まりました。", title)),
		FormatDate(language, date),
		Pick(language, "Looking forward to seeing everyone there.", "皆様のご参加、お待ちしております。"),
	)
}

var suggestionIntrosJA = []string{
	"皆様にご報告がございます。\n人気の行きたい場所をお届けいたします。",
	"おや、盛り上がっているようですね。",
	"「行きたい」と思っている方、\n実はこんなにいらっしゃいます。",
	"お出かけの機運、高まっております。",
}

var suggestionOutrosJA = []string{
	"ご興味がございましたら、日程調整を始めてみては。",
	"そろそろ日程を決めてみませんか？",
	"誰かが声をあげれば、予定は動き出すもの。\n幹事役、いかがでしょう？",
	"カレンダーを眺める前に、まずは日程調整を。",
}

var suggestionIntrosEN = []string{
	"Here are the most wanted plans in this group.",
	"Looks like a few ideas are getting popular.",
	"More people want to go than you might think.",
}

var suggestionOutrosEN = []string{
	"Why not start a date poll for one of them?",
	"Someone just needs to take the lead.",
	"Pick a date before the season is over.",
}

// SuggestionList 人气愿望提案；pick(n) 返回 [0,n) 的下标，用于随机挑选措辞。
func SuggestionList(language string, items []Suggestion, link string, pick func(int) int) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, Pick(language,
			fmt.Sprintf("・\"%s\" %d interested", item.Title, item.InterestCount),
			fmt.Sprintf("・「%s」%d人が興味あり", item.Title, item.InterestCount)))
	}

	intros, outros := suggestionIntrosJA, suggestionOutrosJA
	if Resolve(language) == LanguageEnglish {
		intros, outros = suggestionIntrosEN, suggestionOutrosEN
	}

	return compose(language,
		intros[choose(pick, len(intros))],
		strings.Join(lines, "\n"),
		outros[choose(pick, len(outros))],
		answerLink(language, link),
	)
}

var emptySuggestionsJA = []string{
	"本日のおすすめをお届けしようと思いましたが、\nまだ「行きたい場所」が集まっておりません。\nぜひ皆様の「行きたい！」をお聞かせください。",
	"おすすめをお届けしたかったのですが、\n「行きたい場所」がまだ空でございます。\n思い立った時にぜひご提案を。",
	"気づけば「また今度ね」が続いておりませんか？\nまずは一つ、リストに追加してみませんか。",
	"リストが静かでございます。\n「行きたい場所」をお聞かせいただけませんか。",
}

var emptySuggestionsEN = []string{
	"I wanted to share some popular plans, but the list is still empty.\nAdd a place you want to go!",
	"No plans have gathered enough interest yet.\nWhy not add one today?",
}

// SuggestionEmpty 没有达到门槛的愿望时的提醒。
func SuggestionEmpty(language, link string, pick func(int) int) string {
	texts := emptySuggestionsJA
	if Resolve(language) == LanguageEnglish {
		texts = emptySuggestionsEN
	}
	return compose(language,
		texts[choose(pick, len(texts))],
		strings.TrimSpace(strings.Replace(answerLink(language, link), "▼ 回答はこちら", "▼ リストはこちら", 1)),
	)
}

func choose(pick func(int) int, n int) int {
	if pick == nil || n <= 1 {
		return 0
	}
	idx := pick(n)
	if idx < 0 || idx >= n {
		return 0
	}
	return idx
}
