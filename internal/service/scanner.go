package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/asobot/internal/db"
	"github.com/asobot/internal/locale"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	scheduleReminderWindowDays = 3
	confirmReminderWindowDays  = 1
	suggestionTopN             = 3
	suggestionFloor            = 2
)

// ItemResult 是一次扫描中单个愿望或群组的处理结果。
type ItemResult struct {
	Kind     string       `json:"kind"`
	GroupID  string       `json:"groupId"`
	WishID   string       `json:"wishId,omitempty"`
	Title    string       `json:"title,omitempty"`
	DaysLeft int          `json:"daysLeft,omitempty"`
	Count    int          `json:"count,omitempty"`
	Status   NotifyStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
}

// ScanReport 汇总一次扫描的全部结果。
type ScanReport struct {
	StartedAt time.Time    `json:"timestamp"`
	Items     []ItemResult `json:"items"`
}

func (r *ScanReport) add(item ItemResult) {
	r.Items = append(r.Items, item)
}

// Reminders 返回已发送的提醒摘要。
func (r ScanReport) Reminders() []string {
	lines := make([]string, 0)
	for _, item := range r.Items {
		if item.Status != NotifySent || item.Kind == db.NotifySuggestion {
			continue
		}
		prefix := "schedule"
		if item.Kind == db.NotifyConfirmReminder {
			prefix = "confirm"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", prefix, item.Title))
	}
	return lines
}

// Suggestions 返回已发送的提案摘要。
func (r ScanReport) Suggestions() []string {
	lines := make([]string, 0)
	for _, item := range r.Items {
		if item.Status != NotifySent || item.Kind != db.NotifySuggestion {
			continue
		}
		if item.Count == 0 {
			lines = append(lines, fmt.Sprintf("%s: no candidates", item.GroupID))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %d wishes", item.GroupID, item.Count))
	}
	return lines
}

// Failed 返回失败的条目数。
func (r ScanReport) Failed() int {
	failed := 0
	for _, item := range r.Items {
		if item.Status == NotifyFailed {
			failed++
		}
	}
	return failed
}

// Scanner 每天运行一次：截止提醒与主动提案。
// 重复运行的幂等性完全依赖通知日志。
type Scanner struct {
	db        *gorm.DB
	notifier  *NotificationService
	settings  *GroupSettingService
	groups    *GroupService
	members   MembershipProvider
	interests *InterestService
	location  *time.Location
	logger    zerolog.Logger
}

func NewScanner(gdb *gorm.DB, notifier *NotificationService, settings *GroupSettingService, groups *GroupService, members MembershipProvider, interests *InterestService) *Scanner {
	return &Scanner{
		db:        gdb,
		notifier:  notifier,
		settings:  settings,
		groups:    groups,
		members:   members,
		interests: interests,
		location:  time.UTC,
		logger:    zerolog.Nop(),
	}
}

func (s *Scanner) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// SetLocation 设置计算“当天结束”所用的时区。
func (s *Scanner) SetLocation(loc *time.Location) {
	if loc != nil {
		s.location = loc
	}
}

// endOfDay 返回 now 之后第 days 天在配置时区的 23:59:59.999。
func (s *Scanner) endOfDay(now time.Time, days int) time.Time {
	local := now.In(s.location).AddDate(0, 0, days)
	y, m, d := local.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Millisecond*999), s.location).UTC()
}

// daysLeft 向上取整的剩余天数。
func daysLeft(deadline, now time.Time) int {
	diff := deadline.Sub(now)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// MinInterests 取配置值、2 与成员数 30%（向上取整）中的最大值。
func MinInterests(configured, memberCount int) int {
	threshold := max(configured, suggestionFloor)
	return max(threshold, (memberCount*3+9)/10)
}

// Run 执行一次扫描。单个条目的失败记录在报告中并继续处理；
// 只有查询本身失败时返回 error。
func (s *Scanner) Run(ctx context.Context, now time.Time) (ScanReport, error) {
	now = now.UTC()
	report := ScanReport{StartedAt: now, Items: make([]ItemResult, 0)}

	if err := s.scheduleReminders(ctx, now, &report); err != nil {
		return report, err
	}
	if err := s.confirmReminders(ctx, now, &report); err != nil {
		return report, err
	}
	if err := s.suggestions(ctx, now, &report); err != nil {
		return report, err
	}

	s.logger.Info().
		Int("items", len(report.Items)).
		Int("failed", report.Failed()).
		Msg("scan finished")
	return report, nil
}

func (s *Scanner) scheduleReminders(ctx context.Context, now time.Time, report *ScanReport) error {
	var wishes []db.Wish
	err := s.db.Where("status = ? AND start_date IS NULL AND vote_deadline IS NOT NULL", db.WishStatusVoting).
		Where("vote_deadline >= ? AND vote_deadline <= ?", now, s.endOfDay(now, scheduleReminderWindowDays)).
		Order("vote_deadline ASC").
		Find(&wishes).Error
	if err != nil {
		return dependency("list schedule reminder wishes", err)
	}

	for _, wish := range wishes {
		if err := ctx.Err(); err != nil {
			return err
		}
		left := daysLeft(*wish.VoteDeadline, now)
		s.remind(ctx, wish, db.NotifyScheduleReminder, locale.ReminderSchedule, left, "/schedule/vote", report)
	}
	return nil
}

func (s *Scanner) confirmReminders(ctx context.Context, now time.Time, report *ScanReport) error {
	var wishes []db.Wish
	err := s.db.Where("voting_started = ? AND start_date IS NOT NULL AND vote_deadline IS NOT NULL AND status <> ?", true, db.WishStatusConfirmed).
		Where("vote_deadline >= ? AND vote_deadline <= ?", now, s.endOfDay(now, confirmReminderWindowDays)).
		Order("vote_deadline ASC").
		Find(&wishes).Error
	if err != nil {
		return dependency("list confirm reminder wishes", err)
	}

	for _, wish := range wishes {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.remind(ctx, wish, db.NotifyConfirmReminder, locale.ReminderConfirm, 1, "/confirm", report)
	}
	return nil
}

func (s *Scanner) remind(ctx context.Context, wish db.Wish, notificationType string, kind locale.ReminderKind, left int, suffix string, report *ScanReport) {
	item := ItemResult{
		Kind:     notificationType,
		GroupID:  wish.GroupID,
		WishID:   wish.ID,
		Title:    wish.Title,
		DaysLeft: left,
	}

	sent, err := s.notifier.AlreadySent(wish.ID, notificationType, "")
	if err != nil {
		s.fail(&item, err)
		report.add(item)
		return
	}
	if sent {
		item.Status = NotifySkippedDuplicate
		report.add(item)
		return
	}

	link := s.notifier.WishLink(wish.GroupID, wish.ID, suffix)
	title := wish.Title
	status, err := s.notifier.Send(ctx, Notification{
		GroupID: wish.GroupID,
		WishID:  wish.ID,
		Type:    notificationType,
		Render: func(language string) string {
			return locale.Reminder(language, title, left, kind, link)
		},
	})
	if err != nil {
		s.fail(&item, err)
	} else {
		item.Status = status
	}
	report.add(item)
}

func (s *Scanner) suggestions(ctx context.Context, now time.Time, report *ScanReport) error {
	groups, err := s.groups.List()
	if err != nil {
		return err
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.suggest(ctx, group, now, report)
	}
	return nil
}

func (s *Scanner) suggest(ctx context.Context, group db.Group, now time.Time, report *ScanReport) {
	item := ItemResult{Kind: db.NotifySuggestion, GroupID: group.ID}

	setting, err := s.settings.Get(group.ID)
	if err != nil {
		s.fail(&item, err)
		report.add(item)
		return
	}
	if !setting.SuggestEnabled {
		return
	}

	last, err := s.notifier.LastSent(group.ID, db.NotifySuggestion)
	if err != nil {
		s.fail(&item, err)
		report.add(item)
		return
	}
	interval := time.Duration(setting.SuggestIntervalDays) * 24 * time.Hour
	if last != nil && now.Sub(*last) < interval {
		return
	}

	count, err := s.members.MemberCount(group.ID)
	if err != nil {
		s.fail(&item, err)
		report.add(item)
		return
	}

	popular, err := s.interests.PopularForGroup(group.ID, MinInterests(setting.SuggestMinInterests, count), suggestionTopN)
	if err != nil {
		s.fail(&item, err)
		report.add(item)
		return
	}
	item.Count = len(popular)

	lines := make([]locale.Suggestion, 0, len(popular))
	for _, p := range popular {
		lines = append(lines, locale.Suggestion{Title: p.Wish.Title, InterestCount: p.Count})
	}
	link := s.notifier.Link("/wishes", url.Values{"groupId": {group.ID}})

	status, err := s.notifier.Send(ctx, Notification{
		GroupID: group.ID,
		Type:    db.NotifySuggestion,
		Render: func(language string) string {
			if len(lines) == 0 {
				return locale.SuggestionEmpty(language, link, s.notifier.Pick)
			}
			return locale.SuggestionList(language, lines, link, s.notifier.Pick)
		},
	})
	if err != nil {
		s.fail(&item, err)
	} else {
		item.Status = status
	}
	report.add(item)
}

func (s *Scanner) fail(item *ItemResult, err error) {
	item.Status = NotifyFailed
	item.Error = err.Error()
	s.logger.Error().Err(err).
		Str("kind", item.Kind).
		Str("group_id", item.GroupID).
		Str("wish_id", item.WishID).
		Msg("scan item failed")
}
