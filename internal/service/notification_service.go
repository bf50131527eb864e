package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/asobot/internal/db"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dispatcher 把文本消息推送到 LINE 群组，实现见 internal/line。
type Dispatcher interface {
	Push(ctx context.Context, to, text string) error
}

// NotifyStatus 是一次发送尝试的结果。
type NotifyStatus string

const (
	NotifySent             NotifyStatus = "sent"
	NotifySkippedDisabled  NotifyStatus = "skipped_disabled"
	NotifySkippedDuplicate NotifyStatus = "skipped_duplicate"
	NotifyFailed           NotifyStatus = "failed"
)

// Notification 描述一条待发送的群组通知。WishID 为空时不做愿望级去重。
// Render 按群组语言生成正文。
type Notification struct {
	GroupID   string
	WishID    string
	Type      string
	DedupeKey string
	Render    func(language string) string
}

// NotificationService 负责开关判断、去重、推送与写日志。
type NotificationService struct {
	db         *gorm.DB
	settings   *GroupSettingService
	groups     *GroupService
	dispatcher Dispatcher
	liffID     string
	timeout    time.Duration
	now        func() time.Time
	pick       func(int) int
	logger     zerolog.Logger
}

func NewNotificationService(gdb *gorm.DB, settings *GroupSettingService, groups *GroupService, dispatcher Dispatcher) *NotificationService {
	return &NotificationService{
		db:         gdb,
		settings:   settings,
		groups:     groups,
		dispatcher: dispatcher,
		timeout:    10 * time.Second,
		now:        time.Now,
		pick:       rand.Intn,
		logger:     zerolog.Nop(),
	}
}

func (s *NotificationService) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

func (s *NotificationService) SetLIFFID(liffID string) {
	s.liffID = strings.TrimSpace(liffID)
}

func (s *NotificationService) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.timeout = timeout
	}
}

// SetClock 替换当前时间来源，测试使用。
func (s *NotificationService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetPicker 替换消息措辞的随机选择。
func (s *NotificationService) SetPicker(pick func(int) int) {
	if pick != nil {
		s.pick = pick
	}
}

// Pick 返回 [0,n) 中的一个下标。
func (s *NotificationService) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return s.pick(n)
}

// Link 生成 LIFF 深链，path 以 / 开头，query 可为空。
func (s *NotificationService) Link(path string, query url.Values) string {
	link := "https://liff.line.me/" + s.liffID + path
	if len(query) > 0 {
		link += "?" + query.Encode()
	}
	return link
}

// WishLink 生成指向某个愿望页面的深链。
func (s *NotificationService) WishLink(groupID, wishID, suffix string) string {
	return s.Link("/wishes/"+wishID+suffix, url.Values{"groupId": {groupID}})
}

// enabled 判断群组配置是否允许该类型的通知。
func enabled(setting *db.GroupSetting, notificationType string) bool {
	switch notificationType {
	case db.NotifyScheduleStart, db.NotifyConfirmStart:
		return setting.NotifyScheduleStart
	case db.NotifyScheduleReminder, db.NotifyConfirmReminder:
		return setting.NotifyReminder
	case db.NotifyDateConfirmed, db.NotifyScheduleResult:
		return setting.NotifyConfirmed
	case db.NotifySuggestion:
		return setting.SuggestEnabled
	default:
		return true
	}
}

// AlreadySent 判断某个愿望的通知是否已经记录过。
func (s *NotificationService) AlreadySent(wishID, notificationType, dedupeKey string) (bool, error) {
	var count int64
	err := s.db.Model(&db.NotificationLog{}).
		Where("wish_id = ? AND notification_type = ? AND dedupe_key = ?", wishID, notificationType, dedupeKey).
		Count(&count).Error
	if err != nil {
		return false, dependency("check notification log", err)
	}
	return count > 0, nil
}

// LastSent 返回群组某类型通知最近一次发送时间。
func (s *NotificationService) LastSent(groupID, notificationType string) (*time.Time, error) {
	var entry db.NotificationLog
	err := s.db.Where("group_id = ? AND notification_type = ?", groupID, notificationType).
		Order("sent_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dependency("find last notification", err)
	}
	sent := entry.SentAt.UTC()
	return &sent, nil
}

// Send 发送一条通知。被配置关闭或重复的通知返回 skipped 且 error 为 nil；
// 推送或日志写入失败返回 NotifyFailed 与 ErrDependency。
func (s *NotificationService) Send(ctx context.Context, n Notification) (NotifyStatus, error) {
	group, err := s.groups.Get(n.GroupID)
	if err != nil {
		return NotifyFailed, err
	}
	if strings.TrimSpace(group.LineGroupID) == "" {
		return NotifyFailed, fmt.Errorf("%w: group %s has no line group id", ErrDependency, group.ID)
	}

	setting, err := s.settings.Get(n.GroupID)
	if err != nil {
		return NotifyFailed, err
	}
	if !enabled(setting, n.Type) {
		return NotifySkippedDisabled, nil
	}

	if n.WishID != "" {
		sent, err := s.AlreadySent(n.WishID, n.Type, n.DedupeKey)
		if err != nil {
			return NotifyFailed, err
		}
		if sent {
			s.logger.Debug().Str("wish_id", n.WishID).Str("type", n.Type).Msg("notification already sent")
			return NotifySkippedDuplicate, nil
		}
	}

	text := ""
	if n.Render != nil {
		text = n.Render(setting.Language)
	}

	pushCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.dispatcher.Push(pushCtx, group.LineGroupID, text); err != nil {
		return NotifyFailed, dependency("push notification", err)
	}

	now := s.now().UTC()
	entry := db.NotificationLog{
		GroupID:          n.GroupID,
		NotificationType: n.Type,
		DedupeKey:        n.DedupeKey,
		SentAt:           now,
	}
	if n.WishID != "" {
		wishID := n.WishID
		entry.WishID = &wishID
	}
	if err := s.db.Create(&entry).Error; err != nil {
		return NotifyFailed, dependency("record notification", err)
	}

	if err := s.groups.TouchActivity(n.GroupID, now); err != nil {
		s.logger.Warn().Err(err).Str("group_id", n.GroupID).Msg("touch group activity failed")
	}

	s.logger.Info().Str("group_id", n.GroupID).Str("wish_id", n.WishID).Str("type", n.Type).Msg("notification sent")
	return NotifySent, nil
}

// candidateSetKey 对排序后的候选日期取哈希，用于区分不同的投票轮次。
func candidateSetKey(dates []time.Time) string {
	formatted := make([]string, 0, len(dates))
	for _, d := range dates {
		formatted = append(formatted, d.UTC().Format("2006-01-02"))
	}
	sort.Strings(formatted)
	sum := sha256.Sum256([]byte(strings.Join(formatted, ",")))
	return hex.EncodeToString(sum[:16])
}
