package db

import "time"

const (
	NotifyScheduleStart    = "schedule_start"
	NotifyScheduleReminder = "schedule_reminder"
	NotifyScheduleResult   = "schedule_result"
	NotifyConfirmStart     = "confirm_start"
	NotifyConfirmReminder  = "confirm_reminder"
	NotifyDateConfirmed    = "date_confirmed"
	NotifySuggestion       = "suggestion"
)

// NotificationLog 只追加不修改，用作通知幂等的依据。
// 愿望相关通知按 (wish_id, notification_type, dedupe_key) 去重；
// suggestion 没有 wish_id，按 group 最近一次 sent_at 控制间隔。
type NotificationLog struct {
	Model
	GroupID          string    `gorm:"size:36;not null;index:idx_notification_group_type"`
	WishID           *string   `gorm:"size:36;index:idx_notification_wish_type"`
	NotificationType string    `gorm:"size:32;not null;index:idx_notification_group_type;index:idx_notification_wish_type"`
	DedupeKey        string    `gorm:"size:64;not null;default:''"`
	SentAt           time.Time `gorm:"not null;index"`
}
