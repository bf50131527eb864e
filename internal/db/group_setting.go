package db

// GroupSetting 存储群组的通知与提案配置，首次读取时按默认值创建。
type GroupSetting struct {
	Model
	GroupID             string `gorm:"size:36;not null;uniqueIndex"`
	NotifyScheduleStart bool
	NotifyReminder      bool
	NotifyConfirmed     bool
	SuggestEnabled      bool `gorm:"index"`
	SuggestIntervalDays int
	SuggestMinInterests int
	Language            string `gorm:"size:8"`
}

// TableName 自定义表名以保持命名一致。
func (GroupSetting) TableName() string {
	return "group_settings"
}

// DefaultGroupSetting 返回新群组的默认配置。
func DefaultGroupSetting(groupID string) GroupSetting {
	return GroupSetting{
		GroupID:             groupID,
		NotifyScheduleStart: true,
		NotifyReminder:      true,
		NotifyConfirmed:     true,
		SuggestEnabled:      true,
		SuggestIntervalDays: 14,
		SuggestMinInterests: 2,
		Language:            "ja",
	}
}
