package service

import (
	"errors"
	"strings"

	"github.com/asobot/internal/db"
	"github.com/asobot/internal/locale"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupSettingService 读写群组通知配置，首次读取时写入默认值。
type GroupSettingService struct {
	db *gorm.DB
}

// GroupSettingPatch 只更新非 nil 的字段。
type GroupSettingPatch struct {
	NotifyScheduleStart *bool
	NotifyReminder      *bool
	NotifyConfirmed     *bool
	SuggestEnabled      *bool
	SuggestIntervalDays *int    `validate:"omitempty,min=1,max=365"`
	SuggestMinInterests *int    `validate:"omitempty,min=1,max=50"`
	Language            *string `validate:"omitempty,oneof=ja en"`
}

func NewGroupSettingService(gdb *gorm.DB) *GroupSettingService {
	return &GroupSettingService{db: gdb}
}

// Get 返回群组配置，不存在时按默认值创建。
func (s *GroupSettingService) Get(groupID string) (*db.GroupSetting, error) {
	return s.Seed(groupID, "")
}

// Seed 与 Get 相同，但首次创建时使用给定语言；已有配置不会被修改。
func (s *GroupSettingService) Seed(groupID, language string) (*db.GroupSetting, error) {
	var setting db.GroupSetting
	err := s.db.Where("group_id = ?", groupID).First(&setting).Error
	if err == nil {
		return &setting, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dependency("get group setting", err)
	}

	defaults := db.DefaultGroupSetting(groupID)
	if lang := locale.NormalizeLanguage(language); lang != "" {
		defaults.Language = lang
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}},
		DoNothing: true,
	}).Create(&defaults).Error
	if err != nil {
		return nil, dependency("create group setting", err)
	}

	if err := s.db.Where("group_id = ?", groupID).First(&setting).Error; err != nil {
		return nil, dependency("reload group setting", err)
	}
	return &setting, nil
}

// Update 合并补丁并保存。
func (s *GroupSettingService) Update(groupID string, patch GroupSettingPatch) (*db.GroupSetting, error) {
	if patch.Language != nil {
		lang := strings.ToLower(strings.TrimSpace(*patch.Language))
		patch.Language = &lang
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	setting, err := s.Get(groupID)
	if err != nil {
		return nil, err
	}

	if patch.NotifyScheduleStart != nil {
		setting.NotifyScheduleStart = *patch.NotifyScheduleStart
	}
	if patch.NotifyReminder != nil {
		setting.NotifyReminder = *patch.NotifyReminder
	}
	if patch.NotifyConfirmed != nil {
		setting.NotifyConfirmed = *patch.NotifyConfirmed
	}
	if patch.SuggestEnabled != nil {
		setting.SuggestEnabled = *patch.SuggestEnabled
	}
	if patch.SuggestIntervalDays != nil {
		setting.SuggestIntervalDays = *patch.SuggestIntervalDays
	}
	if patch.SuggestMinInterests != nil {
		setting.SuggestMinInterests = *patch.SuggestMinInterests
	}
	if patch.Language != nil {
		setting.Language = locale.Resolve(*patch.Language)
	}

	if err := s.db.Save(setting).Error; err != nil {
		return nil, dependency("update group setting", err)
	}
	return setting, nil
}
