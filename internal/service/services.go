package service

import (
	"time"

	"github.com/asobot/internal/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Options 汇总组装服务时需要的运行参数。
type Options struct {
	LIFFID                 string
	NotifyTimeout          time.Duration
	RenotifyOnPollRecreate bool
	Location               *time.Location
	Logger                 zerolog.Logger
}

// Services 是 HTTP 层与扫描命令共用的一组服务。
type Services struct {
	Groups    *GroupService
	Settings  *GroupSettingService
	Notifier  *NotificationService
	Wishes    *WishService
	Schedule  *ScheduleService
	Responses *ResponseService
	Interests *InterestService
	Events    *EventService
	Scanner   *Scanner
}

// NewServices 基于同一个数据库连接与推送通道组装全部服务。
func NewServices(gdb *gorm.DB, dispatcher Dispatcher, opts Options) *Services {
	groups := NewGroupService(gdb)
	settings := NewGroupSettingService(gdb)

	notifier := NewNotificationService(gdb, settings, groups, dispatcher)
	notifier.SetLogger(logger.Component(opts.Logger, "notify"))
	notifier.SetLIFFID(opts.LIFFID)
	notifier.SetTimeout(opts.NotifyTimeout)

	wishes := NewWishService(gdb, notifier)
	wishes.SetLogger(logger.Component(opts.Logger, "wish"))
	wishes.SetRenotifyOnPollRecreate(opts.RenotifyOnPollRecreate)

	interests := NewInterestService(gdb)

	events := NewEventService(gdb)
	events.SetLogger(logger.Component(opts.Logger, "event"))

	scanner := NewScanner(gdb, notifier, settings, groups, groups, interests)
	scanner.SetLogger(logger.Component(opts.Logger, "scanner"))
	scanner.SetLocation(opts.Location)

	return &Services{
		Groups:    groups,
		Settings:  settings,
		Notifier:  notifier,
		Wishes:    wishes,
		Schedule:  NewScheduleService(gdb),
		Responses: NewResponseService(gdb, groups),
		Interests: interests,
		Events:    events,
		Scanner:   scanner,
	}
}
