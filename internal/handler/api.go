package handler

import (
	"context"
	"time"

	"github.com/asobot/internal/service"
	"github.com/rs/zerolog"
)

// scanRunner runs one reminder and suggestion pass.
type scanRunner interface {
	Run(ctx context.Context, now time.Time) (service.ScanReport, error)
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	groups    *service.GroupService
	settings  *service.GroupSettingService
	wishes    *service.WishService
	schedule  *service.ScheduleService
	responses *service.ResponseService
	interests *service.InterestService
	events    *service.EventService
	scanner   scanRunner
	cron      CronAuth
	location  *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

// Options configures the handler set.
type Options struct {
	Cron     CronAuth
	Location *time.Location
	Logger   zerolog.Logger
}

// NewAPI constructs a handler set with shared services.
func NewAPI(svc *service.Services, opts Options) *API {
	location := opts.Location
	if location == nil {
		location = time.UTC
	}
	return &API{
		groups:    svc.Groups,
		settings:  svc.Settings,
		wishes:    svc.Wishes,
		schedule:  svc.Schedule,
		responses: svc.Responses,
		interests: svc.Interests,
		events:    svc.Events,
		scanner:   svc.Scanner,
		cron:      opts.Cron,
		location:  location,
		now:       time.Now,
		logger:    opts.Logger,
	}
}

// SetClock overrides the time source used for "today" and scan runs.
func (a *API) SetClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// today returns the current calendar date in the configured location.
func (a *API) today() time.Time {
	local := a.now().In(a.location)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
