package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/asobot/internal/db"
	"github.com/asobot/internal/locale"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultUpcomingLimit = 5

var plainText = bluemonday.StrictPolicy()

// WishService 负责愿望的创建、编辑与阶段迁移，阶段变化后发送群组通知。
type WishService struct {
	db                     *gorm.DB
	notifier               *NotificationService
	renotifyOnPollRecreate bool
	now                    func() time.Time
	logger                 zerolog.Logger
}

// WishInput 是创建或编辑愿望时可填写的字段，时间格式为 HH:MM。
type WishInput struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"max=4000"`
	IsAnonymous bool
	StartDate   *time.Time
	StartTime   string `validate:"omitempty,datetime=15:04"`
	EndDate     *time.Time
	EndTime     string `validate:"omitempty,datetime=15:04"`
	IsAllDay    bool
}

func NewWishService(gdb *gorm.DB, notifier *NotificationService) *WishService {
	return &WishService{
		db:       gdb,
		notifier: notifier,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
}

func (s *WishService) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// SetRenotifyOnPollRecreate 开启后，候选日集合变化的重新投票会再次发送开始通知。
func (s *WishService) SetRenotifyOnPollRecreate(enabled bool) {
	s.renotifyOnPollRecreate = enabled
}

// SetClock 替换当前时间来源，测试使用。
func (s *WishService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func sanitizeTitle(title string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(strings.TrimSpace(title))))
}

func parseClock(raw string) (*datatypes.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid time %q", ErrValidation, raw)
	}
	value := datatypes.NewTime(t.Hour(), t.Minute(), 0, 0)
	return &value, nil
}

func optionalDate(t *time.Time) *datatypes.Date {
	if t == nil {
		return nil
	}
	return db.NewDate(*t)
}

// normalizeWishInput 清洗并校验输入，返回可直接写入的日期时间字段。
func normalizeWishInput(input WishInput) (WishInput, *datatypes.Time, *datatypes.Time, error) {
	input.Title = sanitizeTitle(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if input.Title == "" {
		return input, nil, nil, ErrEmptyTitle
	}
	if err := validateStruct(input); err != nil {
		return input, nil, nil, err
	}
	if input.EndDate != nil && input.StartDate == nil {
		return input, nil, nil, fmt.Errorf("%w: end date requires a start date", ErrValidation)
	}
	if input.StartDate != nil && input.EndDate != nil {
		start, _ := db.DateValue(db.NewDate(*input.StartDate))
		end, _ := db.DateValue(db.NewDate(*input.EndDate))
		if end.Before(start) {
			return input, nil, nil, fmt.Errorf("%w: end date is before start date", ErrValidation)
		}
	}

	startTime, err := parseClock(input.StartTime)
	if err != nil {
		return input, nil, nil, err
	}
	endTime, err := parseClock(input.EndTime)
	if err != nil {
		return input, nil, nil, err
	}
	if input.IsAllDay {
		startTime, endTime = nil, nil
	}
	return input, startTime, endTime, nil
}

// Create 新建 open 状态的愿望。
func (s *WishService) Create(groupID, creatorID string, input WishInput) (*db.Wish, error) {
	input, startTime, endTime, err := normalizeWishInput(input)
	if err != nil {
		return nil, err
	}

	var creator db.User
	if err := s.db.First(&creator, "id = ?", creatorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownCreator
		}
		return nil, dependency("find creator", err)
	}

	var group db.Group
	if err := s.db.First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, dependency("find group", err)
	}

	wish := db.Wish{
		GroupID:     group.ID,
		CreatedBy:   creator.ID,
		Title:       input.Title,
		Description: input.Description,
		IsAnonymous: input.IsAnonymous,
		StartDate:   optionalDate(input.StartDate),
		StartTime:   startTime,
		EndDate:     optionalDate(input.EndDate),
		EndTime:     endTime,
		IsAllDay:    input.IsAllDay,
		Status:      db.WishStatusOpen,
	}
	if err := s.db.Create(&wish).Error; err != nil {
		return nil, dependency("create wish", err)
	}
	wish.Creator = creator
	return &wish, nil
}

// Get 加载愿望及其创建者、想去列表与候选日。
func (s *WishService) Get(wishID string) (*db.Wish, error) {
	var wish db.Wish
	err := s.db.Preload("Creator").
		Preload("Interests.User").
		Preload("Candidates", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("date ASC")
		}).
		First(&wish, "id = ?", wishID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWishNotFound
		}
		return nil, dependency("get wish", err)
	}
	return &wish, nil
}

func (s *WishService) editable(wishID, requesterID string) (*db.Wish, error) {
	wish, err := s.Get(wishID)
	if err != nil {
		return nil, err
	}
	if wish.CreatedBy != requesterID {
		return nil, ErrNotCreator
	}
	if !canEdit(PhaseOf(*wish)) || wish.Status != db.WishStatusOpen {
		return nil, ErrWishLocked
	}
	return wish, nil
}

// Update 编辑愿望，仅创建者可在未开始投票时操作。
func (s *WishService) Update(wishID, requesterID string, input WishInput) (*db.Wish, error) {
	input, startTime, endTime, err := normalizeWishInput(input)
	if err != nil {
		return nil, err
	}

	wish, err := s.editable(wishID, requesterID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"title":        input.Title,
		"description":  input.Description,
		"is_anonymous": input.IsAnonymous,
		"start_date":   optionalDate(input.StartDate),
		"start_time":   startTime,
		"end_date":     optionalDate(input.EndDate),
		"end_time":     endTime,
		"is_all_day":   input.IsAllDay,
	}
	result := s.db.Model(&db.Wish{}).
		Where("id = ? AND status = ? AND voting_started = ?", wish.ID, db.WishStatusOpen, false).
		Updates(updates)
	if result.Error != nil {
		return nil, dependency("update wish", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrWishLocked
	}
	return s.Get(wish.ID)
}

// Delete 删除愿望及其想去、回答、候选日与投票，仅创建者可在未开始投票时操作。
// 通知日志只追加，不随愿望删除。
func (s *WishService) Delete(wishID, requesterID string) error {
	wish, err := s.editable(wishID, requesterID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		candidateIDs := tx.Model(&db.ScheduleCandidate{}).Select("id").Where("wish_id = ?", wish.ID)
		if err := tx.Where("candidate_id IN (?)", candidateIDs).Delete(&db.ScheduleVote{}).Error; err != nil {
			return dependency("delete schedule votes", err)
		}
		if err := tx.Where("wish_id = ?", wish.ID).Delete(&db.ScheduleCandidate{}).Error; err != nil {
			return dependency("delete schedule candidates", err)
		}
		if err := tx.Where("wish_id = ?", wish.ID).Delete(&db.Interest{}).Error; err != nil {
			return dependency("delete interests", err)
		}
		if err := tx.Where("wish_id = ?", wish.ID).Delete(&db.WishResponse{}).Error; err != nil {
			return dependency("delete responses", err)
		}

		result := tx.Where("id = ? AND status = ? AND voting_started = ?", wish.ID, db.WishStatusOpen, false).Delete(&db.Wish{})
		if result.Error != nil {
			return dependency("delete wish", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrWishLocked
		}
		return nil
	})
}

// ListActive 返回 open/voting 状态的愿望，新的在前。
func (s *WishService) ListActive(groupID string) ([]db.Wish, error) {
	var wishes []db.Wish
	err := s.db.Preload("Creator").
		Preload("Interests.User").
		Where("group_id = ? AND status IN ?", groupID, []string{db.WishStatusOpen, db.WishStatusVoting}).
		Order("created_at DESC").
		Find(&wishes).Error
	if err != nil {
		return nil, dependency("list active wishes", err)
	}
	return wishes, nil
}

// EffectiveDate 返回愿望在日历上的日期：已确定的日期优先，其次是预设开始日期。
func EffectiveDate(w db.Wish) (time.Time, bool) {
	if d, ok := db.DateValue(w.ConfirmedDate); ok {
		return d, true
	}
	return db.DateValue(w.StartDate)
}

func (s *WishService) datedWishes(groupID string) ([]db.Wish, error) {
	var wishes []db.Wish
	err := s.db.Preload("Creator").
		Where("group_id = ?", groupID).
		Where("confirmed_date IS NOT NULL OR start_date IS NOT NULL").
		Find(&wishes).Error
	if err != nil {
		return nil, dependency("list dated wishes", err)
	}
	return wishes, nil
}

func sortByEffectiveDate(wishes []db.Wish) {
	sort.SliceStable(wishes, func(i, j int) bool {
		a, _ := EffectiveDate(wishes[i])
		b, _ := EffectiveDate(wishes[j])
		return a.Before(b)
	})
}

// ListCalendar 返回日期落在 [from, to] 内的愿望，已确定的愿望保留作为历史。
func (s *WishService) ListCalendar(groupID string, from, to time.Time) ([]db.Wish, error) {
	wishes, err := s.datedWishes(groupID)
	if err != nil {
		return nil, err
	}

	start, _ := db.DateValue(db.NewDate(from))
	end, _ := db.DateValue(db.NewDate(to))

	result := make([]db.Wish, 0, len(wishes))
	for _, w := range wishes {
		date, _ := EffectiveDate(w)
		if date.Before(start) || date.After(end) {
			continue
		}
		result = append(result, w)
	}
	sortByEffectiveDate(result)
	return result, nil
}

// Upcoming 返回今天及以后、处于参加确认、投票或已确定的愿望，按日期升序。
func (s *WishService) Upcoming(groupID string, today time.Time, limit int) ([]db.Wish, error) {
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}

	wishes, err := s.datedWishes(groupID)
	if err != nil {
		return nil, err
	}

	floor, _ := db.DateValue(db.NewDate(today))
	result := make([]db.Wish, 0, limit)
	for _, w := range wishes {
		if !w.VotingStarted && w.Status != db.WishStatusVoting && w.Status != db.WishStatusConfirmed {
			continue
		}
		date, _ := EffectiveDate(w)
		if date.Before(floor) {
			continue
		}
		result = append(result, w)
	}
	sortByEffectiveDate(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// PendingActions 返回需要该用户回答的愿望：未回答的参加确认，以及未投任何一票的日程投票。
func (s *WishService) PendingActions(groupID, userID string) ([]db.Wish, error) {
	wishes, err := s.ListActive(groupID)
	if err != nil {
		return nil, err
	}

	var responded []string
	err = s.db.Model(&db.WishResponse{}).
		Joins("JOIN wishes ON wishes.id = wish_responses.wish_id").
		Where("wishes.group_id = ? AND wish_responses.user_id = ?", groupID, userID).
		Pluck("wish_responses.wish_id", &responded).Error
	if err != nil {
		return nil, dependency("list responded wishes", err)
	}

	var voted []string
	err = s.db.Model(&db.ScheduleVote{}).
		Joins("JOIN schedule_candidates ON schedule_candidates.id = schedule_votes.candidate_id").
		Joins("JOIN wishes ON wishes.id = schedule_candidates.wish_id").
		Where("wishes.group_id = ? AND schedule_votes.user_id = ?", groupID, userID).
		Pluck("schedule_candidates.wish_id", &voted).Error
	if err != nil {
		return nil, dependency("list voted wishes", err)
	}

	answered := make(map[string]struct{}, len(responded)+len(voted))
	for _, id := range responded {
		answered[id] = struct{}{}
	}
	for _, id := range voted {
		answered[id] = struct{}{}
	}

	pending := make([]db.Wish, 0)
	for _, w := range wishes {
		switch PhaseOf(w).(type) {
		case AttendancePhase, SchedulePollPhase:
			if _, ok := answered[w.ID]; !ok {
				pending = append(pending, w)
			}
		}
	}
	return pending, nil
}

func normalizeCandidateDates(dates []time.Time) []time.Time {
	seen := make(map[string]struct{}, len(dates))
	result := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day, _ := db.DateValue(db.NewDate(d))
		key := day.Format("2006-01-02")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, day)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := t.UTC()
	return &value
}

// CreateSchedulePoll 用新的候选日整组替换旧的候选日（旧投票随之删除），并进入投票状态。
func (s *WishService) CreateSchedulePoll(ctx context.Context, wishID string, dates []time.Time, deadline *time.Time) ([]db.ScheduleCandidate, error) {
	dates = normalizeCandidateDates(dates)
	if len(dates) == 0 {
		return nil, ErrNoCandidates
	}

	wish, err := s.Get(wishID)
	if err != nil {
		return nil, err
	}
	if err := checkStartPoll(PhaseOf(*wish)); err != nil {
		return nil, err
	}

	candidates := make([]db.ScheduleCandidate, 0, len(dates))
	for _, d := range dates {
		candidates = append(candidates, db.ScheduleCandidate{WishID: wish.ID, Date: *db.NewDate(d)})
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		oldIDs := tx.Model(&db.ScheduleCandidate{}).Select("id").Where("wish_id = ?", wish.ID)
		if err := tx.Where("candidate_id IN (?)", oldIDs).Delete(&db.ScheduleVote{}).Error; err != nil {
			return dependency("delete old votes", err)
		}
		if err := tx.Where("wish_id = ?", wish.ID).Delete(&db.ScheduleCandidate{}).Error; err != nil {
			return dependency("delete old candidates", err)
		}
		if err := tx.Create(&candidates).Error; err != nil {
			return dependency("insert candidates", err)
		}

		result := tx.Model(&db.Wish{}).
			Where("id = ? AND status <> ? AND start_date IS NULL", wish.ID, db.WishStatusConfirmed).
			Updates(map[string]any{
				"status":        db.WishStatusVoting,
				"vote_deadline": utcPtr(deadline),
			})
		if result.Error != nil {
			return dependency("start schedule poll", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dedupeKey := ""
	if s.renotifyOnPollRecreate {
		dedupeKey = candidateSetKey(dates)
	}
	title := wish.Title
	s.notify(ctx, Notification{
		GroupID:   wish.GroupID,
		WishID:    wish.ID,
		Type:      db.NotifyScheduleStart,
		DedupeKey: dedupeKey,
		Render: func(language string) string {
			return locale.ScheduleStart(language, title, s.wishLink(wish, "/schedule/vote"))
		},
	})

	return candidates, nil
}

// StartAttendanceConfirmation 为已有日期的愿望开始收集参加回答。
func (s *WishService) StartAttendanceConfirmation(ctx context.Context, wishID string, deadline *time.Time) (*db.Wish, error) {
	wish, err := s.Get(wishID)
	if err != nil {
		return nil, err
	}
	if err := checkStartAttendance(PhaseOf(*wish)); err != nil {
		return nil, err
	}

	result := s.db.Model(&db.Wish{}).
		Where("id = ? AND voting_started = ? AND status = ? AND start_date IS NOT NULL", wish.ID, false, db.WishStatusOpen).
		Updates(map[string]any{
			"voting_started": true,
			"vote_deadline":  utcPtr(deadline),
		})
	if result.Error != nil {
		return nil, dependency("start attendance confirmation", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}

	date, _ := db.DateValue(wish.StartDate)
	title := wish.Title
	s.notify(ctx, Notification{
		GroupID: wish.GroupID,
		WishID:  wish.ID,
		Type:    db.NotifyConfirmStart,
		Render: func(language string) string {
			return locale.ConfirmStart(language, title, date, s.wishLink(wish, "/confirm"))
		},
	})

	return s.Get(wish.ID)
}

// ConfirmDate 确定最终日期，仅创建者可操作；投票阶段的日期必须是候选日之一。
func (s *WishService) ConfirmDate(ctx context.Context, wishID, requesterID string, date time.Time) (*db.Wish, error) {
	wish, err := s.Get(wishID)
	if err != nil {
		return nil, err
	}
	if wish.CreatedBy != requesterID {
		return nil, ErrNotCreator
	}
	if err := checkConfirm(PhaseOf(*wish), date); err != nil {
		return nil, err
	}

	confirmed := db.NewDate(date)
	result := s.db.Model(&db.Wish{}).
		Where("id = ? AND status <> ?", wish.ID, db.WishStatusConfirmed).
		Updates(map[string]any{
			"status":         db.WishStatusConfirmed,
			"confirmed_date": confirmed,
		})
	if result.Error != nil {
		return nil, dependency("confirm wish date", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}

	day, _ := db.DateValue(confirmed)
	title := wish.Title
	s.notify(ctx, Notification{
		GroupID: wish.GroupID,
		WishID:  wish.ID,
		Type:    db.NotifyDateConfirmed,
		Render: func(language string) string {
			return locale.DateConfirmed(language, title, day)
		},
	})

	return s.Get(wish.ID)
}

func (s *WishService) wishLink(wish *db.Wish, suffix string) string {
	if s.notifier == nil {
		return ""
	}
	return s.notifier.WishLink(wish.GroupID, wish.ID, suffix)
}

// notify 在状态写入成功后发送通知，失败只记录日志，不影响操作结果。
func (s *WishService) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	status, err := s.notifier.Send(ctx, n)
	if err != nil {
		s.logger.Error().Err(err).Str("wish_id", n.WishID).Str("type", n.Type).Msg("send notification failed")
		return
	}
	s.logger.Debug().Str("wish_id", n.WishID).Str("type", n.Type).Str("status", string(status)).Msg("notification handled")
}
