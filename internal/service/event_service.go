package service

import (
	"errors"
	"strings"
	"time"

	"github.com/asobot/internal/db"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// EventService 管理独立的日程调整活动：候选日、整组替换的投票与结束状态。
type EventService struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// EventInput 是创建活动时的输入，Dates 会去重并按日期排序。
type EventInput struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"max=4000"`
	Dates       []time.Time
}

// EventVoteInput 是一个候选日上的回答。
type EventVoteInput struct {
	Date         time.Time
	Availability string
}

// EventDateTally 是单个候选日的 ok/maybe/ng 计数。
type EventDateTally struct {
	Date  time.Time
	Tally ResponseTally
}

func NewEventService(gdb *gorm.DB) *EventService {
	return &EventService{db: gdb, logger: zerolog.Nop()}
}

func (s *EventService) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// Create 在群组里发起活动，状态为 voting。
func (s *EventService) Create(groupID, creatorID string, input EventInput) (*db.Event, error) {
	input.Title = sanitizeTitle(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if input.Title == "" {
		return nil, ErrEmptyTitle
	}
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	dates := normalizeCandidateDates(input.Dates)
	if len(dates) == 0 {
		return nil, ErrNoCandidates
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

	event := db.Event{
		GroupID:     group.ID,
		CreatedBy:   creator.ID,
		Title:       input.Title,
		Description: input.Description,
		Status:      db.EventStatusVoting,
	}
	for _, d := range dates {
		event.Candidates = append(event.Candidates, db.EventCandidate{Date: *db.NewDate(d)})
	}
	if err := s.db.Create(&event).Error; err != nil {
		return nil, dependency("create event", err)
	}

	s.logger.Info().Str("event_id", event.ID).Str("group_id", group.ID).Int("dates", len(dates)).Msg("event created")
	return s.Get(event.ID)
}

func (s *EventService) preloaded() *gorm.DB {
	return s.db.Preload("Creator").
		Preload("Candidates", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("date ASC")
		}).
		Preload("Votes", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("date ASC").Order("created_at ASC")
		}).
		Preload("Votes.User")
}

// Get 加载活动及其创建者、候选日与全部投票。
func (s *EventService) Get(eventID string) (*db.Event, error) {
	var event db.Event
	if err := s.preloaded().First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, dependency("get event", err)
	}
	return &event, nil
}

// ListForGroup 按创建时间倒序返回群组的活动。
func (s *EventService) ListForGroup(groupID string) ([]db.Event, error) {
	var events []db.Event
	err := s.preloaded().
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, dependency("list events", err)
	}
	return events, nil
}

// Votes 返回活动的全部投票，按日期排序。
func (s *EventService) Votes(eventID string) ([]db.EventVote, error) {
	event, err := s.Get(eventID)
	if err != nil {
		return nil, err
	}
	return event.Votes, nil
}

// ReplaceVotes 用新的回答整组替换该用户在活动上的投票；空列表等于撤回全部投票。
// 同一日期出现多次时以最后一项为准。
func (s *EventService) ReplaceVotes(eventID, userID string, votes []EventVoteInput) ([]db.EventVote, error) {
	for i := range votes {
		votes[i].Availability = strings.TrimSpace(votes[i].Availability)
		if votes[i].Availability == "" || !validResponse(votes[i].Availability) {
			return nil, ErrInvalidVote
		}
	}

	event, err := s.Get(eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != db.EventStatusVoting {
		return nil, ErrInvalidTransition
	}

	byDate := make(map[string]int, len(votes))
	rows := make([]db.EventVote, 0, len(votes))
	for _, v := range votes {
		day, ok := eventCandidate(event, v.Date)
		if !ok {
			return nil, ErrNotACandidate
		}
		key := day.Format("2006-01-02")
		row := db.EventVote{EventID: event.ID, UserID: userID, Date: *db.NewDate(day), Availability: v.Availability}
		if i, seen := byDate[key]; seen {
			rows[i] = row
			continue
		}
		byDate[key] = len(rows)
		rows = append(rows, row)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ? AND user_id = ?", event.ID, userID).Delete(&db.EventVote{}).Error; err != nil {
			return dependency("delete event votes", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return dependency("insert event votes", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var saved []db.EventVote
	err = s.db.Preload("User").
		Where("event_id = ? AND user_id = ?", event.ID, userID).
		Order("date ASC").
		Find(&saved).Error
	if err != nil {
		return nil, dependency("reload event votes", err)
	}
	return saved, nil
}

func eventCandidate(event *db.Event, date time.Time) (time.Time, bool) {
	for _, c := range event.Candidates {
		day := time.Time(c.Date).UTC()
		if db.SameDate(day, date) {
			return day, true
		}
	}
	return time.Time{}, false
}

// Confirm 由创建者从候选日中确定日期。
func (s *EventService) Confirm(eventID, requesterID string, date time.Time) (*db.Event, error) {
	event, err := s.closable(eventID, requesterID)
	if err != nil {
		return nil, err
	}
	day, ok := eventCandidate(event, date)
	if !ok {
		return nil, ErrNotACandidate
	}
	if err := s.close(event.ID, map[string]any{
		"status":         db.EventStatusConfirmed,
		"confirmed_date": db.NewDate(day),
	}); err != nil {
		return nil, err
	}

	s.logger.Info().Str("event_id", event.ID).Str("date", day.Format("2006-01-02")).Msg("event confirmed")
	return s.Get(event.ID)
}

// Cancel 由创建者取消仍在投票中的活动。
func (s *EventService) Cancel(eventID, requesterID string) (*db.Event, error) {
	event, err := s.closable(eventID, requesterID)
	if err != nil {
		return nil, err
	}
	if err := s.close(event.ID, map[string]any{"status": db.EventStatusCancelled}); err != nil {
		return nil, err
	}

	s.logger.Info().Str("event_id", event.ID).Msg("event cancelled")
	return s.Get(event.ID)
}

func (s *EventService) closable(eventID, requesterID string) (*db.Event, error) {
	event, err := s.Get(eventID)
	if err != nil {
		return nil, err
	}
	if event.CreatedBy != requesterID {
		return nil, ErrNotOrganizer
	}
	if event.Status != db.EventStatusVoting {
		return nil, ErrInvalidTransition
	}
	return event, nil
}

func (s *EventService) close(eventID string, updates map[string]any) error {
	result := s.db.Model(&db.Event{}).
		Where("id = ? AND status = ?", eventID, db.EventStatusVoting).
		Updates(updates)
	if result.Error != nil {
		return dependency("close event", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// TallyEvent 按候选日顺序统计 ok/maybe/ng。
func TallyEvent(event db.Event) []EventDateTally {
	index := make(map[string]int, len(event.Candidates))
	tallies := make([]EventDateTally, 0, len(event.Candidates))
	for _, c := range event.Candidates {
		day := time.Time(c.Date).UTC()
		index[day.Format("2006-01-02")] = len(tallies)
		tallies = append(tallies, EventDateTally{Date: day})
	}
	for _, v := range event.Votes {
		i, ok := index[time.Time(v.Date).UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		switch v.Availability {
		case db.ResponseOK:
			tallies[i].Tally.OK++
		case db.ResponseMaybe:
			tallies[i].Tally.Maybe++
		case db.ResponseNG:
			tallies[i].Tally.NG++
		}
	}
	return tallies
}

// BestEventDates 返回 ok 最多的候选日，maybe 只在 ok 相同时用来区分；没有 ok 时返回空。
func BestEventDates(tallies []EventDateTally) []EventDateTally {
	best := EventDateTally{}
	for _, t := range tallies {
		if t.Tally.OK > best.Tally.OK || (t.Tally.OK == best.Tally.OK && t.Tally.Maybe > best.Tally.Maybe) {
			best = t
		}
	}
	if best.Tally.OK == 0 {
		return []EventDateTally{}
	}

	leading := make([]EventDateTally, 0, 1)
	for _, t := range tallies {
		if t.Tally.OK == best.Tally.OK && t.Tally.Maybe == best.Tally.Maybe {
			leading = append(leading, t)
		}
	}
	return leading
}
