package service

import (
	"errors"
	"strings"

	"github.com/asobot/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScheduleService 管理候选日投票与统计。权限判断由 WishService 负责。
type ScheduleService struct {
	db *gorm.DB
}

// VoteInput 是批量投票中的一项，Availability 为空表示撤回。
type VoteInput struct {
	CandidateID  string `json:"candidateId"`
	Availability string `json:"availability"`
}

// CandidateTally 是单个候选日的各选项票数。
type CandidateTally struct {
	Candidate db.ScheduleCandidate
	Counts    map[string]int
}

// OK 返回全天可参加的票数，是唯一参与决策的计数。
func (t CandidateTally) OK() int {
	return t.Counts[db.AvailabilityOK]
}

func NewScheduleService(gdb *gorm.DB) *ScheduleService {
	return &ScheduleService{db: gdb}
}

func validAvailability(value string) bool {
	if value == "" {
		return true
	}
	for _, v := range db.Availabilities {
		if v == value {
			return true
		}
	}
	return false
}

// Candidates 返回愿望的候选日（按日期升序）及其投票。
func (s *ScheduleService) Candidates(wishID string) ([]db.ScheduleCandidate, error) {
	var candidates []db.ScheduleCandidate
	err := s.db.Preload("Votes", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC")
	}).Preload("Votes.User").
		Where("wish_id = ?", wishID).
		Order("date ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, dependency("list schedule candidates", err)
	}
	return candidates, nil
}

// CastVote 写入或覆盖用户对候选日的可用性，空值删除该票。
func (s *ScheduleService) CastVote(candidateID, userID, value string) error {
	value = strings.TrimSpace(value)
	if !validAvailability(value) {
		return ErrInvalidVote
	}

	var candidate db.ScheduleCandidate
	if err := s.db.First(&candidate, "id = ?", candidateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCandidateNotFound
		}
		return dependency("find schedule candidate", err)
	}

	return applyVote(s.db, candidateID, userID, value)
}

// CastVotes 在一个事务内应用同一用户的多项投票，候选日必须属于该愿望。
func (s *ScheduleService) CastVotes(wishID, userID string, votes []VoteInput) error {
	for i := range votes {
		votes[i].Availability = strings.TrimSpace(votes[i].Availability)
		if !validAvailability(votes[i].Availability) {
			return ErrInvalidVote
		}
	}
	if len(votes) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&db.ScheduleCandidate{}).Where("wish_id = ?", wishID).Pluck("id", &ids).Error; err != nil {
			return dependency("list candidate ids", err)
		}
		owned := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			owned[id] = struct{}{}
		}

		for _, vote := range votes {
			if _, ok := owned[vote.CandidateID]; !ok {
				return ErrCandidateNotFound
			}
			if err := applyVote(tx, vote.CandidateID, userID, vote.Availability); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyVote(tx *gorm.DB, candidateID, userID, value string) error {
	if value == "" {
		if err := tx.Where("candidate_id = ? AND user_id = ?", candidateID, userID).Delete(&db.ScheduleVote{}).Error; err != nil {
			return dependency("delete schedule vote", err)
		}
		return nil
	}

	vote := db.ScheduleVote{CandidateID: candidateID, UserID: userID, Availability: value}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "candidate_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"availability", "updated_at"}),
	}).Create(&vote).Error
	if err != nil {
		return dependency("upsert schedule vote", err)
	}
	return nil
}

// TallyByCandidate 统计每个候选日各选项的票数，顺序与 Candidates 一致。
func (s *ScheduleService) TallyByCandidate(wishID string) ([]CandidateTally, error) {
	candidates, err := s.Candidates(wishID)
	if err != nil {
		return nil, err
	}
	return tallyCandidates(candidates), nil
}

func tallyCandidates(candidates []db.ScheduleCandidate) []CandidateTally {
	tallies := make([]CandidateTally, 0, len(candidates))
	for _, c := range candidates {
		counts := make(map[string]int)
		for _, v := range c.Votes {
			counts[v.Availability]++
		}
		tallies = append(tallies, CandidateTally{Candidate: c, Counts: counts})
	}
	return tallies
}

// LeadingCandidates 返回 ok 票数并列最高的候选日；最高票为 0 时返回空。
func (s *ScheduleService) LeadingCandidates(wishID string) ([]CandidateTally, error) {
	tallies, err := s.TallyByCandidate(wishID)
	if err != nil {
		return nil, err
	}
	return leadingOf(tallies), nil
}

func leadingOf(tallies []CandidateTally) []CandidateTally {
	best := 0
	for _, t := range tallies {
		if t.OK() > best {
			best = t.OK()
		}
	}
	if best == 0 {
		return []CandidateTally{}
	}

	leading := make([]CandidateTally, 0, 1)
	for _, t := range tallies {
		if t.OK() == best {
			leading = append(leading, t)
		}
	}
	return leading
}

// VotedUsers 返回在愿望任一候选日上投过票的用户 ID 集合。
func (s *ScheduleService) VotedUsers(wishID string) (map[string]struct{}, error) {
	var userIDs []string
	err := s.db.Model(&db.ScheduleVote{}).
		Distinct("schedule_votes.user_id").
		Joins("JOIN schedule_candidates ON schedule_candidates.id = schedule_votes.candidate_id").
		Where("schedule_candidates.wish_id = ?", wishID).
		Pluck("schedule_votes.user_id", &userIDs).Error
	if err != nil {
		return nil, dependency("list voted users", err)
	}

	voted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		voted[id] = struct{}{}
	}
	return voted, nil
}
