package db

import "gorm.io/datatypes"

// ScheduleCandidate 是日程投票的候选日，重新发起投票时整组替换。
type ScheduleCandidate struct {
	Model
	WishID string         `gorm:"size:36;not null;index"`
	Date   datatypes.Date `gorm:"not null"`
	Votes  []ScheduleVote `gorm:"foreignKey:CandidateID"`
}

// ScheduleVote 记录用户对候选日的可用性，(candidate_id, user_id) 唯一。
type ScheduleVote struct {
	Model
	CandidateID  string `gorm:"size:36;not null;uniqueIndex:idx_schedule_vote_unique"`
	UserID       string `gorm:"size:36;not null;index;uniqueIndex:idx_schedule_vote_unique"`
	Availability string `gorm:"size:16;not null"`
	User         User   `gorm:"foreignKey:UserID"`
}

const (
	AvailabilityOK        = "ok"
	AvailabilityNG        = "ng"
	AvailabilityUndecided = "undecided"
	AvailabilityMorning   = "morning"
	AvailabilityAfternoon = "afternoon"
	AvailabilityEvening   = "evening"
)

// Availabilities 按展示顺序列出全部可用性取值。
var Availabilities = []string{
	AvailabilityOK,
	AvailabilityMorning,
	AvailabilityAfternoon,
	AvailabilityEvening,
	AvailabilityUndecided,
	AvailabilityNG,
}
