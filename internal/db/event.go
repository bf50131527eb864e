package db

import "gorm.io/datatypes"

const (
	EventStatusVoting    = "voting"
	EventStatusConfirmed = "confirmed"
	EventStatusCancelled = "cancelled"
)

// Event 是独立于愿望的日程调整：标题加一组候选日，成员对每个候选日回答 ok/maybe/ng。
type Event struct {
	Model
	GroupID       string `gorm:"size:36;not null;index"`
	CreatedBy     string `gorm:"size:36;not null;index"`
	Creator       User   `gorm:"foreignKey:CreatedBy"`
	Title         string `gorm:"size:200;not null"`
	Description   string `gorm:"type:text"`
	Status        string `gorm:"size:20;not null;index"`
	ConfirmedDate *datatypes.Date

	Candidates []EventCandidate `gorm:"foreignKey:EventID"`
	Votes      []EventVote      `gorm:"foreignKey:EventID"`
}

// EventCandidate 是活动的候选日，(event_id, date) 唯一。
type EventCandidate struct {
	Model
	EventID string         `gorm:"size:36;not null;uniqueIndex:idx_event_candidate_unique"`
	Date    datatypes.Date `gorm:"not null;uniqueIndex:idx_event_candidate_unique"`
}

// EventVote 记录用户对某个候选日的回答，(event_id, user_id, date) 唯一。
// 取值与参加确认相同：ok、maybe、ng。
type EventVote struct {
	Model
	EventID      string         `gorm:"size:36;not null;uniqueIndex:idx_event_vote_unique"`
	UserID       string         `gorm:"size:36;not null;index;uniqueIndex:idx_event_vote_unique"`
	Date         datatypes.Date `gorm:"not null;uniqueIndex:idx_event_vote_unique"`
	Availability string         `gorm:"size:10;not null"`
	User         User           `gorm:"foreignKey:UserID"`
}
