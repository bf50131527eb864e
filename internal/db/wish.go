package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	WishStatusOpen      = "open"
	WishStatusVoting    = "voting"
	WishStatusConfirmed = "confirmed"
)

// Wish 是群组里“想去”的提案。
// Status=voting 且没有 StartDate 表示日程投票中；有 StartDate 的愿望用 VotingStarted
// 标记参加确认阶段。Status=confirmed 当且仅当 ConfirmedDate 非空。
type Wish struct {
	Model
	GroupID       string `gorm:"size:36;not null;index"`
	CreatedBy     string `gorm:"size:36;not null;index"`
	Creator       User   `gorm:"foreignKey:CreatedBy"`
	Title         string `gorm:"size:200;not null"`
	Description   string `gorm:"type:text"`
	IsAnonymous   bool
	StartDate     *datatypes.Date
	StartTime     *datatypes.Time
	EndDate       *datatypes.Date
	EndTime       *datatypes.Time
	IsAllDay      bool
	Status        string `gorm:"size:20;not null;index"`
	VotingStarted bool   `gorm:"index"`
	VoteDeadline  *time.Time
	ConfirmedDate *datatypes.Date

	Interests  []Interest          `gorm:"foreignKey:WishID"`
	Responses  []WishResponse      `gorm:"foreignKey:WishID"`
	Candidates []ScheduleCandidate `gorm:"foreignKey:WishID"`
}

// Interest 表示某个用户“想去”，(wish_id, user_id) 唯一。
type Interest struct {
	Model
	WishID string `gorm:"size:36;not null;uniqueIndex:idx_interest_unique"`
	UserID string `gorm:"size:36;not null;index;uniqueIndex:idx_interest_unique"`
	User   User   `gorm:"foreignKey:UserID"`
}

// WishResponse 是参加确认阶段的 ok/maybe/ng 回答。
type WishResponse struct {
	Model
	WishID   string `gorm:"size:36;not null;uniqueIndex:idx_wish_response_unique"`
	UserID   string `gorm:"size:36;not null;index;uniqueIndex:idx_wish_response_unique"`
	Response string `gorm:"size:10;not null"`
	User     User   `gorm:"foreignKey:UserID"`
}

const (
	ResponseOK    = "ok"
	ResponseMaybe = "maybe"
	ResponseNG    = "ng"
)
