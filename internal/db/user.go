package db

import "time"

// User 是在 LINE 中出现过的用户，LineUserID 唯一。
type User struct {
	Model
	LineUserID  string `gorm:"size:64;uniqueIndex;not null"`
	DisplayName string `gorm:"size:200"`
	PictureURL  string `gorm:"size:500"`
}

// Group 对应一个 LINE 群组。
type Group struct {
	Model
	LineGroupID    string `gorm:"size:64;uniqueIndex;not null"`
	Name           string `gorm:"size:200"`
	LastActivityAt *time.Time
}

// TableName 避开 MySQL 8 的保留字 groups。
func (Group) TableName() string {
	return "chat_groups"
}

// GroupMember 记录群组成员关系，(group_id, user_id) 唯一。
type GroupMember struct {
	Model
	GroupID string `gorm:"size:36;not null;uniqueIndex:idx_group_member_unique"`
	UserID  string `gorm:"size:36;not null;index;uniqueIndex:idx_group_member_unique"`
	User    User   `gorm:"foreignKey:UserID"`
	Group   Group  `gorm:"foreignKey:GroupID"`
}
