package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asobot/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipProvider 提供群组成员名单，只读。
type MembershipProvider interface {
	Members(groupID string) ([]db.User, error)
	MemberCount(groupID string) (int, error)
}

// GroupService 管理用户、群组与成员关系。
type GroupService struct {
	db *gorm.DB
}

// RegisterUserInput 是 LIFF 打开时上报的用户信息；LineGroupID 与 GroupID 二选一。
type RegisterUserInput struct {
	LineUserID  string `validate:"required,max=64"`
	DisplayName string `validate:"max=200"`
	PictureURL  string `validate:"omitempty,url,max=500"`
	LineGroupID string `validate:"max=64"`
	GroupID     string `validate:"max=36"`
}

// Membership 是用户所属群组的一条记录。
type Membership struct {
	GroupID string
	UserID  string
	Group   db.Group
}

func NewGroupService(gdb *gorm.DB) *GroupService {
	return &GroupService{db: gdb}
}

// EnsureGroup 按 LINE 群组 ID 获取群组，不存在时创建。
func (s *GroupService) EnsureGroup(lineGroupID, name string) (*db.Group, error) {
	lineGroupID = strings.TrimSpace(lineGroupID)
	if lineGroupID == "" {
		return nil, fmt.Errorf("%w: line group id is required", ErrValidation)
	}

	group := db.Group{LineGroupID: lineGroupID, Name: strings.TrimSpace(name)}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "line_group_id"}},
		DoNothing: true,
	}).Create(&group).Error
	if err != nil {
		return nil, dependency("ensure group", err)
	}

	var stored db.Group
	if err := s.db.Where("line_group_id = ?", lineGroupID).First(&stored).Error; err != nil {
		return nil, dependency("reload group", err)
	}
	if group.Name != "" && stored.Name != group.Name {
		if err := s.db.Model(&stored).Update("name", group.Name).Error; err != nil {
			return nil, dependency("rename group", err)
		}
	}
	return &stored, nil
}

// RegisterUser 写入或更新用户资料，能解析出群组时同时登记成员关系。
func (s *GroupService) RegisterUser(input RegisterUserInput) (*db.User, *db.Group, error) {
	input.LineUserID = strings.TrimSpace(input.LineUserID)
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.PictureURL = strings.TrimSpace(input.PictureURL)
	if err := validateStruct(input); err != nil {
		return nil, nil, err
	}

	user := db.User{
		LineUserID:  input.LineUserID,
		DisplayName: input.DisplayName,
		PictureURL:  input.PictureURL,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "line_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "picture_url", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return nil, nil, dependency("upsert user", err)
	}

	var stored db.User
	if err := s.db.Where("line_user_id = ?", input.LineUserID).First(&stored).Error; err != nil {
		return nil, nil, dependency("reload user", err)
	}

	group, err := s.resolveGroup(input.GroupID, input.LineGroupID)
	if err != nil {
		return nil, nil, err
	}
	if group == nil {
		return &stored, nil, nil
	}

	if err := s.AddMember(group.ID, stored.ID); err != nil {
		return nil, nil, err
	}
	return &stored, group, nil
}

func (s *GroupService) resolveGroup(groupID, lineGroupID string) (*db.Group, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID != "" {
		return s.Get(groupID)
	}
	if strings.TrimSpace(lineGroupID) != "" {
		return s.EnsureGroup(lineGroupID, "")
	}
	return nil, nil
}

// AddMember 登记成员关系，重复登记视为成功。
func (s *GroupService) AddMember(groupID, userID string) error {
	member := db.GroupMember{GroupID: groupID, UserID: userID}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&member).Error
	if err != nil {
		return dependency("add group member", err)
	}
	return nil
}

// Get 根据主键获取群组。
func (s *GroupService) Get(groupID string) (*db.Group, error) {
	var group db.Group
	if err := s.db.First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, dependency("get group", err)
	}
	return &group, nil
}

// List 返回全部群组。
func (s *GroupService) List() ([]db.Group, error) {
	var groups []db.Group
	if err := s.db.Order("created_at ASC").Find(&groups).Error; err != nil {
		return nil, dependency("list groups", err)
	}
	return groups, nil
}

// GroupByLineID 根据 LINE 群组 ID 查询群组。
func (s *GroupService) GroupByLineID(lineGroupID string) (*db.Group, error) {
	var group db.Group
	if err := s.db.Where("line_group_id = ?", strings.TrimSpace(lineGroupID)).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, dependency("get group by line id", err)
	}
	return &group, nil
}

// UserByLineID 根据 LINE 用户 ID 查询用户。
func (s *GroupService) UserByLineID(lineUserID string) (*db.User, error) {
	var user db.User
	if err := s.db.Where("line_user_id = ?", strings.TrimSpace(lineUserID)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, dependency("get user by line id", err)
	}
	return &user, nil
}

// UserGroups 列出用户所属的全部群组，最近活跃的在前。
func (s *GroupService) UserGroups(lineUserID string) ([]Membership, error) {
	user, err := s.UserByLineID(lineUserID)
	if err != nil {
		return nil, err
	}

	var members []db.GroupMember
	err = s.db.Preload("Group").
		Joins("JOIN chat_groups ON chat_groups.id = group_members.group_id").
		Where("group_members.user_id = ?", user.ID).
		Order("chat_groups.last_activity_at DESC").
		Order("chat_groups.created_at DESC").
		Find(&members).Error
	if err != nil {
		return nil, dependency("list user groups", err)
	}

	result := make([]Membership, 0, len(members))
	for _, m := range members {
		result = append(result, Membership{GroupID: m.GroupID, UserID: m.UserID, Group: m.Group})
	}
	return result, nil
}

// Members 返回群组成员，按加入顺序排列。
func (s *GroupService) Members(groupID string) ([]db.User, error) {
	var users []db.User
	err := s.db.Model(&db.User{}).
		Joins("JOIN group_members ON group_members.user_id = users.id").
		Where("group_members.group_id = ?", groupID).
		Order("group_members.created_at ASC").
		Find(&users).Error
	if err != nil {
		return nil, dependency("list group members", err)
	}
	return users, nil
}

// MemberCount 返回群组成员数。
func (s *GroupService) MemberCount(groupID string) (int, error) {
	var count int64
	if err := s.db.Model(&db.GroupMember{}).Where("group_id = ?", groupID).Count(&count).Error; err != nil {
		return 0, dependency("count group members", err)
	}
	return int(count), nil
}

// TouchActivity 刷新群组最近活跃时间。
func (s *GroupService) TouchActivity(groupID string, at time.Time) error {
	if err := s.db.Model(&db.Group{}).Where("id = ?", groupID).Update("last_activity_at", at.UTC()).Error; err != nil {
		return dependency("touch group activity", err)
	}
	return nil
}
