package service

import (
	"errors"
	"strings"

	"github.com/asobot/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResponseService 管理参加确认阶段的 ok/maybe/ng 回答。
type ResponseService struct {
	db      *gorm.DB
	members MembershipProvider
}

// ResponseTally 是三种回答的计数。
type ResponseTally struct {
	OK    int `json:"ok"`
	Maybe int `json:"maybe"`
	NG    int `json:"ng"`
}

// Total 返回已回答人数。
func (t ResponseTally) Total() int {
	return t.OK + t.Maybe + t.NG
}

func NewResponseService(gdb *gorm.DB, members MembershipProvider) *ResponseService {
	return &ResponseService{db: gdb, members: members}
}

func validResponse(value string) bool {
	switch value {
	case "", db.ResponseOK, db.ResponseMaybe, db.ResponseNG:
		return true
	default:
		return false
	}
}

// SetResponse 写入或覆盖回答；空值删除回答，回到未回答状态。
func (s *ResponseService) SetResponse(wishID, userID, value string) error {
	value = strings.TrimSpace(value)
	if !validResponse(value) {
		return ErrInvalidResponse
	}

	var wish db.Wish
	if err := s.db.Select("id").First(&wish, "id = ?", wishID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWishNotFound
		}
		return dependency("find wish", err)
	}

	if value == "" {
		if err := s.db.Where("wish_id = ? AND user_id = ?", wishID, userID).Delete(&db.WishResponse{}).Error; err != nil {
			return dependency("delete response", err)
		}
		return nil
	}

	response := db.WishResponse{WishID: wishID, UserID: userID, Response: value}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wish_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"response", "updated_at"}),
	}).Create(&response).Error
	if err != nil {
		return dependency("upsert response", err)
	}
	return nil
}

// ListResponses 返回愿望的全部回答及回答者。
func (s *ResponseService) ListResponses(wishID string) ([]db.WishResponse, error) {
	var responses []db.WishResponse
	if err := s.db.Preload("User").Where("wish_id = ?", wishID).Order("created_at ASC").Find(&responses).Error; err != nil {
		return nil, dependency("list responses", err)
	}
	return responses, nil
}

// TallyResponses 统计 ok/maybe/ng。
func (s *ResponseService) TallyResponses(wishID string) (ResponseTally, error) {
	var rows []struct {
		Response string
		Total    int
	}
	err := s.db.Model(&db.WishResponse{}).
		Select("response, COUNT(*) AS total").
		Where("wish_id = ?", wishID).
		Group("response").
		Scan(&rows).Error
	if err != nil {
		return ResponseTally{}, dependency("tally responses", err)
	}

	var tally ResponseTally
	for _, row := range rows {
		switch row.Response {
		case db.ResponseOK:
			tally.OK = row.Total
		case db.ResponseMaybe:
			tally.Maybe = row.Total
		case db.ResponseNG:
			tally.NG = row.Total
		}
	}
	return tally, nil
}

// UnansweredMembers 返回 members 中还没有回答的成员，保持原有顺序。
func (s *ResponseService) UnansweredMembers(wishID string, members []db.User) ([]db.User, error) {
	var answered []string
	if err := s.db.Model(&db.WishResponse{}).Where("wish_id = ?", wishID).Pluck("user_id", &answered).Error; err != nil {
		return nil, dependency("list answered users", err)
	}
	return excludeUsers(members, answered), nil
}

// UnansweredForWish 通过成员名单提供方取得群组成员后计算未回答者。
func (s *ResponseService) UnansweredForWish(wish *db.Wish) ([]db.User, error) {
	members, err := s.members.Members(wish.GroupID)
	if err != nil {
		return nil, err
	}
	return s.UnansweredMembers(wish.ID, members)
}

func excludeUsers(members []db.User, userIDs []string) []db.User {
	skip := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		skip[id] = struct{}{}
	}

	result := make([]db.User, 0, len(members))
	for _, m := range members {
		if _, ok := skip[m.ID]; ok {
			continue
		}
		result = append(result, m)
	}
	return result
}
