package service

import (
	"errors"
	"sort"

	"github.com/asobot/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InterestService 维护“想去”标记。
type InterestService struct {
	db *gorm.DB
}

// WishInterest 是愿望及其想去人数。
type WishInterest struct {
	Wish  db.Wish
	Count int
}

func NewInterestService(gdb *gorm.DB) *InterestService {
	return &InterestService{db: gdb}
}

func (s *InterestService) findWish(wishID string) (*db.Wish, error) {
	var wish db.Wish
	if err := s.db.Where("id = ?", wishID).First(&wish).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWishNotFound
		}
		return nil, dependency("find wish", err)
	}
	return &wish, nil
}

// Add 标记想去。已存在时唯一约束冲突被吞掉，视为成功。
// 已定日期、出欠确认中或已确定的愿望返回 ErrInvalidTransition。
func (s *InterestService) Add(wishID, userID string) error {
	wish, err := s.findWish(wishID)
	if err != nil {
		return err
	}
	if err := checkInterest(PhaseOf(*wish)); err != nil {
		return err
	}

	interest := db.Interest{WishID: wishID, UserID: userID}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wish_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&interest).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return dependency("add interest", err)
	}
	return nil
}

// Remove 取消想去，记录不存在时不报错。
func (s *InterestService) Remove(wishID, userID string) error {
	err := s.db.Where("wish_id = ? AND user_id = ?", wishID, userID).Delete(&db.Interest{}).Error
	if err != nil {
		return dependency("remove interest", err)
	}
	return nil
}

// SetInterest 按目标状态添加或移除，重复调用结果不变。
func (s *InterestService) SetInterest(wishID, userID string, interested bool) error {
	if interested {
		return s.Add(wishID, userID)
	}
	return s.Remove(wishID, userID)
}

// Toggle 切换当前用户的想去状态，返回切换后的状态。
func (s *InterestService) Toggle(wishID, userID string) (bool, error) {
	has, err := s.Has(wishID, userID)
	if err != nil {
		return false, err
	}
	if err := s.SetInterest(wishID, userID, !has); err != nil {
		return false, err
	}
	return !has, nil
}

// Has 判断用户是否已标记想去。
func (s *InterestService) Has(wishID, userID string) (bool, error) {
	var count int64
	err := s.db.Model(&db.Interest{}).Where("wish_id = ? AND user_id = ?", wishID, userID).Count(&count).Error
	if err != nil {
		return false, dependency("check interest", err)
	}
	return count > 0, nil
}

// Count 返回愿望的想去人数。
func (s *InterestService) Count(wishID string) (int, error) {
	var count int64
	if err := s.db.Model(&db.Interest{}).Where("wish_id = ?", wishID).Count(&count).Error; err != nil {
		return 0, dependency("count interests", err)
	}
	return int(count), nil
}

// Counts 批量统计多个愿望的想去人数，没有记录的愿望计为 0。
func (s *InterestService) Counts(wishIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(wishIDs))
	if len(wishIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		WishID string
		Total  int
	}
	err := s.db.Model(&db.Interest{}).
		Select("wish_id, COUNT(*) AS total").
		Where("wish_id IN ?", wishIDs).
		Group("wish_id").
		Scan(&rows).Error
	if err != nil {
		return nil, dependency("count interests", err)
	}

	for _, id := range wishIDs {
		counts[id] = 0
	}
	for _, row := range rows {
		counts[row.WishID] = row.Total
	}
	return counts, nil
}

// RankPopular 过滤出未定日期且 open 的愿望中人数不低于 minCount 的，按人数降序取前 topN。
// 人数相同时保持输入顺序；topN<=0 表示不限。
func RankPopular(wishes []WishInterest, minCount, topN int) []WishInterest {
	ranked := make([]WishInterest, 0, len(wishes))
	for _, w := range wishes {
		if w.Wish.Status != db.WishStatusOpen || w.Wish.StartDate != nil {
			continue
		}
		if w.Count < minCount {
			continue
		}
		ranked = append(ranked, w)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// PopularForGroup 加载群组内未定日期的 open 愿望并排序。
func (s *InterestService) PopularForGroup(groupID string, minCount, topN int) ([]WishInterest, error) {
	var wishes []db.Wish
	err := s.db.Where("group_id = ? AND status = ? AND start_date IS NULL", groupID, db.WishStatusOpen).
		Order("created_at DESC").
		Find(&wishes).Error
	if err != nil {
		return nil, dependency("list open wishes", err)
	}

	ids := make([]string, 0, len(wishes))
	for _, w := range wishes {
		ids = append(ids, w.ID)
	}
	counts, err := s.Counts(ids)
	if err != nil {
		return nil, err
	}

	items := make([]WishInterest, 0, len(wishes))
	for _, w := range wishes {
		items = append(items, WishInterest{Wish: w, Count: counts[w.ID]})
	}
	return RankPopular(items, minCount, topN), nil
}
