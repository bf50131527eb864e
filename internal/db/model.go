package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Model 是所有表共用的主键与时间戳，主键为 UUID 字符串。
// 不使用软删除：投票、回答、兴趣都依赖唯一索引，软删除的行会阻塞重新插入。
type Model struct {
	ID        string `gorm:"primaryKey;size:36"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate 在插入前补齐 UUID。
func (m *Model) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

const dateLayout = "2006-01-02"

// NewDate 取 t 的年月日构造 UTC 零点的日期值。
func NewDate(t time.Time) *datatypes.Date {
	y, m, d := t.Date()
	date := datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	return &date
}

// ParseDate 解析 YYYY-MM-DD。
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, raw, time.UTC)
}

// DateValue 返回日期的 time.Time 形式，nil 时 ok 为 false。
func DateValue(d *datatypes.Date) (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	return time.Time(*d).UTC(), true
}

// FormatDate 将日期格式化为 YYYY-MM-DD，nil 返回空字符串。
func FormatDate(d *datatypes.Date) string {
	t, ok := DateValue(d)
	if !ok {
		return ""
	}
	return t.Format(dateLayout)
}

// SameDate 比较两个时间的日历日期（UTC）。
func SameDate(a, b time.Time) bool {
	return a.UTC().Format(dateLayout) == b.UTC().Format(dateLayout)
}
