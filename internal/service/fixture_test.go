package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asobot/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakePush struct {
	To   string
	Text string
}

type fakeDispatcher struct {
	mu      sync.Mutex
	pushes  []fakePush
	failFor map[string]error
}

func (f *fakeDispatcher) Push(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[to]; err != nil {
		return err
	}
	f.pushes = append(f.pushes, fakePush{To: to, Text: text})
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeDispatcher) last() fakePush {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pushes) == 0 {
		return fakePush{}
	}
	return f.pushes[len(f.pushes)-1]
}

type fixture struct {
	db         *gorm.DB
	now        time.Time
	dispatcher *fakeDispatcher
	groups     *GroupService
	settings   *GroupSettingService
	notifier   *NotificationService
	wishes     *WishService
	schedule   *ScheduleService
	responses  *ResponseService
	interests  *InterestService
	events     *EventService
	scanner    *Scanner
}

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return gdb
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb := setupServiceTestDB(t)
	now := time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	f := &fixture{db: gdb, now: now, dispatcher: &fakeDispatcher{failFor: map[string]error{}}}
	f.groups = NewGroupService(gdb)
	f.settings = NewGroupSettingService(gdb)
	f.notifier = NewNotificationService(gdb, f.settings, f.groups, f.dispatcher)
	f.notifier.SetLIFFID("liff-test")
	f.notifier.SetClock(clock)
	f.notifier.SetPicker(func(int) int { return 0 })
	f.wishes = NewWishService(gdb, f.notifier)
	f.wishes.SetClock(clock)
	f.schedule = NewScheduleService(gdb)
	f.responses = NewResponseService(gdb, f.groups)
	f.interests = NewInterestService(gdb)
	f.events = NewEventService(gdb)
	f.scanner = NewScanner(gdb, f.notifier, f.settings, f.groups, f.groups, f.interests)
	return f
}

func (f *fixture) group(t *testing.T, lineGroupID string) *db.Group {
	t.Helper()
	group, err := f.groups.EnsureGroup(lineGroupID, "group "+lineGroupID)
	if err != nil {
		t.Fatalf("EnsureGroup returned error: %v", err)
	}
	return group
}

func (f *fixture) member(t *testing.T, group *db.Group, lineUserID string) *db.User {
	t.Helper()
	user, _, err := f.groups.RegisterUser(RegisterUserInput{
		LineUserID:  lineUserID,
		DisplayName: "user " + lineUserID,
		GroupID:     group.ID,
	})
	if err != nil {
		t.Fatalf("RegisterUser returned error: %v", err)
	}
	return user
}

func (f *fixture) wish(t *testing.T, group *db.Group, creator *db.User, title string, start *time.Time) *db.Wish {
	t.Helper()
	wish, err := f.wishes.Create(group.ID, creator.ID, WishInput{Title: title, StartDate: start})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return wish
}

func (f *fixture) countLogs(t *testing.T, wishID, notificationType string) int64 {
	t.Helper()
	var count int64
	query := f.db.Model(&db.NotificationLog{}).Where("notification_type = ?", notificationType)
	if wishID != "" {
		query = query.Where("wish_id = ?", wishID)
	}
	if err := query.Count(&count).Error; err != nil {
		t.Fatalf("failed to count notification logs: %v", err)
	}
	return count
}

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := db.ParseDate(raw)
	if err != nil {
		t.Fatalf("ParseDate(%q) returned error: %v", raw, err)
	}
	return d
}

// assertWishInvariants 检查所有愿望的状态字段组合。
func assertWishInvariants(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	var wishes []db.Wish
	if err := gdb.Find(&wishes).Error; err != nil {
		t.Fatalf("failed to load wishes: %v", err)
	}
	for _, w := range wishes {
		if (w.Status == db.WishStatusConfirmed) != (w.ConfirmedDate != nil) {
			t.Fatalf("wish %s breaks confirmed invariant: status=%s confirmed_date=%v", w.ID, w.Status, w.ConfirmedDate)
		}
		if w.VotingStarted && w.StartDate == nil {
			t.Fatalf("wish %s has voting_started without start_date", w.ID)
		}
	}
}
