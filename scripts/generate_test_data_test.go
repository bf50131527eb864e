package main

import (
	"context"
	"testing"
	"time"

	"github.com/asobot/internal/db"
	"github.com/asobot/internal/service"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSeedTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file:demo-seed?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return gdb
}

func TestSeedDemoDataCoversEveryPhase(t *testing.T) {
	gdb := setupSeedTestDB(t)
	svc := service.NewServices(gdb, logDispatcher{logger: zerolog.Nop()}, service.Options{})
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	summary, err := seedDemoData(context.Background(), svc, now)
	if err != nil {
		t.Fatalf("seedDemoData returned error: %v", err)
	}
	if summary.Skipped || summary.Users != 4 || summary.Wishes != 4 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	var wishes []db.Wish
	if err := gdb.Preload("Candidates").Where("group_id = ?", summary.GroupID).Find(&wishes).Error; err != nil {
		t.Fatalf("failed to list wishes: %v", err)
	}
	phases := make(map[string]int)
	for _, w := range wishes {
		phases[string(service.PhaseOf(w).Kind())]++
	}
	for _, kind := range []string{"open", "schedule_poll", "attendance", "confirmed"} {
		if phases[kind] != 1 {
			t.Fatalf("expected one wish in phase %s, got %v", kind, phases)
		}
	}

	again, err := seedDemoData(context.Background(), svc, now)
	if err != nil {
		t.Fatalf("second seedDemoData returned error: %v", err)
	}
	if !again.Skipped || again.GroupID != summary.GroupID {
		t.Fatalf("expected rerun to be skipped, got %+v", again)
	}
}
