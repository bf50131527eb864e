package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asobot/internal/config"
	"github.com/asobot/internal/db"
	"github.com/asobot/internal/handler"
	"github.com/asobot/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type discardDispatcher struct{}

func (discardDispatcher) Push(context.Context, string, string) error { return nil }

func newTestRouter(t *testing.T, origins []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	t.Cleanup(func() { db.Close(gdb) })

	svc := service.NewServices(gdb, discardDispatcher{}, service.Options{})
	api := handler.NewAPI(svc, handler.Options{Cron: handler.CronAuth{Secret: "s3cret"}})

	cfg := config.AppConfig{
		Server: config.ServerConfig{SessionSecret: "test-secret"},
		CORS:   config.CORSConfig{AllowOrigins: origins},
	}
	return SetupRouter(api, cfg, zerolog.Nop())
}

func TestSetupRouterServesPingAndGuardsCron(t *testing.T) {
	r := newTestRouter(t, []string{"*"})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ping 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/cron", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected cron without token to be 401, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/wishes/missing", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected unknown wish to be 404, got %d", rr.Code)
	}
}

func TestSetupRouterRegistersAPIRoutes(t *testing.T) {
	r := newTestRouter(t, nil)

	registered := make(map[string]bool)
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/register-user",
		"GET /api/groups/:groupId/home",
		"PATCH /api/groups/:groupId/settings",
		"POST /api/wishes/:wishId/schedule/votes",
		"POST /api/wishes/:wishId/response",
		"POST /api/wishes/:wishId/confirm",
		"DELETE /api/wishes/:wishId/interest",
		"POST /api/groups/:groupId/events",
		"POST /api/events/:eventId/votes",
		"POST /api/events/:eventId/cancel",
	} {
		if !registered[want] {
			t.Fatalf("expected route %q to be registered", want)
		}
	}
}

func TestCORSConfig(t *testing.T) {
	if cfg := corsConfig([]string{"*"}); !cfg.AllowAllOrigins || cfg.AllowCredentials {
		t.Fatalf("expected wildcard config without credentials, got %+v", cfg)
	}

	r := newTestRouter(t, []string{"https://liff.example"})
	req := httptest.NewRequest(http.MethodOptions, "/api/user-groups", nil)
	req.Header.Set("Origin", "https://liff.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://liff.example" {
		t.Fatalf("expected allowed origin echoed, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials allowed, got %q", got)
	}
}
