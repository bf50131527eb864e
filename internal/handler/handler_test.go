package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/asobot/internal/db"
	"github.com/asobot/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	texts []string
}

func (d *recordingDispatcher) Push(_ context.Context, _, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.texts)
}

type handlerEnv struct {
	router     *gin.Engine
	api        *API
	svc        *service.Services
	dispatcher *recordingDispatcher
}

func setupHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
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

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb := setupHandlerTestDB(t)
	dispatcher := &recordingDispatcher{}
	svc := service.NewServices(gdb, dispatcher, service.Options{LIFFID: "liff-test"})
	api := NewAPI(svc, Options{Cron: CronAuth{Secret: "s3cret"}})
	api.SetClock(func() time.Time { return time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC) })

	r := gin.New()
	r.Use(sessions.Sessions("asobot_session", cookie.NewStore([]byte("test-secret"))))
	r.POST("/api/register-user", api.RegisterUser)
	r.GET("/api/user-groups", api.UserGroups)
	r.GET("/api/cron", api.RunCron)
	r.GET("/api/session/group", api.GetSessionGroup)
	r.POST("/api/session/group", api.SetSessionGroup)
	r.GET("/api/groups/by-line-id", api.GroupByLineID)
	r.GET("/api/groups/:groupId/members", api.GroupMembers)
	r.GET("/api/groups/:groupId/settings", api.GetGroupSettings)
	r.PATCH("/api/groups/:groupId/settings", api.UpdateGroupSettings)
	r.GET("/api/groups/:groupId/wishes", api.ListWishes)
	r.POST("/api/groups/:groupId/wishes", api.CreateWish)
	r.GET("/api/groups/:groupId/wishes/popular", api.PopularWishes)
	r.GET("/api/groups/:groupId/home", api.Home)
	r.GET("/api/groups/:groupId/calendar", api.Calendar)
	r.GET("/api/wishes/:wishId", api.GetWish)
	r.PATCH("/api/wishes/:wishId", api.UpdateWish)
	r.DELETE("/api/wishes/:wishId", api.DeleteWish)
	r.POST("/api/wishes/:wishId/interest", api.AddInterest)
	r.DELETE("/api/wishes/:wishId/interest", api.RemoveInterest)
	r.GET("/api/wishes/:wishId/schedule", api.GetSchedule)
	r.POST("/api/wishes/:wishId/schedule", api.CreateSchedulePoll)
	r.POST("/api/wishes/:wishId/schedule/votes", api.CastVotes)
	r.GET("/api/wishes/:wishId/schedule/leading", api.LeadingCandidates)
	r.POST("/api/wishes/:wishId/attendance", api.StartAttendance)
	r.GET("/api/wishes/:wishId/response", api.GetResponses)
	r.POST("/api/wishes/:wishId/response", api.SetResponse)
	r.POST("/api/wishes/:wishId/confirm", api.ConfirmDate)
	r.GET("/api/groups/:groupId/events", api.ListEvents)
	r.POST("/api/groups/:groupId/events", api.CreateEvent)
	r.GET("/api/events/:eventId", api.GetEvent)
	r.GET("/api/events/:eventId/votes", api.ListEventVotes)
	r.POST("/api/events/:eventId/votes", api.ReplaceEventVotes)
	r.POST("/api/events/:eventId/confirm", api.ConfirmEvent)
	r.POST("/api/events/:eventId/cancel", api.CancelEvent)

	return &handlerEnv{router: r, api: api, svc: svc, dispatcher: dispatcher}
}

func (e *handlerEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

// register creates a user in the LINE group and returns the internal group id.
func (e *handlerEnv) register(t *testing.T, lineUserID, lineGroupID string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/register-user", gin.H{
		"lineUserId":  lineUserID,
		"displayName": "user " + lineUserID,
		"lineGroupId": lineGroupID,
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("register-user returned %d: %s", rr.Code, rr.Body.String())
	}
	group, ok := decodeBody(t, rr)["group"].(map[string]any)
	if !ok {
		t.Fatalf("expected group in register response: %s", rr.Body.String())
	}
	return group["id"].(string)
}

func (e *handlerEnv) createWish(t *testing.T, groupID, lineUserID string, body gin.H) map[string]any {
	t.Helper()
	body["lineUserId"] = lineUserID
	rr := e.do(t, http.MethodPost, "/api/groups/"+groupID+"/wishes", body, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create wish returned %d: %s", rr.Code, rr.Body.String())
	}
	return decodeBody(t, rr)["wish"].(map[string]any)
}
