package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/asobot/internal/db"
	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// parseOptionalDate parses YYYY-MM-DD; an empty string yields nil.
func parseOptionalDate(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := db.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", field)
	}
	return &t, nil
}

// parseDeadline accepts RFC 3339 or a bare date, which means the end of that day in loc.
func parseDeadline(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		utc := t.UTC()
		return &utc, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid deadline")
	}
	end := day.Add(24*time.Hour - time.Second).UTC()
	return &end, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDatePtr(d string) any {
	if d == "" {
		return nil
	}
	return d
}
