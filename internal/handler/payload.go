package handler

import (
	"bytes"
	"fmt"
	"time"

	"github.com/asobot/internal/db"
	"github.com/asobot/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gorm.io/datatypes"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()
)

func renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return string(sanitizer.SanitizeBytes(buf.Bytes())), nil
}

func formatClock(t *datatypes.Time) any {
	if t == nil {
		return nil
	}
	d := time.Duration(*t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func userPayload(u db.User) gin.H {
	return gin.H{
		"id":          u.ID,
		"lineUserId":  u.LineUserID,
		"displayName": u.DisplayName,
		"pictureUrl":  u.PictureURL,
	}
}

func groupPayload(g db.Group) gin.H {
	return gin.H{
		"id":             g.ID,
		"lineGroupId":    g.LineGroupID,
		"name":           g.Name,
		"lastActivityAt": formatTimePtr(g.LastActivityAt),
	}
}

func settingPayload(s db.GroupSetting) gin.H {
	return gin.H{
		"groupId":             s.GroupID,
		"notifyScheduleStart": s.NotifyScheduleStart,
		"notifyReminder":      s.NotifyReminder,
		"notifyConfirmed":     s.NotifyConfirmed,
		"suggestEnabled":      s.SuggestEnabled,
		"suggestIntervalDays": s.SuggestIntervalDays,
		"suggestMinInterests": s.SuggestMinInterests,
		"language":            s.Language,
	}
}

// wishPayload serializes a wish; viewerID marks whether the viewer is interested.
// Anonymous wishes hide their creator from everyone except the creator.
func (a *API) wishPayload(w db.Wish, viewerID string) gin.H {
	descriptionHTML, err := renderMarkdown(w.Description)
	if err != nil {
		a.logger.Warn().Err(err).Str("wish_id", w.ID).Msg("render wish description failed")
		descriptionHTML = ""
	}

	interested := false
	for _, interest := range w.Interests {
		if interest.UserID == viewerID {
			interested = true
			break
		}
	}

	var creator any
	if !w.IsAnonymous || (viewerID != "" && viewerID == w.CreatedBy) {
		if w.Creator.ID != "" {
			creator = userPayload(w.Creator)
		}
	}

	return gin.H{
		"id":              w.ID,
		"groupId":         w.GroupID,
		"title":           w.Title,
		"description":     w.Description,
		"descriptionHtml": descriptionHTML,
		"isAnonymous":     w.IsAnonymous,
		"creator":         creator,
		"isMine":          viewerID != "" && viewerID == w.CreatedBy,
		"startDate":       formatDatePtr(db.FormatDate(w.StartDate)),
		"startTime":       formatClock(w.StartTime),
		"endDate":         formatDatePtr(db.FormatDate(w.EndDate)),
		"endTime":         formatClock(w.EndTime),
		"isAllDay":        w.IsAllDay,
		"status":          w.Status,
		"phase":           service.PhaseOf(w).Kind(),
		"votingStarted":   w.VotingStarted,
		"voteDeadline":    formatTimePtr(w.VoteDeadline),
		"confirmedDate":   formatDatePtr(db.FormatDate(w.ConfirmedDate)),
		"interestCount":   len(w.Interests),
		"interested":      interested,
		"createdAt":       w.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (a *API) wishListPayload(wishes []db.Wish, viewerID string) []gin.H {
	items := make([]gin.H, 0, len(wishes))
	for _, w := range wishes {
		items = append(items, a.wishPayload(w, viewerID))
	}
	return items
}

func candidatePayload(t service.CandidateTally) gin.H {
	votes := make([]gin.H, 0, len(t.Candidate.Votes))
	for _, v := range t.Candidate.Votes {
		votes = append(votes, gin.H{
			"availability": v.Availability,
			"user":         userPayload(v.User),
		})
	}
	return gin.H{
		"id":     t.Candidate.ID,
		"date":   time.Time(t.Candidate.Date).UTC().Format("2006-01-02"),
		"counts": t.Counts,
		"ok":     t.OK(),
		"votes":  votes,
	}
}
