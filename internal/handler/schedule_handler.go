package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/asobot/internal/db"
	"github.com/asobot/internal/service"
	"github.com/gin-gonic/gin"
)

type schedulePollRequest struct {
	Dates    []string `json:"dates" binding:"required"`
	Deadline string   `json:"deadline"`
}

type votesRequest struct {
	LineUserID string              `json:"lineUserId" binding:"required"`
	Votes      []service.VoteInput `json:"votes"`
}

type attendanceRequest struct {
	Deadline string `json:"deadline"`
}

type responseRequest struct {
	LineUserID string `json:"lineUserId" binding:"required"`
	Response   string `json:"response"`
}

type confirmRequest struct {
	LineUserID string `json:"lineUserId" binding:"required"`
	Date       string `json:"date" binding:"required"`
}

// GetSchedule returns the candidates of a wish with per-option counts and the viewer's votes.
func (a *API) GetSchedule(c *gin.Context) {
	wish, err := a.wishes.Get(c.Param("wishId"))
	if err != nil {
		a.respondServiceError(c, err, "failed to get wish")
		return
	}
	tallies, err := a.schedule.TallyByCandidate(wish.ID)
	if err != nil {
		a.respondServiceError(c, err, "failed to load schedule")
		return
	}

	viewer := a.viewerID(c.Query("lineUserId"))
	candidates := make([]gin.H, 0, len(tallies))
	myVotes := gin.H{}
	for _, t := range tallies {
		candidates = append(candidates, candidatePayload(t))
		for _, v := range t.Candidate.Votes {
			if viewer != "" && v.UserID == viewer {
				myVotes[t.Candidate.ID] = v.Availability
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"wish":           a.wishPayload(*wish, viewer),
		"candidates":     candidates,
		"myVotes":        myVotes,
		"availabilities": db.Availabilities,
	})
}

// CreateSchedulePoll replaces the candidate set of an undated wish and starts the poll.
func (a *API) CreateSchedulePoll(c *gin.Context) {
	var req schedulePollRequest
	if !bindJSON(c, &req, "dates are required") {
		return
	}

	dates := make([]time.Time, 0, len(req.Dates))
	for _, raw := range req.Dates {
		d, err := parseOptionalDate(raw, "date")
		if err != nil || d == nil {
			respondError(c, http.StatusBadRequest, "invalid date")
			return
		}
		dates = append(dates, *d)
	}
	deadline, err := parseDeadline(req.Deadline, a.location)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	candidates, err := a.wishes.CreateSchedulePoll(c.Request.Context(), c.Param("wishId"), dates, deadline)
	if err != nil {
		a.respondServiceError(c, err, "failed to start schedule poll")
		return
	}

	items := make([]gin.H, 0, len(candidates))
	for _, candidate := range candidates {
		items = append(items, candidatePayload(service.CandidateTally{Candidate: candidate, Counts: map[string]int{}}))
	}
	c.JSON(http.StatusOK, gin.H{"candidates": items})
}

// CastVotes applies the latest availability per candidate for the requester.
func (a *API) CastVotes(c *gin.Context) {
	var req votesRequest
	if !bindJSON(c, &req, "lineUserId is required") {
		return
	}
	user, ok := a.requester(c, req.LineUserID)
	if !ok {
		return
	}

	wish, err := a.wishes.Get(c.Param("wishId"))
	if err != nil {
		a.respondServiceError(c, err, "failed to get wish")
		return
	}
	if _, polling := service.PhaseOf(*wish).(service.SchedulePollPhase); !polling {
		a.respondServiceError(c, service.ErrInvalidTransition, "")
		return
	}

	if err := a.schedule.CastVotes(wish.ID, user.ID, req.Votes); err != nil {
		a.respondServiceError(c, err, "failed to save votes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "votes saved", "count": len(req.Votes)})
}

// LeadingCandidates returns every candidate tied at the highest ok count.
func (a *API) LeadingCandidates(c *gin.Context) {
	wishID := c.Param("wishId")
	if _, err := a.wishes.Get(wishID); err != nil {
		a.respondServiceError(c, err, "failed to get wish")
		return
	}
	leading, err := a.schedule.LeadingCandidates(wishID)
	if err != nil {
		a.respondServiceError(c, err, "failed to tally votes")
		return
	}

	items := make([]gin.H, 0, len(leading))
	for _, t := range leading {
		items = append(items, candidatePayload(t))
	}
	c.JSON(http.StatusOK, gin.H{"leading": items})
}

// StartAttendance opens the ok/maybe/ng confirmation for a dated wish.
func (a *API) StartAttendance(c *gin.Context) {
	// the deadline is optional, so a bare POST starts the confirmation
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid attendance payload")
		return
	}
	deadline, err := parseDeadline(req.Deadline, a.location)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	wish, err := a.wishes.StartAttendanceConfirmation(c.Request.Context(), c.Param("wishId"), deadline)
	if err != nil {
		a.respondServiceError(c, err, "failed to start attendance confirmation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"wish": a.wishPayload(*wish, "")})
}

// GetResponses returns the attendance answers, their tally and the members who have not answered.
func (a *API) GetResponses(c *gin.Context) {
	wish, err := a.wishes.Get(c.Param("wishId"))
	if err != nil {
		a.respondServiceError(c, err, "failed to get wish")
		return
	}

	responses, err := a.responses.ListResponses(wish.ID)
	if err != nil {
		a.respondServiceError(c, err, "failed to list responses")
		return
	}
	tally, err := a.responses.TallyResponses(wish.ID)
	if err != nil {
		a.respondServiceError(c, err, "failed to tally responses")
		return
	}
	unanswered, err := a.responses.UnansweredForWish(wish)
	if err != nil {
		a.respondServiceError(c, err, "failed to list unanswered members")
		return
	}

	viewer := a.viewerID(c.Query("lineUserId"))
	mine := ""
	items := make([]gin.H, 0, len(responses))
	for _, r := range responses {
		if viewer != "" && r.UserID == viewer {
			mine = r.Response
		}
		items = append(items, gin.H{"response": r.Response, "user": userPayload(r.User)})
	}
	pending := make([]gin.H, 0, len(unanswered))
	for _, u := range unanswered {
		pending = append(pending, userPayload(u))
	}

	c.JSON(http.StatusOK, gin.H{
		"wish":       a.wishPayload(*wish, viewer),
		"responses":  items,
		"tally":      gin.H{"ok": tally.OK, "maybe": tally.Maybe, "ng": tally.NG, "total": tally.Total()},
		"unanswered": pending,
		"myResponse": mine,
	})
}

// SetResponse records the requester's answer; an empty response clears it.
func (a *API) SetResponse(c *gin.Context) {
	var req responseRequest
	if !bindJSON(c, &req, "lineUserId is required") {
		return
	}
	user, ok := a.requester(c, req.LineUserID)
	if !ok {
		return
	}

	wish, err := a.wishes.Get(c.Param("wishId"))
	if err != nil {
		a.respondServiceError(c, err, "failed to get wish")
		return
	}
	if _, attending := service.PhaseOf(*wish).(service.AttendancePhase); !attending {
		a.respondServiceError(c, service.ErrInvalidTransition, "")
		return
	}

	if err := a.responses.SetResponse(wish.ID, user.ID, req.Response); err != nil {
		a.respondServiceError(c, err, "failed to save response")
		return
	}
	tally, err := a.responses.TallyResponses(wish.ID)
	if err != nil {
		a.respondServiceError(c, err, "failed to tally responses")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response": req.Response,
		"tally":    gin.H{"ok": tally.OK, "maybe": tally.Maybe, "ng": tally.NG, "total": tally.Total()},
	})
}

// ConfirmDate fixes the final date; only the creator may confirm.
func (a *API) ConfirmDate(c *gin.Context) {
	var req confirmRequest
	if !bindJSON(c, &req, "lineUserId and date are required") {
		return
	}
	date, err := parseOptionalDate(req.Date, "date")
	if err != nil || date == nil {
		respondError(c, http.StatusBadRequest, "invalid date")
		return
	}
	user, ok := a.requester(c, req.LineUserID)
	if !ok {
		return
	}

	wish, err := a.wishes.ConfirmDate(c.Request.Context(), c.Param("wishId"), user.ID, *date)
	if err != nil {
		a.respondServiceError(c, err, "failed to confirm date")
		return
	}
	c.JSON(http.StatusOK, gin.H{"wish": a.wishPayload(*wish, user.ID)})
}
