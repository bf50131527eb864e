package handler

import (
	"net/http"
	"time"

	"github.com/asobot/internal/db"
	"github.com/asobot/internal/service"
	"github.com/gin-gonic/gin"
)

type eventRequest struct {
	LineUserID     string   `json:"lineUserId" binding:"required"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	CandidateDates []string `json:"candidateDates"`
}

type eventVote struct {
	Date         string `json:"date"`
	Availability string `json:"availability"`
}

type eventVotesRequest struct {
	LineUserID string      `json:"lineUserId" binding:"required"`
	Votes      []eventVote `json:"votes" binding:"required"`
}

type eventCloseRequest struct {
	LineUserID string `json:"lineUserId" binding:"required"`
	Date       string `json:"date"`
}

// ListEvents returns the events of a group, newest first.
func (a *API) ListEvents(c *gin.Context) {
	events, err := a.events.ListForGroup(c.Param("groupId"))
	if err != nil {
		a.respondServiceError(c, err, "failed to list events")
		return
	}
	viewer := a.viewerID(c.Query("lineUserId"))
	items := make([]gin.H, 0, len(events))
	for _, e := range events {
		items = append(items, a.eventPayload(e, viewer))
	}
	c.JSON(http.StatusOK, gin.H{"events": items})
}

// CreateEvent starts a standalone date poll in the group.
func (a *API) CreateEvent(c *gin.Context) {
	var req eventRequest
	if !bindJSON(c, &req, "lineUserId is required") {
		return
	}
	dates := make([]time.Time, 0, len(req.CandidateDates))
	for _, raw := range req.CandidateDates {
		d, err := parseOptionalDate(raw, "candidate date")
		if err != nil || d == nil {
			respondError(c, http.StatusBadRequest, "invalid candidate date")
			return
		}
		dates = append(dates, *d)
	}
	user, ok := a.creator(c, req.LineUserID)
	if !ok {
		return
	}

	event, err := a.events.Create(c.Param("groupId"), user.ID, service.EventInput{
		Title:       req.Title,
		Description: req.Description,
		Dates:       dates,
	})
	if err != nil {
		a.respondServiceError(c, err, "failed to create event")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": a.eventPayload(*event, user.ID)})
}

func (a *API) GetEvent(c *gin.Context) {
	event, err := a.events.Get(c.Param("eventId"))
	if err != nil {
		a.respondServiceError(c, err, "failed to get event")
		return
	}
	viewer := a.viewerID(c.Query("lineUserId"))
	c.JSON(http.StatusOK, gin.H{"event": a.eventPayload(*event, viewer)})
}

// ListEventVotes returns every vote of an event.
func (a *API) ListEventVotes(c *gin.Context) {
	votes, err := a.events.Votes(c.Param("eventId"))
	if err != nil {
		a.respondServiceError(c, err, "failed to list votes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": eventVotesPayload(votes)})
}

// ReplaceEventVotes swaps the requester's votes for the submitted set.
func (a *API) ReplaceEventVotes(c *gin.Context) {
	var req eventVotesRequest
	if !bindJSON(c, &req, "lineUserId and votes are required") {
		return
	}
	votes := make([]service.EventVoteInput, 0, len(req.Votes))
	for _, v := range req.Votes {
		d, err := parseOptionalDate(v.Date, "date")
		if err != nil || d == nil {
			respondError(c, http.StatusBadRequest, "invalid date")
			return
		}
		votes = append(votes, service.EventVoteInput{Date: *d, Availability: v.Availability})
	}
	user, ok := a.requester(c, req.LineUserID)
	if !ok {
		return
	}

	saved, err := a.events.ReplaceVotes(c.Param("eventId"), user.ID, votes)
	if err != nil {
		a.respondServiceError(c, err, "failed to save votes")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"votes": eventVotesPayload(saved)})
}

// ConfirmEvent fixes the event on one of its candidate dates.
func (a *API) ConfirmEvent(c *gin.Context) {
	var req eventCloseRequest
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

	event, err := a.events.Confirm(c.Param("eventId"), user.ID, *date)
	if err != nil {
		a.respondServiceError(c, err, "failed to confirm event")
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": a.eventPayload(*event, user.ID)})
}

func (a *API) CancelEvent(c *gin.Context) {
	var req eventCloseRequest
	if !bindJSON(c, &req, "lineUserId is required") {
		return
	}
	user, ok := a.requester(c, req.LineUserID)
	if !ok {
		return
	}

	event, err := a.events.Cancel(c.Param("eventId"), user.ID)
	if err != nil {
		a.respondServiceError(c, err, "failed to cancel event")
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": a.eventPayload(*event, user.ID)})
}

func eventVotesPayload(votes []db.EventVote) []gin.H {
	items := make([]gin.H, 0, len(votes))
	for _, v := range votes {
		items = append(items, gin.H{
			"date":         time.Time(v.Date).UTC().Format("2006-01-02"),
			"availability": v.Availability,
			"user":         userPayload(v.User),
		})
	}
	return items
}

func eventTallyPayload(tallies []service.EventDateTally) []gin.H {
	items := make([]gin.H, 0, len(tallies))
	for _, t := range tallies {
		items = append(items, gin.H{
			"date":  t.Date.Format("2006-01-02"),
			"ok":    t.Tally.OK,
			"maybe": t.Tally.Maybe,
			"ng":    t.Tally.NG,
			"total": t.Tally.Total(),
		})
	}
	return items
}

// eventPayload serializes an event with per-date counts; myVotes maps date to the viewer's answer.
func (a *API) eventPayload(e db.Event, viewerID string) gin.H {
	descriptionHTML, err := renderMarkdown(e.Description)
	if err != nil {
		a.logger.Warn().Err(err).Str("event_id", e.ID).Msg("render event description failed")
		descriptionHTML = ""
	}

	dates := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		dates = append(dates, time.Time(c.Date).UTC().Format("2006-01-02"))
	}
	myVotes := gin.H{}
	for _, v := range e.Votes {
		if viewerID != "" && v.UserID == viewerID {
			myVotes[time.Time(v.Date).UTC().Format("2006-01-02")] = v.Availability
		}
	}

	var creator any
	if e.Creator.ID != "" {
		creator = userPayload(e.Creator)
	}
	tallies := service.TallyEvent(e)

	return gin.H{
		"id":              e.ID,
		"groupId":         e.GroupID,
		"title":           e.Title,
		"description":     e.Description,
		"descriptionHtml": descriptionHTML,
		"status":          e.Status,
		"creator":         creator,
		"isMine":          viewerID != "" && viewerID == e.CreatedBy,
		"candidateDates":  dates,
		"tallies":         eventTallyPayload(tallies),
		"bestDates":       eventTallyPayload(service.BestEventDates(tallies)),
		"votes":           eventVotesPayload(e.Votes),
		"myVotes":         myVotes,
		"confirmedDate":   formatDatePtr(db.FormatDate(e.ConfirmedDate)),
		"createdAt":       e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
