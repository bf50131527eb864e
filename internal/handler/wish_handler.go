package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/asobot/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	defaultPopularLimit = 3
	maxCalendarDays     = 366
)

type wishRequest struct {
	LineUserID  string `json:"lineUserId" binding:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsAnonymous bool   `json:"isAnonymous"`
	StartDate   string `json:"startDate"`
	StartTime   string `json:"startTime"`
	EndDate     string `json:"endDate"`
	EndTime     string `json:"endTime"`
	IsAllDay    bool   `json:"isAllDay"`
}

type lineUserRequest struct {
	LineUserID string `json:"lineUserId" binding:"required"`
}

func (r wishRequest) toInput() (service.WishInput, error) {
	start, err := parseOptionalDate(r.StartDate, "startDate")
	if err != nil {
		return service.WishInput{}, err
	}
	end, err := parseOptionalDate(r.EndDate, "endDate")
	if err != nil {
		return service.WishInput{}, err
	}
	return service.WishInput{
		Title:       r.Title,
		Description: r.Description,
		IsAnonymous: r.IsAnonymous,
		StartDate:   start,
		StartTime:   strings.TrimSpace(r.StartTime),
		EndDate:     end,
		EndTime:     strings.TrimSpace(r.EndTime),
		IsAllDay:    r.IsAllDay,
	}, nil
}

// ListWishes returns the active (open or voting) wishes of a group.
func (a *API) ListWishes(c *gin.Context) {
	wishes, err := a.wishes.ListActive(c.Param("groupId"))
	if err != nil {
		a.respondServiceError(c, err, "failed to list wishes")
		return
	}
	viewer := a.viewerID(c.Query("lineUserId"))
	c.JSON(http.StatusOK, gin.H{"wishes": a.wishListPayload(wishes, viewer)})
}

func (a *API) CreateWish(c *gin.Context) {
	var req wishRequest
	if !bindJSON(c, &req, "lineUserId is required") {
		return
	}
	input, err := req.toInput()
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	user, ok := a.creator(c, req.LineUserID)
	if !ok {
		return
	}

	wish, err := a.wishes.Create(c.Param("groupId"), user.ID, input)
	if err != nil {
		a.respondServiceError(c, err, "failed to create wish")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"wish": a.wishPayload(*wish, user.ID)})
}

func (a *API) GetWish(c *gin.Context) {
	wish, err := a.wishes.Get(c.Param("wishId"))
	if err != nil {
		a.respondServiceError(c, err, "failed to get wish")
		return
	}
	viewer := a.viewerID(c.Query("lineUserId"))
	c.JSON(http.StatusOK, gin.H{"wish": a.wishPayload(*wish, viewer)})
}

// UpdateWish replaces the editable fields; only the creator may edit before voting starts.
func (a *API) UpdateWish(c *gin.Context) {
	var req wishRequest
	if !bindJSON(c, &req, "lineUserId is required") {
		return
	}
	input, err := req.toInput()
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	user, ok := a.requester(c, req.LineUserID)
	if !ok {
		return
	}

	wish, err := a.wishes.Update(c.Param("wishId"), user.ID, input)
	if err != nil {
		a.respondServiceError(c, err, "failed to update wish")
		return
	}
	c.JSON(http.StatusOK, gin.H{"wish": a.wishPayload(*wish, user.ID)})
}

func (a *API) DeleteWish(c *gin.Context) {
	user, ok := a.requester(c, c.Query("lineUserId"))
	if !ok {
		return
	}
	if err := a.wishes.Delete(c.Param("wishId"), user.ID); err != nil {
		a.respondServiceError(c, err, "failed to delete wish")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "wish deleted"})
}

// AddInterest marks the requester as interested; repeated calls are no-ops.
func (a *API) AddInterest(c *gin.Context) {
	var req lineUserRequest
	if !bindJSON(c, &req, "lineUserId is required") {
		return
	}
	user, ok := a.requester(c, req.LineUserID)
	if !ok {
		return
	}
	a.setInterest(c, user.ID, true)
}

func (a *API) RemoveInterest(c *gin.Context) {
	user, ok := a.requester(c, c.Query("lineUserId"))
	if !ok {
		return
	}
	a.setInterest(c, user.ID, false)
}

func (a *API) setInterest(c *gin.Context, userID string, interested bool) {
	wishID := c.Param("wishId")
	if err := a.interests.SetInterest(wishID, userID, interested); err != nil {
		a.respondServiceError(c, err, "failed to update interest")
		return
	}
	count, err := a.interests.Count(wishID)
	if err != nil {
		a.respondServiceError(c, err, "failed to count interests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"interested": interested, "count": count})
}

// PopularWishes ranks open undated wishes that reach the group's interest threshold.
func (a *API) PopularWishes(c *gin.Context) {
	groupID := c.Param("groupId")
	limit := defaultPopularLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	popular, err := a.popular(groupID, limit)
	if err != nil {
		a.respondServiceError(c, err, "failed to rank wishes")
		return
	}
	viewer := a.viewerID(c.Query("lineUserId"))
	c.JSON(http.StatusOK, gin.H{"wishes": a.popularPayload(popular, viewer)})
}

func (a *API) popular(groupID string, limit int) ([]service.WishInterest, error) {
	if _, err := a.groups.Get(groupID); err != nil {
		return nil, err
	}
	setting, err := a.settings.Get(groupID)
	if err != nil {
		return nil, err
	}
	members, err := a.groups.MemberCount(groupID)
	if err != nil {
		return nil, err
	}
	return a.interests.PopularForGroup(groupID, service.MinInterests(setting.SuggestMinInterests, members), limit)
}

func (a *API) popularPayload(popular []service.WishInterest, viewer string) []gin.H {
	items := make([]gin.H, 0, len(popular))
	for _, p := range popular {
		item := a.wishPayload(p.Wish, viewer)
		item["interestCount"] = p.Count
		items = append(items, item)
	}
	return items
}

// Home returns the group's landing data: pending answers for the viewer,
// upcoming dated plans and popular wishes.
func (a *API) Home(c *gin.Context) {
	groupID := c.Param("groupId")
	group, err := a.groups.Get(groupID)
	if err != nil {
		a.respondServiceError(c, err, "failed to get group")
		return
	}

	viewer := a.viewerID(c.Query("lineUserId"))
	pending := make([]gin.H, 0)
	if viewer != "" {
		wishes, err := a.wishes.PendingActions(groupID, viewer)
		if err != nil {
			a.respondServiceError(c, err, "failed to load pending actions")
			return
		}
		pending = a.wishListPayload(wishes, viewer)
	}

	upcoming, err := a.wishes.Upcoming(groupID, a.today(), 0)
	if err != nil {
		a.respondServiceError(c, err, "failed to load upcoming wishes")
		return
	}

	popular, err := a.popular(groupID, defaultPopularLimit)
	if err != nil {
		a.respondServiceError(c, err, "failed to rank wishes")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group":    groupPayload(*group),
		"pending":  pending,
		"upcoming": a.wishListPayload(upcoming, viewer),
		"popular":  a.popularPayload(popular, viewer),
	})
}

// Calendar lists dated wishes between from and to (inclusive), defaulting to the current month.
func (a *API) Calendar(c *gin.Context) {
	today := a.today()
	from := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)

	if parsed, err := parseOptionalDate(c.Query("from"), "from"); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	} else if parsed != nil {
		from = *parsed
	}
	if parsed, err := parseOptionalDate(c.Query("to"), "to"); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	} else if parsed != nil {
		to = *parsed
	}
	if to.Before(from) || to.Sub(from) > maxCalendarDays*24*time.Hour {
		respondError(c, http.StatusBadRequest, "invalid date range")
		return
	}

	wishes, err := a.wishes.ListCalendar(c.Param("groupId"), from, to)
	if err != nil {
		a.respondServiceError(c, err, "failed to load calendar")
		return
	}
	viewer := a.viewerID(c.Query("lineUserId"))
	c.JSON(http.StatusOK, gin.H{
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
		"wishes": a.wishListPayload(wishes, viewer),
	})
}
