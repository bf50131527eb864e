package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/asobot/internal/db"
	"github.com/asobot/internal/locale"
	"github.com/asobot/internal/service"
	"github.com/gin-gonic/gin"
)

type registerUserRequest struct {
	LineUserID  string `json:"lineUserId" binding:"required"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl"`
	LineGroupID string `json:"lineGroupId"`
	GroupID     string `json:"groupId"`
}

type settingsRequest struct {
	NotifyScheduleStart *bool   `json:"notifyScheduleStart"`
	NotifyReminder      *bool   `json:"notifyReminder"`
	NotifyConfirmed     *bool   `json:"notifyConfirmed"`
	SuggestEnabled      *bool   `json:"suggestEnabled"`
	SuggestIntervalDays *int    `json:"suggestIntervalDays"`
	SuggestMinInterests *int    `json:"suggestMinInterests"`
	Language            *string `json:"language"`
}

// requester resolves a required LINE user id to a registered user.
func (a *API) requester(c *gin.Context, lineUserID string) (*db.User, bool) {
	if strings.TrimSpace(lineUserID) == "" {
		respondError(c, http.StatusBadRequest, "lineUserId is required")
		return nil, false
	}
	user, err := a.groups.UserByLineID(lineUserID)
	if err != nil {
		a.respondServiceError(c, err, "failed to resolve user")
		return nil, false
	}
	return user, true
}

// creator resolves the author of a new wish or event. An unregistered LINE user is
// a validation error rather than a missing resource.
func (a *API) creator(c *gin.Context, lineUserID string) (*db.User, bool) {
	user, err := a.groups.UserByLineID(lineUserID)
	if errors.Is(err, service.ErrUserNotFound) {
		err = service.ErrUnknownCreator
	}
	if err != nil {
		a.respondServiceError(c, err, "failed to resolve user")
		return nil, false
	}
	return user, true
}

// viewerID resolves an optional LINE user id; unknown viewers get an empty id.
func (a *API) viewerID(lineUserID string) string {
	if strings.TrimSpace(lineUserID) == "" {
		return ""
	}
	user, err := a.groups.UserByLineID(lineUserID)
	if err != nil {
		return ""
	}
	return user.ID
}

// RegisterUser upserts the LIFF user and its membership in the resolved group.
func (a *API) RegisterUser(c *gin.Context) {
	var req registerUserRequest
	if !bindJSON(c, &req, "lineUserId is required") {
		return
	}

	user, group, err := a.groups.RegisterUser(service.RegisterUserInput{
		LineUserID:  req.LineUserID,
		DisplayName: req.DisplayName,
		PictureURL:  req.PictureURL,
		LineGroupID: req.LineGroupID,
		GroupID:     req.GroupID,
	})
	if err != nil {
		a.respondServiceError(c, err, "failed to register user")
		return
	}

	response := gin.H{"user": userPayload(*user), "group": nil}
	if group != nil {
		// a new group starts in the language of the first member's browser
		lang := locale.LanguageFromAcceptLanguage(c.GetHeader("Accept-Language"))
		if _, err := a.settings.Seed(group.ID, lang); err != nil {
			a.respondServiceError(c, err, "failed to load settings")
			return
		}
		response["group"] = groupPayload(*group)
	}
	c.JSON(http.StatusOK, response)
}

// UserGroups lists the groups of a LINE user, most recently active first.
func (a *API) UserGroups(c *gin.Context) {
	lineUserID := c.Query("lineUserId")
	if strings.TrimSpace(lineUserID) == "" {
		respondError(c, http.StatusBadRequest, "lineUserId is required")
		return
	}

	memberships, err := a.groups.UserGroups(lineUserID)
	if err != nil {
		a.respondServiceError(c, err, "failed to list user groups")
		return
	}

	items := make([]gin.H, 0, len(memberships))
	for _, m := range memberships {
		items = append(items, groupPayload(m.Group))
	}
	c.JSON(http.StatusOK, gin.H{"groups": items})
}

func (a *API) GroupByLineID(c *gin.Context) {
	lineGroupID := c.Query("lineGroupId")
	if strings.TrimSpace(lineGroupID) == "" {
		respondError(c, http.StatusBadRequest, "lineGroupId is required")
		return
	}

	group, err := a.groups.GroupByLineID(lineGroupID)
	if err != nil {
		a.respondServiceError(c, err, "failed to get group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": groupPayload(*group)})
}

func (a *API) GroupMembers(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, err := a.groups.Get(groupID); err != nil {
		a.respondServiceError(c, err, "failed to get group")
		return
	}

	members, err := a.groups.Members(groupID)
	if err != nil {
		a.respondServiceError(c, err, "failed to list members")
		return
	}

	items := make([]gin.H, 0, len(members))
	for _, m := range members {
		items = append(items, userPayload(m))
	}
	c.JSON(http.StatusOK, gin.H{"members": items, "count": len(items)})
}

func (a *API) GetGroupSettings(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, err := a.groups.Get(groupID); err != nil {
		a.respondServiceError(c, err, "failed to get group")
		return
	}

	setting, err := a.settings.Get(groupID)
	if err != nil {
		a.respondServiceError(c, err, "failed to load settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settingPayload(*setting)})
}

// UpdateGroupSettings applies only the fields present in the request body.
func (a *API) UpdateGroupSettings(c *gin.Context) {
	groupID := c.Param("groupId")
	var req settingsRequest
	if !bindJSON(c, &req, "invalid settings payload") {
		return
	}
	if _, err := a.groups.Get(groupID); err != nil {
		a.respondServiceError(c, err, "failed to get group")
		return
	}

	setting, err := a.settings.Update(groupID, service.GroupSettingPatch{
		NotifyScheduleStart: req.NotifyScheduleStart,
		NotifyReminder:      req.NotifyReminder,
		NotifyConfirmed:     req.NotifyConfirmed,
		SuggestEnabled:      req.SuggestEnabled,
		SuggestIntervalDays: req.SuggestIntervalDays,
		SuggestMinInterests: req.SuggestMinInterests,
		Language:            req.Language,
	})
	if err != nil {
		a.respondServiceError(c, err, "failed to update settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settingPayload(*setting)})
}
