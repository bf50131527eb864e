package handler

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const sessionGroupKey = "group_id"

type sessionGroupRequest struct {
	GroupID string `json:"groupId" binding:"required"`
}

// GetSessionGroup returns the group remembered for this browser, if any.
func (a *API) GetSessionGroup(c *gin.Context) {
	session := sessions.Default(c)
	groupID, _ := session.Get(sessionGroupKey).(string)
	if groupID == "" {
		c.JSON(http.StatusOK, gin.H{"groupId": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groupId": groupID})
}

// SetSessionGroup remembers the active group after checking it exists.
func (a *API) SetSessionGroup(c *gin.Context) {
	var req sessionGroupRequest
	if !bindJSON(c, &req, "groupId is required") {
		return
	}
	if _, err := a.groups.Get(req.GroupID); err != nil {
		a.respondServiceError(c, err, "failed to get group")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionGroupKey, req.GroupID)
	if err := session.Save(); err != nil {
		a.logger.Error().Err(err).Msg("save session failed")
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"groupId": req.GroupID})
}
