package handler

import (
	"errors"
	"net/http"

	"github.com/asobot/internal/service"
	"github.com/gin-gonic/gin"
)

// statusForError maps a service error kind to an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrDependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes client errors verbatim and hides internal ones behind message.
func (a *API) respondServiceError(c *gin.Context, err error, message string) {
	status := statusForError(err)
	if status < http.StatusInternalServerError {
		respondError(c, status, err.Error())
		return
	}
	a.logger.Error().Err(err).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Msg(message)
	respondError(c, status, message)
}
