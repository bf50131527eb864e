package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// CronAuth holds the shared secret expected from the scheduler.
// SecretHash is a bcrypt hash and wins over the plaintext Secret.
type CronAuth struct {
	Secret     string
	SecretHash string
}

// Authorize checks an Authorization header of the form "Bearer <secret>".
// With no secret configured every request is accepted.
func (a CronAuth) Authorize(header string) bool {
	if strings.TrimSpace(a.SecretHash) == "" && a.Secret == "" {
		return true
	}
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return false
	}
	if hash := strings.TrimSpace(a.SecretHash); hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(a.Secret), []byte(token)) == 1
}

// RunCron executes one reminder and suggestion scan.
func (a *API) RunCron(c *gin.Context) {
	if !a.cron.Authorize(c.GetHeader("Authorization")) {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	report, err := a.scanner.Run(c.Request.Context(), a.now())
	if err != nil {
		a.logger.Error().Err(err).Msg("cron scan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "scan failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": gin.H{
			"reminders":   report.Reminders(),
			"suggestions": report.Suggestions(),
		},
		"items":     report.Items,
		"failed":    report.Failed(),
		"timestamp": report.StartedAt,
	})
}
