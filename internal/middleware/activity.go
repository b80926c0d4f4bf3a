package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/repositories"
)

// LogUserActivity stamps the caller's last-active time once a request has
// been handled successfully. Failures are logged and never affect the
// response.
func LogUserActivity(store repositories.Store, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "activity")

	return func(c *gin.Context) {
		c.Next()

		username := c.GetString(UsernameKey)
		if username == "" || c.Writer.Status() >= 400 {
			return
		}

		ctx := c.Request.Context()
		uow, err := store.Begin(ctx)
		if err != nil {
			logger.Warn("activity: begin failed", "error", err)
			return
		}
		defer uow.Rollback()

		user, err := uow.Users().GetUserByUsername(ctx, username)
		if err != nil {
			logger.Debug("activity: unknown user", "username", username, "error", err)
			return
		}
		if err := uow.Users().TouchLastActive(ctx, user.ID, time.Now().UTC()); err != nil {
			logger.Warn("activity: touch failed", "username", username, "error", err)
			return
		}
		if err := uow.Complete(); err != nil {
			logger.Warn("activity: commit failed", "username", username, "error", err)
		}
	}
}
