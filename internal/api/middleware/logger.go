package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger middleware для логирования HTTP запросов
func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		fields := logrus.Fields{
			"method":    method,
			"path":      path,
			"status":    statusCode,
			"duration":  duration.String(),
			"client_ip": c.ClientIP(),
		}
		if userID, ok := c.Get(ContextUserID); ok {
			fields["user_id"] = userID
		}
		entry := logger.WithFields(fields)

		switch {
		case len(c.Errors) > 0:
			entry.Error(c.Errors.String())
		case statusCode >= 500:
			entry.Error("Internal server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request completed")
		}
	}
}
