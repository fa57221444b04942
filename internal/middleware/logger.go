package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/pkg/logger"
)

// Logger logs one line per request. Bodies are never logged; they carry
// patient data.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"request_id", c.GetString(ContextRequestID),
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if sub := c.GetString(ContextSubject); sub != "" {
			fields = append(fields, "subject", sub)
		}

		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
		}

		switch {
		case status >= 500:
			log.Error(err, "Server error", fields...)
		case status >= 400:
			if err != nil {
				fields = append(fields, "error", err.Error())
			}
			log.Warn("Client error", fields...)
		default:
			log.Info("Request processed", fields...)
		}
	}
}
