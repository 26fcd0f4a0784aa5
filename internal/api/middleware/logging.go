package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/konkon3660/graduationP/internal/logger"
)

// RequestIDHeader carries the per-request id, echoed back to the caller.
const RequestIDHeader = "X-Request-ID"

// RequestLogger assigns a request id (reusing a caller-supplied one) and logs
// each request when it completes: 5xx at warn, 4xx at info, the rest at debug.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		began := time.Now()
		c.Next()

		status := c.Writer.Status()
		log := logger.Debugf
		switch {
		case status >= 500:
			log = logger.Warnf
		case status >= 400:
			log = logger.Infof
		}
		log("[http] %s %s %d %s id=%s", c.Request.Method, c.Request.URL.Path, status,
			time.Since(began).Round(time.Microsecond), id)
	}
}
