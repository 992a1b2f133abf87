package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id between the caller, this
// service's logs and the usage metrics labels.
const RequestIDHeader = "X-Request-Id"

const requestIDKey = "keygate.request_id"

// RequestID propagates the caller's X-Request-Id or assigns a fresh one, so
// every log line and rotation decision for one dispatch can be correlated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFromContext returns the id assigned by RequestID, or "" when the
// middleware did not run.
func RequestIDFromContext(c *gin.Context) string {
	id, _ := c.Value(requestIDKey).(string)
	return id
}
