package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"nl2sql-tool/internal/utils"
)

const (
	CorrelationIDKey    = "correlation_id"
	CorrelationIDHeader = "X-Correlation-ID"
)

type correlationCtxKey struct{}

// CorrelationID reuses the caller's X-Correlation-ID or mints one, and exposes
// it to handlers, the response headers and the request context.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = utils.GenerateUUID()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)

		ctx := context.WithValue(c.Request.Context(), correlationCtxKey{}, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// CorrelationIDFromContext returns the id stored by CorrelationID.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationCtxKey{}).(string)
	return id
}
