package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/formbridge/backend/internal/infrastructure/audit"
)

// AuditLog records one request/response entry per API call. Writes happen
// off the request path; a slow audit store never delays responses.
func AuditLog(store *audit.Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		entry := audit.APILog{
			RequestID: c.GetString("request_id"),
			Method:    c.Request.Method,
			Path:      path,
			Status:    c.Writer.Status(),
			LatencyMs: time.Since(start).Milliseconds(),
			ClientIP:  c.ClientIP(),
			CreatedAt: start,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.RecordRequest(ctx, entry); err != nil && logger != nil {
				logger.Warn("audit request write failed", zap.Error(err))
			}
		}()
	}
}
