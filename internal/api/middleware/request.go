package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/shared/id"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID returns the ID stored by RequestLog, or "" outside a request
func RequestID(ctx context.Context) id.RequestID {
	if v, ok := ctx.Value(requestIDKey).(id.RequestID); ok {
		return v
	}
	return ""
}

// RequestLog tags each request with an ID, echoed in the response header,
// and logs it once it completes. A client-supplied ID is kept.
func RequestLog(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		reqID := id.RequestID(c.GetHeader(RequestIDHeader))
		if reqID == "" {
			reqID = id.NewRequestID()
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey, reqID))
		c.Header(RequestIDHeader, reqID.String())

		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", reqID.String()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			logger.Error("Request failed", append(fields, zap.Error(c.Errors.Last()))...)
			return
		}
		logger.Debug("Request complete", fields...)
	}
}
