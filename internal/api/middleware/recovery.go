package middleware

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/domain/fault"
)

// Recovery turns a handler panic into a 500 and reports it to errs as an
// UncaughtError, so it shows up in the error history and on system:error.
func Recovery(errs *fault.Handler) gin.HandlerFunc {
	if errs == nil {
		return gin.Recovery()
	}

	// errs logs through zap, so gin's own stack dump is discarded
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		where := c.Request.Method + " " + c.Request.URL.Path
		rec := errs.Handle(&fault.PanicError{Where: where, Value: recovered},
			zap.String("request_id", RequestID(c.Request.Context()).String()),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success":  false,
			"error":    "internal error",
			"error_id": rec.ID,
		})
	})
}
