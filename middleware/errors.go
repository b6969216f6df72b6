package middleware

import (
	"fmt"
	"io"
	"log/slog"

	"papichulo-api/apperror"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error pushed with c.Error as the JSON
// envelope. It must be registered before any handler that can fail.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, body := apperror.ToEnvelope(err)
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"code", body.Error.Code,
			"error", err.Error(),
		}
		if status >= 500 {
			logger.ErrorContext(c.Request.Context(), "request failed", attrs...)
		} else {
			logger.InfoContext(c.Request.Context(), "request rejected", attrs...)
		}

		if !c.Writer.Written() {
			c.AbortWithStatusJSON(status, body)
		}
	}
}

// Recovery turns a panic into an INTERNAL_SERVER_ERROR envelope.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "panic recovered",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"panic", fmt.Sprint(recovered))
		status, body := apperror.ToEnvelope(apperror.Internal(fmt.Errorf("panic: %v", recovered)))
		c.AbortWithStatusJSON(status, body)
	})
}

// NotFound answers unknown routes with the envelope.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		_ = c.Error(apperror.NotFound("Route not found"))
	}
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
