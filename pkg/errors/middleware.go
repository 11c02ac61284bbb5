package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"companion-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler returns a middleware that catches and formats application errors.
// The envelope is {"message", "code", "error"?}.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Check if there are any errors
		if len(c.Errors) == 0 {
			return
		}

		// Get the first error
		appErr := FromError(c.Errors[0].Err)

		// Log the error
		log := requestLogger(c)
		args := []any{
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
			"message", appErr.Message,
		}
		if appErr.cause != nil {
			args = append(args, "cause", appErr.cause.Error())
		}
		if appErr.StatusCode >= http.StatusInternalServerError {
			log.Error("Request error", args...)
		} else {
			log.Warn("Request rejected", args...)
		}

		if c.Writer.Written() {
			return
		}

		body := gin.H{
			"message": appErr.Message,
			"code":    appErr.Code,
		}
		if appErr.Details != nil {
			body["error"] = appErr.Details
		}
		c.AbortWithStatusJSON(appErr.StatusCode, body)
	}
}

// RecoveryWithLogger returns a middleware that recovers from any panics
// and logs the error with the request ID if available
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				// Get the stack trace
				stack := string(debug.Stack())

				// Log the panic with stack trace
				requestLogger(c).Error("Panic recovered",
					"error", r,
					"stack", stack,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				body := gin.H{
					"message": "The server encountered an unexpected error",
					"code":    "SERVER_ERROR",
				}
				if gin.Mode() == gin.DebugMode {
					body["error"] = fmt.Sprintf("Panic: %v", r)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
			}
		}()

		c.Next()
	}
}

func requestLogger(c *gin.Context) *logger.Logger {
	if l, exists := c.Get("logger"); exists {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.GetGlobal()
}
