package api

import (
	"strconv"

	"companion-chat/backend/internal/service"
	apperrors "companion-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// abortWithServiceError maps domain errors onto the HTTP envelope
func abortWithServiceError(c *gin.Context, err error) {
	_ = c.Error(service.ToAppError(err))
	c.Abort()
}

func abortWithBindingError(c *gin.Context, err error) {
	_ = c.Error(apperrors.FromBindingError(err))
	c.Abort()
}

// parseID reads a positive numeric path parameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		_ = c.Error(apperrors.NewBadRequestError("INVALID_ID", "Invalid "+name))
		c.Abort()
		return 0, false
	}
	return uint(id), true
}
