package api

import (
	"companion-chat/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves component health from a health.Checker
type HealthHandler struct {
	checker *health.Checker
	version string
}

func NewHealthHandler(checker *health.Checker, version string) *HealthHandler {
	return &HealthHandler{checker: checker, version: version}
}

// RegisterHealthRoutes registers health check related routes
func (h *HealthHandler) RegisterHealthRoutes(router gin.IRoutes) {
	router.GET("/health", h.checker.Handler(h.version))
}
