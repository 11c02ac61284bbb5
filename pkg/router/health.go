package router

import (
	"companion-chat/backend/internal/api"

	"github.com/gin-gonic/gin"
)

// setupHealthRoutes registers health check and metrics endpoints
func (r *Router) setupHealthRoutes() {
	h := api.NewHealthHandler(r.Container.Health, r.Config.Server.Version)

	// Register both health endpoint paths for compatibility
	h.RegisterHealthRoutes(r.Engine)
	h.RegisterHealthRoutes(r.Engine.Group("/api"))

	if r.Container.Metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.Container.Metrics.Handler()))
	}
}
