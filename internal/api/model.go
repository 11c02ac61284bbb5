package api

import (
	"net/http"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/service"

	"github.com/gin-gonic/gin"
)

type ModelHandler struct {
	catalog *service.CatalogService
}

func NewModelHandler(catalog *service.CatalogService) *ModelHandler {
	return &ModelHandler{catalog: catalog}
}

// ListModels handles GET /api/models
func (h *ModelHandler) ListModels(c *gin.Context) {
	list, err := h.catalog.ListModels(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if list == nil {
		list = []models.AIModel{}
	}
	c.JSON(http.StatusOK, list)
}
