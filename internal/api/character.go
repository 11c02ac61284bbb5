package api

import (
	"net/http"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/service"

	"github.com/gin-gonic/gin"
)

type CharacterHandler struct {
	service *service.CharacterService
}

func NewCharacterHandler(service *service.CharacterService) *CharacterHandler {
	return &CharacterHandler{service: service}
}

// RegisterRoutes mounts the character endpoints on group
func (h *CharacterHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", h.ListCharacters)
	group.GET("/:id", h.GetCharacter)
	group.POST("", h.CreateCharacter)
}

// ListCharacters handles GET /api/characters?category=
func (h *CharacterHandler) ListCharacters(c *gin.Context) {
	characters, err := h.service.ListCharacters(c.Request.Context(), c.Query("category"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if characters == nil {
		characters = []models.Character{}
	}
	c.JSON(http.StatusOK, characters)
}

func (h *CharacterHandler) GetCharacter(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	character, err := h.service.GetCharacter(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, character)
}

func (h *CharacterHandler) CreateCharacter(c *gin.Context) {
	var req models.CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindingError(c, err)
		return
	}

	character, err := h.service.CreateCharacter(c.Request.Context(), &req)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, character)
}
