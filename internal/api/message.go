package api

import (
	"net/http"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// MessageHandler serves the append-only session logs
type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// RegisterRoutes mounts the message endpoints on group
func (h *MessageHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/:characterId/:sessionId", h.ListMessages)
	group.POST("", h.CreateMessage)
}

// ListMessages returns a session log oldest first
func (h *MessageHandler) ListMessages(c *gin.Context) {
	characterID, ok := parseID(c, "characterId")
	if !ok {
		return
	}

	messages, err := h.messages.ListMessages(c.Request.Context(), characterID, c.Param("sessionId"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, messages)
}

// CreateMessage appends one message. The server assigns id and createdAt.
func (h *MessageHandler) CreateMessage(c *gin.Context) {
	var req models.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindingError(c, err)
		return
	}

	msg, err := h.messages.AppendMessage(c.Request.Context(), req.ToMessage())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}
