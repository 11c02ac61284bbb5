package api

import (
	"net/http"

	"companion-chat/backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionHandler opens chat sessions and runs turns server side
type SessionHandler struct {
	messages *service.MessageService
	turns    *service.TurnService
}

func NewSessionHandler(messages *service.MessageService, turns *service.TurnService) *SessionHandler {
	return &SessionHandler{messages: messages, turns: turns}
}

func (h *SessionHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("", h.OpenSession)
	group.POST("/:characterId/:sessionId/turns", h.SendTurn)
}

type openSessionRequest struct {
	CharacterID uint   `json:"characterId" binding:"required"`
	SessionID   string `json:"sessionId" binding:"omitempty,max=128"`
}

// OpenSession seeds the welcome message of an empty session. A session id is
// generated when the client does not send one.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindingError(c, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	session, err := h.messages.OpenSession(c.Request.Context(), req.CharacterID, req.SessionID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

type turnRequest struct {
	Text  string `json:"text" binding:"required,notblank"`
	Mode  string `json:"mode" binding:"omitempty,oneof=text image"`
	Model string `json:"model"`
}

// SendTurn handles POST /api/sessions/:characterId/:sessionId/turns
func (h *SessionHandler) SendTurn(c *gin.Context) {
	characterID, ok := parseID(c, "characterId")
	if !ok {
		return
	}

	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindingError(c, err)
		return
	}

	result, err := h.turns.SendTurn(c.Request.Context(), service.TurnRequest{
		CharacterID: characterID,
		SessionID:   c.Param("sessionId"),
		Text:        req.Text,
		Mode:        req.Mode,
		Model:       req.Model,
	}, nil)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
