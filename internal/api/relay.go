package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"companion-chat/backend/ai"
	apperrors "companion-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
)

// ChatForwarder passes a completion request upstream. *ai.ChatRelay implements it.
type ChatForwarder interface {
	Forward(ctx context.Context, req ai.ChatRequest) (*ai.RelayResponse, error)
}

// RelayHandler exposes the chat and image relays
type RelayHandler struct {
	chat   ChatForwarder
	images ai.ImageGenerator
}

func NewRelayHandler(chat ChatForwarder, images ai.ImageGenerator) *RelayHandler {
	return &RelayHandler{chat: chat, images: images}
}

// chatCompletionRequest accepts the character for client convenience; only
// model and messages are forwarded.
type chatCompletionRequest struct {
	Model     string                         `json:"model" binding:"required,notblank"`
	Messages  []openai.ChatCompletionMessage `json:"messages" binding:"required,min=1"`
	Character json.RawMessage                `json:"character,omitempty"`
}

// ChatCompletions handles POST /api/chat/completions
func (h *RelayHandler) ChatCompletions(c *gin.Context) {
	var req chatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindingError(c, err)
		return
	}
	for i, m := range req.Messages {
		if !ai.ValidRole(m.Role) {
			_ = c.Error(apperrors.BadRequestWithDetails("VALIDATION_ERROR",
				fmt.Sprintf("messages[%d] has an unsupported role", i), m.Role))
			c.Abort()
			return
		}
	}

	resp, err := h.chat.Forward(c.Request.Context(), ai.ChatRequest{Model: req.Model, Messages: req.Messages})
	if err != nil {
		abortWithRelayError(c, err)
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

func abortWithRelayError(c *gin.Context, err error) {
	var upstream *ai.UpstreamError
	switch {
	case errors.As(err, &upstream):
		_ = c.Error(apperrors.NewUpstreamError(upstream.StatusCode, string(upstream.Body)))
	case errors.Is(err, ai.ErrRelayUnavailable):
		_ = c.Error(apperrors.NewServiceUnavailableError("RELAY_UNAVAILABLE", "Chat service temporarily unavailable").WithCause(err))
	case errors.Is(err, context.DeadlineExceeded):
		_ = c.Error(apperrors.NewError(http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Chat service did not respond in time").WithCause(err))
	default:
		_ = c.Error(apperrors.NewBadGatewayError("UPSTREAM_UNREACHABLE", "Failed to reach chat service").WithCause(err))
	}
	c.Abort()
}

// ImageGenerations handles POST /api/images/generations
func (h *RelayHandler) ImageGenerations(c *gin.Context) {
	var req ai.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindingError(c, err)
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)

	result, err := h.images.Generate(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(apperrors.NewBadGatewayError("IMAGE_GENERATION_FAILED", "Failed to generate image").WithCause(err))
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, result)
}
