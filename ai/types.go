package ai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Roles accepted in a relayed conversation
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// ChatRequest is the body forwarded upstream: exactly {model, messages}.
type ChatRequest struct {
	Model    string                         `json:"model"`
	Messages []openai.ChatCompletionMessage `json:"messages"`
}

var (
	// ErrEmptyCompletion means the upstream answered 2xx without a usable first choice
	ErrEmptyCompletion = errors.New("upstream returned no completion")
	// ErrRelayUnavailable means the call was not attempted because the breaker is open
	ErrRelayUnavailable = errors.New("upstream relay temporarily unavailable")
)

// UpstreamError carries a non-2xx upstream reply unchanged
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API request failed with status %d", e.StatusCode)
}

// ChatCompleter produces one assistant reply for a conversation
type ChatCompleter interface {
	Complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (string, error)
}

// ImageRequest is the image relay input. Style is vivid or natural.
type ImageRequest struct {
	Prompt string `json:"prompt" binding:"required,notblank"`
	Style  string `json:"style" binding:"omitempty,oneof=vivid natural"`
}

// ImageResult is the image relay output
type ImageResult struct {
	URL string `json:"url"`
}

// ImageGenerator turns a prompt into an image URL
type ImageGenerator interface {
	Generate(ctx context.Context, req ImageRequest) (*ImageResult, error)
}
