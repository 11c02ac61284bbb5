package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/resilience"
	"companion-chat/backend/pkg/secrets"
	"companion-chat/backend/shared/observability"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// maxResponseBytes bounds how much of an upstream reply is buffered
const maxResponseBytes = 4 << 20

// ChatRelayConfig configures the upstream chat-completion forwarder
type ChatRelayConfig struct {
	URL        string
	APIKeyName string
	Timeout    time.Duration
	Breaker    bool
}

// RelayResponse is an upstream 2xx reply, passed through unchanged
type RelayResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// ChatRelay forwards OpenAI-compatible chat completion requests to the upstream API.
// No retries and no caching; at most one upstream attempt per call.
type ChatRelay struct {
	config  ChatRelayConfig
	client  *http.Client
	secrets secrets.Manager
	breaker *resilience.CircuitBreaker
	metrics *observability.Metrics
	log     *logger.Logger
}

// NewChatRelay creates a relay. client may be nil; metrics may be nil.
func NewChatRelay(cfg ChatRelayConfig, client *http.Client, sm secrets.Manager, metrics *observability.Metrics, log *logger.Logger) *ChatRelay {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := &ChatRelay{
		config:  cfg,
		client:  client,
		secrets: sm,
		metrics: metrics,
		log:     log,
	}

	if cfg.Breaker {
		bc := resilience.DefaultCircuitBreakerConfig("chat-relay")
		bc.IsFailure = isBreakerFailure
		bc.OnStateChange = func(name string, _, to resilience.CircuitBreakerState) {
			metrics.SetBreakerOpen(name, to != resilience.StateClosed)
		}
		r.breaker = resilience.NewCircuitBreaker(bc, log)
	}
	return r
}

// isBreakerFailure counts transport failures and upstream 5xx/429, not caller mistakes
func isBreakerFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.StatusCode >= http.StatusInternalServerError || upErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Forward sends {model, messages} upstream and returns the 2xx reply verbatim.
// Non-2xx replies come back as *UpstreamError with the upstream status and body.
func (r *ChatRelay) Forward(ctx context.Context, req ChatRequest) (*RelayResponse, error) {
	ctx, span := observability.Tracer().Start(ctx, "relay.chat")
	defer span.End()
	span.SetAttributes(attribute.String("relay.model", req.Model), attribute.Int("relay.messages", len(req.Messages)))

	start := time.Now()
	var resp *RelayResponse
	call := func(ctx context.Context) error {
		var err error
		resp, err = r.do(ctx, req)
		return err
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.ExecuteContext(ctx, call)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			err = ErrRelayUnavailable
		}
	} else {
		err = call(ctx)
	}

	r.metrics.ObserveRelay("chat", outcome(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (r *ChatRelay) do(ctx context.Context, req ChatRequest) (*RelayResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := r.apiKey(ctx); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making API request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: httpResp.StatusCode, Body: body}
	}

	return &RelayResponse{
		StatusCode:  httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (r *ChatRelay) apiKey(ctx context.Context) string {
	if r.secrets == nil || r.config.APIKeyName == "" {
		return ""
	}
	key, err := r.secrets.GetSecret(ctx, r.config.APIKeyName)
	if err != nil {
		r.log.Warn("Chat API key unavailable, calling upstream without credentials",
			"key", r.config.APIKeyName,
			"error", err.Error(),
		)
		return ""
	}
	return key
}

// Complete relays a conversation and returns the first choice's content.
func (r *ChatRelay) Complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := r.Forward(ctx, ChatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", err
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(resp.Body, &completion); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}

	return completion.Choices[0].Message.Content, nil
}

// BreakerState reports the breaker state, closed when the breaker is disabled
func (r *ChatRelay) BreakerState() resilience.CircuitBreakerState {
	if r.breaker == nil {
		return resilience.StateClosed
	}
	return r.breaker.GetState()
}

func outcome(err error) string {
	var upErr *UpstreamError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRelayUnavailable):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &upErr):
		return "upstream_error"
	default:
		return "error"
	}
}
