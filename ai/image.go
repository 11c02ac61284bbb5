package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/secrets"
	"companion-chat/backend/shared/observability"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Image styles understood by the OpenAI backend
const (
	StyleVivid   = "vivid"
	StyleNatural = "natural"
)

// Image backends selectable through configuration
const (
	BackendPlaceholder = "placeholder"
	BackendOpenAI      = "openai"
)

const placeholderURL = "https://picsum.photos/seed/%s/400/400"

// PlaceholderImageGenerator returns a stock photo keyed by a random seed.
// The prompt is not used.
type PlaceholderImageGenerator struct {
	seed func() string
}

func NewPlaceholderImageGenerator() *PlaceholderImageGenerator {
	return &PlaceholderImageGenerator{seed: randomSeed}
}

func (g *PlaceholderImageGenerator) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	return &ImageResult{URL: fmt.Sprintf(placeholderURL, g.seed())}, nil
}

func randomSeed() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// imageClient is the slice of the go-openai client used for images
type imageClient interface {
	CreateImage(ctx context.Context, request openai.ImageRequest) (openai.ImageResponse, error)
}

// OpenAIImageConfig configures the DALL-E backend
type OpenAIImageConfig struct {
	APIKeyName string
	BaseURL    string
	Model      string
	Timeout    time.Duration
}

// OpenAIImageGenerator renders portraits with the OpenAI images API
type OpenAIImageGenerator struct {
	config    OpenAIImageConfig
	secrets   secrets.Manager
	newClient func(key string) imageClient
	metrics   *observability.Metrics
	log       *logger.Logger
}

func NewOpenAIImageGenerator(cfg OpenAIImageConfig, sm secrets.Manager, metrics *observability.Metrics, log *logger.Logger) *OpenAIImageGenerator {
	if cfg.Model == "" {
		cfg.Model = openai.CreateImageModelDallE3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIImageGenerator{
		config:  cfg,
		secrets: sm,
		metrics: metrics,
		log:     log,
		newClient: func(key string) imageClient {
			clientCfg := openai.DefaultConfig(key)
			if cfg.BaseURL != "" {
				clientCfg.BaseURL = cfg.BaseURL
			}
			return openai.NewClientWithConfig(clientCfg)
		},
	}
}

func (g *OpenAIImageGenerator) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "relay.image")
	defer span.End()
	span.SetAttributes(attribute.String("image.model", g.config.Model), attribute.String("image.style", req.Style))

	start := time.Now()
	result, err := g.generate(ctx, req)
	g.metrics.ObserveRelay("image", outcome(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

func (g *OpenAIImageGenerator) generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	style := req.Style
	if style == "" {
		style = StyleVivid
	}

	key, err := g.secrets.GetSecret(ctx, g.config.APIKeyName)
	if err != nil {
		return nil, fmt.Errorf("image API key unavailable: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	resp, err := g.newClient(key).CreateImage(ctx, openai.ImageRequest{
		Prompt:         EnhanceImagePrompt(req.Prompt, style),
		Model:          g.config.Model,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		Quality:        openai.CreateImageQualityHD,
		Style:          style,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			g.log.Warn("Image generation rejected upstream",
				"status", apiErr.HTTPStatusCode,
				"error", apiErr.Message,
			)
		}
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, errors.New("image generation returned no image")
	}

	return &ImageResult{URL: resp.Data[0].URL}, nil
}

// NewImageGenerator picks the backend named by backend
func NewImageGenerator(backend string, cfg OpenAIImageConfig, sm secrets.Manager, metrics *observability.Metrics, log *logger.Logger) (ImageGenerator, error) {
	switch backend {
	case "", BackendPlaceholder:
		return NewPlaceholderImageGenerator(), nil
	case BackendOpenAI:
		if sm == nil {
			return nil, errors.New("openai image backend needs a secrets manager")
		}
		return NewOpenAIImageGenerator(cfg, sm, metrics, log), nil
	default:
		return nil, fmt.Errorf("unknown image backend %q", backend)
	}
}
