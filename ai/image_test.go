package ai

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"testing"

	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/secrets"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImageClient struct {
	got  openai.ImageRequest
	resp openai.ImageResponse
	err  error
}

func (f *fakeImageClient) CreateImage(_ context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	f.got = req
	return f.resp, f.err
}

func newOpenAIGenerator(client *fakeImageClient, sm secrets.Manager) (*OpenAIImageGenerator, *string) {
	var usedKey string
	g := NewOpenAIImageGenerator(OpenAIImageConfig{APIKeyName: "openai_api_key"}, sm, nil, logger.Nop())
	g.newClient = func(key string) imageClient {
		usedKey = key
		return client
	}
	return g, &usedKey
}

func TestPlaceholderGenerator(t *testing.T) {
	g := NewPlaceholderImageGenerator()

	a, err := g.Generate(context.Background(), ImageRequest{Prompt: "a cat"})
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), ImageRequest{Prompt: "a cat"})
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^https://picsum\.photos/seed/[0-9a-f]{10}/400/400$`)
	assert.Regexp(t, pattern, a.URL)
	assert.NotEqual(t, a.URL, b.URL)

	_, err = g.Generate(context.Background(), ImageRequest{Prompt: "  "})
	assert.Error(t, err)
}

func TestOpenAIGeneratorBuildsDalleRequest(t *testing.T) {
	client := &fakeImageClient{resp: openai.ImageResponse{Data: []openai.ImageResponseDataInner{{URL: "https://img.example/1.png"}}}}
	g, usedKey := newOpenAIGenerator(client, secrets.Static{"openai_api_key": "sk-test"})

	res, err := g.Generate(context.Background(), ImageRequest{Prompt: "a barista at sunrise", Style: StyleNatural})
	require.NoError(t, err)

	assert.Equal(t, "https://img.example/1.png", res.URL)
	assert.Equal(t, "sk-test", *usedKey)
	assert.Equal(t, openai.CreateImageModelDallE3, client.got.Model)
	assert.Equal(t, openai.CreateImageSize1024x1024, client.got.Size)
	assert.Equal(t, openai.CreateImageQualityHD, client.got.Quality)
	assert.Equal(t, StyleNatural, client.got.Style)
	assert.Contains(t, client.got.Prompt, "a barista at sunrise")
	assert.Contains(t, client.got.Prompt, "photorealistic portrait")
}

func TestOpenAIGeneratorFailures(t *testing.T) {
	_, err := NewPlaceholderImageGenerator().Generate(context.Background(), ImageRequest{})
	assert.Error(t, err)

	g, _ := newOpenAIGenerator(&fakeImageClient{}, secrets.Static{})
	_, err = g.Generate(context.Background(), ImageRequest{Prompt: "x"})
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)

	apiErr := &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "content policy"}
	g, _ = newOpenAIGenerator(&fakeImageClient{err: apiErr}, secrets.Static{"openai_api_key": "k"})
	_, err = g.Generate(context.Background(), ImageRequest{Prompt: "x"})
	assert.True(t, errors.Is(err, apiErr))

	g, _ = newOpenAIGenerator(&fakeImageClient{}, secrets.Static{"openai_api_key": "k"})
	_, err = g.Generate(context.Background(), ImageRequest{Prompt: "x"})
	assert.Error(t, err)
}

func TestNewImageGenerator(t *testing.T) {
	g, err := NewImageGenerator("", OpenAIImageConfig{}, nil, nil, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &PlaceholderImageGenerator{}, g)

	g, err = NewImageGenerator(BackendOpenAI, OpenAIImageConfig{}, secrets.Static{}, nil, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &OpenAIImageGenerator{}, g)

	_, err = NewImageGenerator("midjourney", OpenAIImageConfig{}, nil, nil, logger.Nop())
	assert.Error(t, err)
}
