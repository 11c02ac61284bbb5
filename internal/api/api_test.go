package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"companion-chat/backend/ai"
	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/repository"
	"companion-chat/backend/internal/service"
	"companion-chat/backend/pkg/cache"
	apperrors "companion-chat/backend/pkg/errors"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/validator"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.RegisterBindings()
}

type fakeForwarder struct {
	resp *ai.RelayResponse
	err  error
	got  ai.ChatRequest
}

func (f *fakeForwarder) Forward(_ context.Context, req ai.ChatRequest) (*ai.RelayResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(context.Context, string, []openai.ChatCompletionMessage) (string, error) {
	return f.reply, f.err
}

type testServer struct {
	engine    *gin.Engine
	db        *gorm.DB
	forwarder *fakeForwarder
	completer *fakeCompleter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	log := logger.Nop()
	characters := service.NewCharacterService(repository.NewGormCharacterRepository(db), nil, 0, log)
	messages := service.NewMessageService(repository.NewGormMessageRepository(db), characters, nil, time.Second, log)
	catalogCache := cache.NewCache(cache.Options{DefaultExpiration: time.Minute})
	t.Cleanup(catalogCache.Stop)
	catalog := service.NewCatalogService(repository.NewGormModelRepository(db), catalogCache, log)
	require.NoError(t, catalog.Seed(context.Background()))

	forwarder := &fakeForwarder{}
	completer := &fakeCompleter{}
	images := ai.NewPlaceholderImageGenerator()
	turns := service.NewTurnService(messages, characters, completer, images, service.TurnConfig{
		DefaultModel: "provider-4/gpt-4.1",
		RelayTimeout: time.Second,
	}, nil, log)

	r := gin.New()
	r.Use(apperrors.RecoveryWithLogger(), apperrors.ErrorHandler())
	group := r.Group("/api")
	NewCharacterHandler(characters).RegisterRoutes(group.Group("/characters"))
	NewMessageHandler(messages).RegisterRoutes(group.Group("/messages"))
	NewSessionHandler(messages, turns).RegisterRoutes(group.Group("/sessions"))
	group.GET("/models", NewModelHandler(catalog).ListModels)
	relay := NewRelayHandler(forwarder, images)
	group.POST("/chat/completions", relay.ChatCompletions)
	group.POST("/images/generations", relay.ImageGenerations)

	return &testServer{engine: r, db: db, forwarder: forwarder, completer: completer}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var obj map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &obj)
	return w, obj
}

func (s *testServer) createSkyler(t *testing.T) uint {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/characters", map[string]any{
		"name":           "Skyler",
		"age":            27,
		"description":    "a witty barista who loves indie music",
		"welcomeMessage": "Hey there! What can I get you today?",
		"category":       "realism",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return uint(body["id"].(float64))
}

func TestCharacterEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.createSkyler(t)

	w, body := s.do(t, http.MethodGet, "/api/characters/9999999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Character not found", body["message"])

	w, body = s.do(t, http.MethodGet, "/api/characters/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, body["message"])

	w, _ = s.do(t, http.MethodGet, "/api/characters/"+itoa(id), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var list []models.Character
	w, _ = s.do(t, http.MethodGet, "/api/characters?category=realism", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
	assert.Equal(t, models.DefaultAvatarURL, list[0].ImageURL)

	w, _ = s.do(t, http.MethodGet, "/api/characters?category=anime", nil)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestCreateCharacterMissingNameCreatesNothing(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/characters", map[string]any{
		"age":            30,
		"description":    "quiet librarian",
		"welcomeMessage": "Shh.",
		"category":       "other",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Contains(t, body["message"], "name")

	w, _ = s.do(t, http.MethodPost, "/api/characters", map[string]any{
		"name": "Kid", "age": 12, "description": "d", "welcomeMessage": "w", "category": "other",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/characters", map[string]any{
		"name": "Zed", "age": 30, "description": "d", "welcomeMessage": "w", "category": "scifi",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	require.NoError(t, s.db.Model(&models.Character{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMessageEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.createSkyler(t)

	for _, content := range []string{"one", "two", "three"} {
		w, body := s.do(t, http.MethodPost, "/api/messages", map[string]any{
			"characterId": id,
			"sessionId":   "abc123",
			"content":     content,
			"isUser":      true,
			"createdAt":   "1999-01-01T00:00:00Z",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "text", body["messageType"])
	}

	var msgs []models.ChatMessage
	w, _ := s.do(t, http.MethodGet, "/api/messages/"+itoa(id)+"/abc123", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
	assert.Equal(t, "one", msgs[0].Content)
	assert.True(t, msgs[0].CreatedAt.Year() > 1999)

	w, _ = s.do(t, http.MethodPost, "/api/messages", map[string]any{
		"characterId": 9999999, "sessionId": "abc123", "content": "x", "isUser": true,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := s.do(t, http.MethodPost, "/api/messages", map[string]any{
		"characterId": id, "sessionId": "abc123", "content": "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["message"], "isUser")

	w, _ = s.do(t, http.MethodPost, "/api/messages", map[string]any{
		"characterId": id, "sessionId": "abc123", "content": "x", "isUser": false, "messageType": "audio",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/messages/"+itoa(id)+"/empty", nil)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestModelsEndpoint(t *testing.T) {
	s := newTestServer(t)

	var list []models.AIModel
	w, _ := s.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, len(models.DefaultModels))
}

func TestChatCompletionsRelay(t *testing.T) {
	s := newTestServer(t)

	t.Run("passes upstream body through", func(t *testing.T) {
		s.forwarder.resp = &ai.RelayResponse{StatusCode: 200, ContentType: "application/json", Body: []byte(`{"id":"x","choices":[]}`)}
		s.forwarder.err = nil
		w, _ := s.do(t, http.MethodPost, "/api/chat/completions", map[string]any{
			"model":     "provider-4/gpt-4.1",
			"messages":  []map[string]string{{"role": "system", "content": "be nice"}, {"role": "user", "content": "hi"}},
			"character": map[string]any{"id": 1},
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"x","choices":[]}`, w.Body.String())
		assert.Equal(t, "provider-4/gpt-4.1", s.forwarder.got.Model)
		assert.Len(t, s.forwarder.got.Messages, 2)
	})

	t.Run("surfaces upstream status and body", func(t *testing.T) {
		s.forwarder.resp = nil
		s.forwarder.err = &ai.UpstreamError{StatusCode: 429, Body: []byte("slow down")}
		w, body := s.do(t, http.MethodPost, "/api/chat/completions", map[string]any{
			"model":    "m",
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "API request failed with status 429", body["message"])
		assert.Equal(t, "slow down", body["error"])
	})

	t.Run("open breaker", func(t *testing.T) {
		s.forwarder.err = ai.ErrRelayUnavailable
		w, _ := s.do(t, http.MethodPost, "/api/chat/completions", map[string]any{
			"model":    "m",
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("validation", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/api/chat/completions", map[string]any{"model": "m", "messages": []any{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = s.do(t, http.MethodPost, "/api/chat/completions", map[string]any{
			"model":    "m",
			"messages": []map[string]string{{"role": "wizard", "content": "hi"}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = s.do(t, http.MethodPost, "/api/chat/completions", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestImageGenerations(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/images/generations", map[string]any{"prompt": "sunset portrait", "style": "vivid"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Regexp(t, `^https://picsum\.photos/seed/[0-9a-f]+/400/400$`, body["url"])

	w, _ = s.do(t, http.MethodPost, "/api/images/generations", map[string]any{"prompt": "x", "style": "cartoon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/images/generations", map[string]any{"prompt": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionFlow(t *testing.T) {
	s := newTestServer(t)
	id := s.createSkyler(t)

	w, body := s.do(t, http.MethodPost, "/api/sessions", map[string]any{"characterId": id, "sessionId": "abc123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, body["seeded"])

	w, body = s.do(t, http.MethodPost, "/api/sessions", map[string]any{"characterId": id, "sessionId": "abc123"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, false, body["seeded"])
	assert.Len(t, body["messages"], 1)

	w, body = s.do(t, http.MethodPost, "/api/sessions", map[string]any{"characterId": id})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, body["sessionId"])

	w, _ = s.do(t, http.MethodPost, "/api/sessions", map[string]any{"characterId": 9999999})
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.completer.err = &ai.UpstreamError{StatusCode: 500}
	w, body = s.do(t, http.MethodPost, "/api/sessions/"+itoa(id)+"/abc123/turns", map[string]any{"text": "hi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["messages"], 2)

	var msgs []models.ChatMessage
	w, _ = s.do(t, http.MethodGet, "/api/messages/"+itoa(id)+"/abc123", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 3)
	assert.Equal(t, "Hey there! What can I get you today?", msgs[0].Content)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, ai.ChatFallbackMessage, msgs[2].Content)

	w, body = s.do(t, http.MethodPost, "/api/sessions/"+itoa(id)+"/abc123/turns", map[string]any{"text": "selfie", "mode": "image"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["messages"], 3)

	w, _ = s.do(t, http.MethodPost, "/api/sessions/"+itoa(id)+"/abc123/turns", map[string]any{"text": "hi", "mode": "video"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/sessions/9999999/abc123/turns", map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
