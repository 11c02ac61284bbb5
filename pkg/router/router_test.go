package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/pkg/config"
	"companion-chat/backend/pkg/di"
	"companion-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, mutate func(cfg *config.Config)) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.NewForTest()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = "file::memory:"
	cfg.Security.RateLimit = 1000
	cfg.Security.RateLimitBurst = 1000
	if mutate != nil {
		mutate(cfg)
	}

	db, err := config.OpenDB(cfg)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	container, err := di.New(db, cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, container.CatalogService.Seed(context.Background()))
	container.Health.RunChecks(context.Background())

	r := New(container)
	r.SetupRoutes()
	t.Cleanup(func() {
		r.RateLimiter.Stop()
		_ = container.Close(context.Background())
	})
	return r
}

func serve(r *Router, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://app.test")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestHealthRoutes(t *testing.T) {
	r := newTestRouter(t, nil)

	for _, path := range []string{"/health", "/api/health"} {
		w := serve(r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), "database")
	}

	w := serve(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestRequestIDAndCORS(t *testing.T) {
	r := newTestRouter(t, nil)

	w := serve(r, http.MethodGet, "/api/models", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodOptions, "/api/characters", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORSRestrictedOrigins(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.Security.AllowedOrigins = []string{"http://other.test"}
	})

	w := serve(r, http.MethodGet, "/api/models", nil)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCharacterRoundTrip(t *testing.T) {
	r := newTestRouter(t, nil)

	w := serve(r, http.MethodPost, "/api/characters", map[string]any{
		"name":           "Skyler",
		"age":            27,
		"description":    "a witty barista",
		"welcomeMessage": "Hey there!",
		"category":       "realism",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(r, http.MethodGet, "/api/characters/9999999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Character not found", body["message"])

	w = serve(r, http.MethodGet, "/api/docs/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi")
}

func TestPersistenceRoutesAreRateLimited(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.Security.RateLimit = 0.001
		cfg.Security.RateLimitBurst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(r, http.MethodGet, "/api/characters", nil).Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// relays and the catalog are not limited
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/models", nil).Code)
	}
}
