package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"companion-chat/backend/pkg/errors"
	"companion-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterRejectsAfterBurst(t *testing.T) {
	rl := NewRateLimiter(logger.Nop(), RateLimiterOptions{Limit: 0.001, Burst: 2})
	defer rl.Stop()

	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.Use(rl.Middleware())
	r.GET("/api/characters", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/characters", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
			assert.NotEmpty(t, body["message"])
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(logger.Nop(), RateLimiterOptions{Limit: 0.001, Burst: 1})
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(logger.Nop(), RateLimiterOptions{Limit: 1, Burst: 1, ExpiryDuration: time.Minute})
	defer rl.Stop()

	rl.Allow("a")
	rl.evict(time.Now().Add(2 * time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.clients)
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	var fromCtx string
	r.GET("/", func(c *gin.Context) {
		fromCtx = GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), fromCtx)
}
