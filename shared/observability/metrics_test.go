package observability

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposeRelayAndTurns(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	m.ObserveRelay("chat", "success", 120*time.Millisecond)
	m.SetBreakerOpen("chat-relay", true)
	m.AddWSClients(1)
	m.RecordTurn(context.Background(), "text", "fallback")

	out := scrape(t, m)
	assert.Contains(t, out, `relay_calls_total{kind="chat",outcome="success"} 1`)
	assert.Contains(t, out, `circuit_breaker_open{name="chat-relay"} 1`)
	assert.Contains(t, out, "ws_clients 1")
	assert.Contains(t, out, "chat_turns")
}

func TestMiddlewareCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := NewMetrics()
	require.NoError(t, err)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/characters/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/characters/9999999", nil))

	assert.Contains(t, scrape(t, m), `http_requests_total{method="GET",route="/api/characters/:id",status="404"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRelay("chat", "error", time.Second)
	m.RecordTurn(context.Background(), "text", "success")
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestSetupTracingWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing("companion-chat-test", &buf)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "relay.chat")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "relay.chat")
}
