package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"companion-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serveHealth(t *testing.T, c *Checker) (int, map[string]any) {
	t.Helper()
	r := gin.New()
	r.GET("/health", c.Handler("test"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthyDatabase(t *testing.T) {
	c := NewChecker(logger.Nop(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	c.RunChecks(context.Background())

	code, body := serveHealth(t, c)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestDatabaseDownIsUnavailable(t *testing.T) {
	c := NewChecker(logger.Nop(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return errors.New("connection refused") })
	c.RunChecks(context.Background())

	code, body := serveHealth(t, c)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body["status"])
}

func TestRedisDownIsDegradedOnly(t *testing.T) {
	c := NewChecker(logger.Nop(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	c.RegisterRedisCheck(func(context.Context) error { return errors.New("dial tcp: refused") })
	c.RunChecks(context.Background())

	code, body := serveHealth(t, c)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestAPICheck(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	c := NewChecker(logger.Nop(), time.Minute)
	c.RegisterAPICheck("chat", upstream.URL, upstream.Client())
	c.RunChecks(context.Background())

	// A 401 still proves the upstream is reachable
	assert.Equal(t, StatusUp, c.GetStatus()["api-chat"].Status)
}

func TestGRPCHealthMirrorsChecker(t *testing.T) {
	dbErr := errors.New("down")
	c := NewChecker(logger.Nop(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return dbErr })

	g := NewGRPCServer(c, logger.Nop())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = g.ServeListener(lis) }()
	defer g.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	c.RunChecks(context.Background())
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	dbErr = nil
	c.RunChecks(context.Background())
	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
