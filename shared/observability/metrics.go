package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics groups the collectors exported on /metrics. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	relayCalls   *prometheus.CounterVec
	relayLatency *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
	wsClients    prometheus.Gauge

	turns otelmetric.Int64Counter
}

// NewMetrics builds a private registry, registers the service collectors and
// bridges an OpenTelemetry meter onto the same registry.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		relayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_calls_total",
			Help: "Upstream relay calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		relayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_call_duration_seconds",
			Help:    "Upstream relay latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"kind"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_open",
			Help: "1 while the named circuit breaker is open or half-open.",
		}, []string{"name"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Connected chat WebSocket clients.",
		}),
	}
	reg.MustRegister(m.httpRequests, m.httpLatency, m.relayCalls, m.relayLatency, m.breakerState, m.wsClients)

	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	m.provider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))

	m.turns, err = m.provider.Meter(TracerName).Int64Counter("chat_turns",
		otelmetric.WithDescription("Chat turns by mode and outcome."))
	if err != nil {
		return nil, fmt.Errorf("failed to create turn counter: %w", err)
	}

	return m, nil
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Middleware records request counts and latency per matched route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveRelay records one upstream call
func (m *Metrics) ObserveRelay(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.relayCalls.WithLabelValues(kind, outcome).Inc()
	m.relayLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// SetBreakerOpen flags a breaker as tripped or recovered
func (m *Metrics) SetBreakerOpen(name string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.breakerState.WithLabelValues(name).Set(v)
}

// AddWSClients adjusts the connected client gauge
func (m *Metrics) AddWSClients(delta float64) {
	if m == nil {
		return
	}
	m.wsClients.Add(delta)
}

// RecordTurn counts a finished chat turn through the OpenTelemetry meter
func (m *Metrics) RecordTurn(ctx context.Context, mode, outcome string) {
	if m == nil {
		return
	}
	m.turns.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

// Shutdown stops the OpenTelemetry meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
