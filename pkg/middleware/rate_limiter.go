package middleware

import (
	"strconv"
	"sync"
	"time"

	"companion-chat/backend/pkg/errors"
	"companion-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// CleanupInterval defines how often idle clients are evicted
	CleanupInterval time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions returns sensible defaults
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:           5,         // 5 requests per second
		Burst:           10,        // Burst of 10 requests
		ExpiryDuration:  time.Hour, // Clean up limiter entries after 1 hour
		CleanupInterval: time.Minute,
		KeyFunc: func(c *gin.Context) string {
			// Default to client IP
			return c.ClientIP()
		},
	}
}

// client represents a rate limiter client
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements per-client token bucket limiting for Gin
type RateLimiter struct {
	mu       sync.Mutex
	options  RateLimiterOptions
	clients  map[string]*client
	logger   *logger.Logger
	stop     chan struct{}
	stopOnce sync.Once
	started  sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(logger *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
		def := DefaultRateLimiterOptions()
		if opts.KeyFunc == nil {
			opts.KeyFunc = def.KeyFunc
		}
		if opts.ExpiryDuration <= 0 {
			opts.ExpiryDuration = def.ExpiryDuration
		}
		if opts.CleanupInterval <= 0 {
			opts.CleanupInterval = def.CleanupInterval
		}
	}

	return &RateLimiter{
		options: opts,
		clients: make(map[string]*client),
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

// Middleware returns a Gin middleware for rate limiting
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	// Start cleanup goroutine once per limiter
	r.started.Do(func() { go r.cleanup() })

	limitHeader := strconv.Itoa(r.options.Burst)

	return func(c *gin.Context) {
		// Get client key
		key := r.options.KeyFunc(c)

		// Check if request is allowed
		if !r.Allow(key) {
			r.logger.Warn("Rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Limit", limitHeader)
			_ = c.Error(errors.NewTooManyRequestsError("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}

// Allow consumes a token for key
func (r *RateLimiter) Allow(key string) bool {
	return r.getLimiter(key).Allow()
}

// Stop terminates the cleanup goroutine
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// getLimiter returns a rate limiter for the given key
func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.clients[key]
	if !exists {
		limiter := rate.NewLimiter(r.options.Limit, r.options.Burst)
		r.clients[key] = &client{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	// Update last seen
	v.lastSeen = time.Now()
	return v.limiter
}

// cleanup removes old entries from the clients map
func (r *RateLimiter) cleanup() {
	ticker := time.NewTicker(r.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.evict(time.Now())
		}
	}
}

func (r *RateLimiter) evict(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.clients {
		if now.Sub(v.lastSeen) > r.options.ExpiryDuration {
			delete(r.clients, k)
		}
	}
}
