package router

import (
	"net/http"
	"strconv"
	"strings"

	"companion-chat/backend/internal/api"
	"companion-chat/backend/internal/ws"
	"companion-chat/backend/pkg/config"
	"companion-chat/backend/pkg/di"
	"companion-chat/backend/pkg/errors"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/middleware"
	"companion-chat/backend/pkg/validator"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Hub         *ws.Hub
	Config      *config.Config
	RateLimiter *middleware.RateLimiter
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	// Use the container's logger
	logger.SetGlobal(container.Logger)

	cfg := container.Config

	// Configure Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	validator.RegisterBindings()

	engine := gin.New()

	// Request IDs first so every log line carries one
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(container.Metrics.Middleware())
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	if cfg.Security.MaxBodySize > 0 {
		engine.Use(middleware.MaxBodySize(cfg.Security.MaxBodySize))
	}

	limiterOpts := middleware.DefaultRateLimiterOptions()
	if cfg.Security.RateLimit > 0 {
		limiterOpts.Limit = rate.Limit(cfg.Security.RateLimit)
	}
	if cfg.Security.RateLimitBurst > 0 {
		limiterOpts.Burst = cfg.Security.RateLimitBurst
	}

	hub := ws.NewHub(
		container.MessageService,
		container.TurnService,
		cfg.Security.AllowedOrigins,
		container.Metrics,
		container.Logger,
	)

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Hub:         hub,
		Config:      cfg,
		RateLimiter: middleware.NewRateLimiter(container.Logger, limiterOpts),
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.setupHealthRoutes()

	characterHandler := api.NewCharacterHandler(r.Container.CharacterService)
	messageHandler := api.NewMessageHandler(r.Container.MessageService)
	sessionHandler := api.NewSessionHandler(r.Container.MessageService, r.Container.TurnService)
	modelHandler := api.NewModelHandler(r.Container.CatalogService)
	relayHandler := api.NewRelayHandler(r.Container.ChatRelay, r.Container.ImageGenerator)

	apiGroup := r.Engine.Group("/api")
	if v := r.openAPIValidator(r.Config.Observability.OpenAPISchemaPath); v != nil {
		apiGroup.Use(v.Middleware())
	}

	// Persistence routes are rate limited; the relays are not
	limited := apiGroup.Group("")
	limited.Use(r.RateLimiter.Middleware())
	{
		characterHandler.RegisterRoutes(limited.Group("/characters"))
		messageHandler.RegisterRoutes(limited.Group("/messages"))
		sessionHandler.RegisterRoutes(limited.Group("/sessions"))
	}

	apiGroup.GET("/models", modelHandler.ListModels)
	apiGroup.POST("/chat/completions", relayHandler.ChatCompletions)
	apiGroup.POST("/images/generations", relayHandler.ImageGenerations)

	// WebSocket chat view
	r.Engine.GET("/ws", r.Hub.ServeWs)
}

// corsMiddleware allows the configured origins and the WebSocket upgrade headers
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case origin == "":
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case set[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type", "Content-Length", "Accept", "Accept-Encoding", "Authorization",
			"Origin", "Upgrade", "Connection", "Cache-Control", middleware.RequestIDHeader,
		}, ", "))
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection, "+middleware.RequestIDHeader)
		c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(86400))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
