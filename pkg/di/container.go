package di

import (
	"context"
	"fmt"
	"net/http"

	"companion-chat/backend/ai"
	"companion-chat/backend/internal/repository"
	"companion-chat/backend/internal/service"
	"companion-chat/backend/pkg/cache"
	"companion-chat/backend/pkg/config"
	"companion-chat/backend/pkg/health"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/secrets"
	"companion-chat/backend/shared/observability"
	"companion-chat/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB      *gorm.DB
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *observability.Metrics
	Redis   *redis.RedisClient
	Secrets secrets.Manager
	Health  *health.Checker

	ChatRelay      *ai.ChatRelay
	ImageGenerator ai.ImageGenerator

	CharacterService *service.CharacterService
	MessageService   *service.MessageService
	CatalogService   *service.CatalogService
	TurnService      *service.TurnService

	catalogCache *cache.Cache
}

// New creates a new dependency injection container
func New(db *gorm.DB, cfg *config.Config, log *logger.Logger) (*Container, error) {
	if cfg == nil {
		cfg = config.Get()
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	c := &Container{DB: db, Config: cfg, Logger: log}

	if cfg.Observability.MetricsEnabled {
		metrics, err := observability.NewMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
		c.Metrics = metrics
	}

	// Secrets come from Vault when enabled, the environment otherwise
	sm, err := secrets.NewVaultManager(secrets.VaultConfig{
		Enabled:     cfg.Vault.Enabled,
		Address:     cfg.Vault.Address,
		Token:       cfg.Vault.Token,
		Namespace:   cfg.Vault.Namespace,
		SecretsPath: cfg.Vault.SecretsPath,
		CacheTTL:    cfg.Cache.TTL,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %w", err)
	}
	c.Secrets = sm

	// Shared store is optional; services fall back to in-process behaviour
	var store service.Store
	if cfg.Redis.Enabled {
		c.Redis = redis.NewRedisClient(redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = c.Redis
	}

	httpClient := &http.Client{}
	c.ChatRelay = ai.NewChatRelay(ai.ChatRelayConfig{
		URL:        cfg.Chat.APIURL,
		APIKeyName: cfg.Chat.APIKeyName,
		Timeout:    cfg.Chat.Timeout,
		Breaker:    cfg.Chat.BreakerEnabled,
	}, httpClient, sm, c.Metrics, log)

	c.ImageGenerator, err = ai.NewImageGenerator(cfg.Image.Backend, ai.OpenAIImageConfig{
		APIKeyName: cfg.Image.APIKeyName,
		BaseURL:    cfg.Image.BaseURL,
		Model:      cfg.Image.Model,
		Timeout:    cfg.Chat.Timeout,
	}, sm, c.Metrics, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create image generator: %w", err)
	}

	c.catalogCache = cache.NewCache(cache.Options{
		DefaultExpiration: cfg.Cache.TTL,
		CleanupInterval:   cfg.Cache.PurgeWindow,
		MaxItems:          cfg.Cache.MaxSize,
	})

	c.CharacterService = service.NewCharacterService(repository.NewGormCharacterRepository(db), store, cfg.Redis.TTL, log)
	c.MessageService = service.NewMessageService(repository.NewGormMessageRepository(db), c.CharacterService, store, cfg.Redis.LockTTL, log)
	c.CatalogService = service.NewCatalogService(repository.NewGormModelRepository(db), c.catalogCache, log)
	c.TurnService = service.NewTurnService(c.MessageService, c.CharacterService, c.ChatRelay, c.ImageGenerator, service.TurnConfig{
		DefaultModel: cfg.Chat.DefaultModel,
		MaxHistory:   cfg.Chat.MaxHistoryMessages,
		RelayTimeout: cfg.Chat.Timeout,
	}, c.Metrics, log)

	c.Health = health.NewChecker(log, cfg.Observability.HealthPeriod)
	c.Health.RegisterDatabaseCheck(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	if c.Redis != nil {
		c.Health.RegisterRedisCheck(c.Redis.Ping)
	}
	if cfg.Observability.HealthUpstreamURL != "" {
		c.Health.RegisterAPICheck("chat_api", cfg.Observability.HealthUpstreamURL, httpClient)
	}

	return c, nil
}

// Close releases background resources held by the container
func (c *Container) Close(ctx context.Context) error {
	c.catalogCache.Stop()
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.LogError(err, "Failed to close redis client")
		}
	}
	return c.Metrics.Shutdown(ctx)
}
