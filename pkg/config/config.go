package config

import (
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		GRPCPort string
		Env      string
		Timeout  time.Duration
		Version  string
	}

	// Database configuration
	Database struct {
		Driver   string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		Path     string
		MaxConns int
		Timeout  time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Upstream chat-completion API
	Chat struct {
		APIURL             string
		APIKeyName         string
		DefaultModel       string
		Timeout            time.Duration
		MaxHistoryMessages int
		BreakerEnabled     bool
	}

	// Image generation backend
	Image struct {
		Backend    string
		APIKeyName string
		BaseURL    string
		Model      string
	}

	// Redis settings
	Redis struct {
		Enabled  bool
		URL      string
		Password string
		DB       int
		TTL      time.Duration
		LockTTL  time.Duration
	}

	// Cache settings
	Cache struct {
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	// Vault settings
	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
	}

	// Observability
	Observability struct {
		TracingEnabled    bool
		MetricsEnabled    bool
		OpenAPISchemaPath string
		HealthUpstreamURL string
		HealthPeriod      time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance from the environment (and CONFIG_FILE when set).
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		_ = godotenv.Load()

		instance = Load(newViper())
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		// A missing or broken file falls back to env + defaults
		_ = v.ReadInConfig()
	}
	return v
}

// Load builds a Config from an already prepared viper instance.
func Load(v *viper.Viper) *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = v.GetString("PORT")
	cfg.Server.GRPCPort = v.GetString("GRPC_PORT")
	cfg.Server.Env = v.GetString("APP_ENV")
	cfg.Server.Timeout = v.GetDuration("SERVER_TIMEOUT")
	cfg.Server.Version = v.GetString("APP_VERSION")

	// Database config
	cfg.Database.Driver = strings.ToLower(v.GetString("DB_DRIVER"))
	cfg.Database.Host = v.GetString("DB_HOST")
	cfg.Database.Port = v.GetString("DB_PORT")
	cfg.Database.User = v.GetString("DB_USER")
	cfg.Database.Password = v.GetString("DB_PASSWORD")
	cfg.Database.Name = v.GetString("DB_NAME")
	cfg.Database.SSLMode = v.GetString("DB_SSL_MODE")
	cfg.Database.Path = v.GetString("DB_PATH")
	cfg.Database.MaxConns = v.GetInt("DB_MAX_CONNS")
	cfg.Database.Timeout = v.GetDuration("DB_TIMEOUT")

	// Security config
	cfg.Security.RateLimit = v.GetFloat64("RATE_LIMIT")
	cfg.Security.RateLimitBurst = v.GetInt("RATE_LIMIT_BURST")
	cfg.Security.AllowedOrigins = splitList(v.GetString("ALLOWED_ORIGINS"))
	cfg.Security.MaxBodySize = v.GetInt64("MAX_BODY_SIZE")

	// Logging config
	cfg.Logging.Level = v.GetString("LOG_LEVEL")
	cfg.Logging.Format = v.GetString("LOG_FORMAT")

	// Chat relay
	cfg.Chat.APIURL = v.GetString("CHAT_API_URL")
	cfg.Chat.APIKeyName = v.GetString("CHAT_API_KEY_NAME")
	cfg.Chat.DefaultModel = v.GetString("CHAT_DEFAULT_MODEL")
	cfg.Chat.Timeout = v.GetDuration("RELAY_TIMEOUT")
	cfg.Chat.MaxHistoryMessages = v.GetInt("MAX_HISTORY_MESSAGES")
	cfg.Chat.BreakerEnabled = v.GetBool("RELAY_BREAKER_ENABLED")

	// Image relay
	cfg.Image.Backend = strings.ToLower(v.GetString("IMAGE_BACKEND"))
	cfg.Image.APIKeyName = v.GetString("IMAGE_API_KEY_NAME")
	cfg.Image.BaseURL = v.GetString("OPENAI_BASE_URL")
	cfg.Image.Model = v.GetString("IMAGE_MODEL")

	// Redis
	cfg.Redis.Enabled = v.GetBool("REDIS_ENABLED")
	cfg.Redis.URL = v.GetString("REDIS_URL")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.TTL = v.GetDuration("CACHE_TTL")
	cfg.Redis.LockTTL = v.GetDuration("REDIS_LOCK_TTL")

	// In-process cache
	cfg.Cache.TTL = v.GetDuration("CATALOG_CACHE_TTL")
	cfg.Cache.MaxSize = v.GetInt("CACHE_MAX_SIZE")
	cfg.Cache.PurgeWindow = v.GetDuration("CACHE_PURGE_WINDOW")

	// Vault
	cfg.Vault.Enabled = v.GetBool("VAULT_ENABLED")
	cfg.Vault.Address = v.GetString("VAULT_ADDR")
	cfg.Vault.Token = v.GetString("VAULT_TOKEN")
	cfg.Vault.Namespace = v.GetString("VAULT_NAMESPACE")
	cfg.Vault.SecretsPath = v.GetString("VAULT_SECRETS_PATH")

	// Observability
	cfg.Observability.TracingEnabled = v.GetBool("TRACING_ENABLED")
	cfg.Observability.MetricsEnabled = v.GetBool("METRICS_ENABLED")
	cfg.Observability.OpenAPISchemaPath = v.GetString("OPENAPI_SCHEMA_PATH")
	cfg.Observability.HealthUpstreamURL = v.GetString("HEALTH_UPSTREAM_URL")
	cfg.Observability.HealthPeriod = v.GetDuration("HEALTH_CHECK_PERIOD")

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8081")
	v.SetDefault("GRPC_PORT", "9094")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVER_TIMEOUT", 30*time.Second)
	v.SetDefault("APP_VERSION", "dev")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "companion_chat")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_PATH", "companion_chat.db")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_TIMEOUT", 5*time.Second)

	v.SetDefault("RATE_LIMIT", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_BODY_SIZE", 1<<20) // 1MB

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CHAT_API_URL", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("CHAT_API_KEY_NAME", "chat_api_key")
	v.SetDefault("CHAT_DEFAULT_MODEL", "provider-4/gpt-4.1")
	v.SetDefault("RELAY_TIMEOUT", 30*time.Second)
	v.SetDefault("MAX_HISTORY_MESSAGES", 50)
	v.SetDefault("RELAY_BREAKER_ENABLED", true)

	v.SetDefault("IMAGE_BACKEND", "placeholder")
	v.SetDefault("IMAGE_API_KEY_NAME", "openai_api_key")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("IMAGE_MODEL", "dall-e-3")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", 10*time.Minute)
	v.SetDefault("REDIS_LOCK_TTL", 10*time.Second)

	v.SetDefault("CATALOG_CACHE_TTL", 5*time.Minute)
	v.SetDefault("CACHE_MAX_SIZE", 1000)
	v.SetDefault("CACHE_PURGE_WINDOW", 10*time.Minute)

	v.SetDefault("VAULT_ENABLED", false)
	v.SetDefault("VAULT_ADDR", "")
	v.SetDefault("VAULT_TOKEN", "")
	v.SetDefault("VAULT_NAMESPACE", "")
	v.SetDefault("VAULT_SECRETS_PATH", "companion-chat")

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("OPENAPI_SCHEMA_PATH", "")
	v.SetDefault("HEALTH_UPSTREAM_URL", "")
	v.SetDefault("HEALTH_CHECK_PERIOD", 30*time.Second)
}

// NewForTest returns a Config populated with defaults only, ignoring the environment.
func NewForTest() *Config {
	v := viper.New()
	setDefaults(v)
	return Load(v)
}

// IsProduction reports whether the app runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
