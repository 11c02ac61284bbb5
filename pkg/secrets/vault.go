package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"companion-chat/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultConfig holds configuration for Vault client
type VaultConfig struct {
	Address     string
	Token       string
	Namespace   string
	Mount       string
	SecretsPath string
	Timeout     time.Duration
	MaxRetries  int
	CacheTTL    time.Duration
	Enabled     bool
}

// kvReader is the slice of the Vault KV v2 API the manager needs
type kvReader interface {
	Get(ctx context.Context, secretPath string) (*vault.KVSecret, error)
}

// VaultManager manages secrets with HashiCorp Vault, falling back to the environment
type VaultManager struct {
	kv       kvReader
	config   VaultConfig
	cache    map[string]cachedSecret
	mu       sync.RWMutex
	log      *logger.Logger
	getenv   func(string) string
	cacheTTL time.Duration
}

type cachedSecret struct {
	value   string
	expires time.Time
}

// NewVaultManager creates a new Vault manager instance
func NewVaultManager(config VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if log == nil {
		log = logger.GetGlobal()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.Mount == "" {
		config.Mount = "secret"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}

	manager := &VaultManager{
		config:   config,
		cache:    make(map[string]cachedSecret),
		log:      log,
		getenv:   os.Getenv,
		cacheTTL: config.CacheTTL,
	}

	// If Vault is disabled, the manager only reads the environment
	if !config.Enabled {
		return manager, nil
	}

	// Validate required configuration
	if config.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if config.Token == "" {
		return nil, ErrNoVaultToken
	}

	// Create Vault client configuration
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.Timeout = config.Timeout
	vaultConfig.MaxRetries = config.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	// Set token and namespace
	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	manager.kv = client.KVv2(config.Mount)
	return manager, nil
}

// GetSecret retrieves a secret from Vault, with fallback to environment variable
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if value, ok := m.cached(key); ok {
		return value, nil
	}

	// If Vault is disabled, fall back to environment variables only
	if m.kv == nil {
		return m.getFromEnvironment(key)
	}

	value, err := m.getFromVault(ctx, key)
	if err != nil {
		m.log.Warn("Secret unavailable in Vault, falling back to environment",
			"key", key,
			"error", err.Error(),
		)
		return m.getFromEnvironment(key)
	}

	m.cacheSecret(key, value)
	return value, nil
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		m.log.Debug("Secret not found, using default value", "key", key)
		return defaultValue
	}
	return value
}

// getFromVault reads key out of the configured KV v2 secret
func (m *VaultManager) getFromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.kv.Get(ctx, m.config.SecretsPath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}

	value, ok := secret.Data[key].(string)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}

	return value, nil
}

// getFromEnvironment maps chat_api_key / chat-api-key / chat.api.key to CHAT_API_KEY
func (m *VaultManager) getFromEnvironment(key string) (string, error) {
	envKey := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))

	value := m.getenv(envKey)
	if value == "" {
		return "", ErrSecretNotFound
	}

	m.cacheSecret(key, value)
	return value, nil
}

func (m *VaultManager) cached(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.cache[key]
	if !ok || time.Now().After(entry.expires) {
		return "", false
	}
	return entry.value, true
}

// cacheSecret adds a secret to the cache
func (m *VaultManager) cacheSecret(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = cachedSecret{value: value, expires: time.Now().Add(m.cacheTTL)}
}
