package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewForTestDefaults(t *testing.T) {
	cfg := NewForTest()

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Chat.Timeout)
	assert.Equal(t, "provider-4/gpt-4.1", cfg.Chat.DefaultModel)
	assert.Equal(t, "placeholder", cfg.Image.Backend)
	assert.Equal(t, []string{"*"}, cfg.Security.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("DB_DRIVER", "SQLite")
	v.Set("RELAY_TIMEOUT", "5s")
	v.Set("ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	v.Set("APP_ENV", "production")

	cfg := Load(v)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Chat.Timeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.IsProduction())
}

func TestOpenDBSqlite(t *testing.T) {
	cfg := NewForTest()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = "file::memory:"

	db, err := OpenDB(cfg)
	require.NoError(t, err)
	assert.NoError(t, TestConnection(db))
}

func TestOpenDBUnknownDriver(t *testing.T) {
	cfg := NewForTest()
	cfg.Database.Driver = "oracle"

	_, err := OpenDB(cfg)
	assert.Error(t, err)
}
