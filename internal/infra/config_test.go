package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, 3200, cfg.APIPort)
		assert.Equal(t, 15, cfg.BettingDurationSeconds)
		assert.Equal(t, 5, cfg.SpinningDurationSeconds)
		assert.Equal(t, 3, cfg.ResultsDurationSeconds)
		assert.Equal(t, int64(10), cfg.MinStake)
		assert.Equal(t, int64(10000), cfg.MaxStake)
		assert.Equal(t, int64(5000), cfg.InitialBalance)
		assert.Equal(t, 64, cfg.SubscriberQueueDepth)
		assert.Equal(t, 10, cfg.BetRateLimitPerSecond)
		assert.False(t, cfg.MemoryStore)
		assert.False(t, cfg.KafkaEnabled)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("API_PORT", "9999")
		t.Setenv("BETTING_DURATION_SECONDS", "30")
		t.Setenv("MEMORY_STORE", "true")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 9999, cfg.APIPort)
		assert.Equal(t, 30*time.Second, cfg.BettingDuration())
		assert.True(t, cfg.MemoryStore)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		cfg.AllowInsecureDefaults = true
		return cfg
	}

	t.Run("defaults valid in dev mode", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("insecure JWT secret rejected", func(t *testing.T) {
		cfg := base()
		cfg.AllowInsecureDefaults = false
		assert.Error(t, cfg.Validate())
	})

	t.Run("short JWT secret rejected", func(t *testing.T) {
		cfg := base()
		cfg.AllowInsecureDefaults = false
		cfg.JWTSecret = "too-short"
		assert.Error(t, cfg.Validate())
	})

	t.Run("long JWT secret accepted", func(t *testing.T) {
		cfg := base()
		cfg.AllowInsecureDefaults = false
		cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("inverted stake bounds rejected", func(t *testing.T) {
		cfg := base()
		cfg.MinStake = 100
		cfg.MaxStake = 10
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero phase duration rejected", func(t *testing.T) {
		cfg := base()
		cfg.BettingDurationSeconds = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestDSN(t *testing.T) {
	t.Run("built from parts", func(t *testing.T) {
		cfg := &Config{PGHost: "db", PGPort: 5433, PGUser: "u", PGPassword: "p", PGDatabase: "roulette"}
		assert.Equal(t, "postgres://u:p@db:5433/roulette?sslmode=disable", cfg.DSN())
	})

	t.Run("DATABASE_URL wins", func(t *testing.T) {
		cfg := &Config{DatabaseURL: "postgres://elsewhere/x"}
		assert.Equal(t, "postgres://elsewhere/x", cfg.DSN())
	})
}
