package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_USER", "shop")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_NAME", "webshop")
	t.Setenv("JWT_SECRET", "s3cret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg := Load()
	require.NotNil(t, cfg)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "webshop-store", cfg.JWTIssuer)
	assert.Equal(t, "webshop-users", cfg.JWTAudience)
	assert.Zero(t, cfg.JWTLeeway)
	assert.Equal(t, 14, cfg.BcryptCost)
	assert.Positive(t, cfg.HashConcurrency)
	assert.True(t, cfg.Purge.Enabled)
	assert.Equal(t, time.Hour, cfg.Purge.Interval)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_TTL", "15m")
	t.Setenv("JWT_LEEWAY", "5s")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("PURGE_ENABLED", "off")
	t.Setenv("RABBITMQ_URL", "amqp://u:p@mq:5672/")

	cfg := Load()
	assert.Equal(t, 15*time.Minute, cfg.JWTTTL)
	assert.Equal(t, 5*time.Second, cfg.JWTLeeway)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.False(t, cfg.Purge.Enabled)
	assert.Equal(t, "amqp://u:p@mq:5672/", cfg.RabbitURL)
}

func TestEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "twelve")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_BOOL", "maybe")

	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, time.Minute, envDur("X_DUR", time.Minute))
	assert.True(t, envBool("X_BOOL", true))
}

func TestLoadRateLimitConfig_Normalizes(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.TTL)
}

func TestLoadRateLimitConfig_Burst(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "25")
	assert.Equal(t, 25, LoadRateLimitConfig().Capacity)
}
