package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/webshop-accounts/internal/config"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTokenBucketPassThroughWithoutRedis(t *testing.T) {
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, quietLogger())
	for i := 0; i < 3; i++ {
		_, called, err := run(t, mw, "")
		require.NoError(t, err)
		assert.True(t, called)
	}
}

func TestTokenBucketFailsOpenOnRedisError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	mw := NewTokenBucket(config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "throttle",
	}, rdb, quietLogger())
	_, called, err := run(t, mw, "")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestBucketKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/users/login", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.1.2.3")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/users/login")

	cfg := config.RateLimitConfig{Prefix: "throttle"}
	cases := map[string]string{
		"ip":       "throttle:ip:10.1.2.3",
		"ROUTE":    "throttle:route:POST /api/users/login",
		"ip_route": "throttle:ip:10.1.2.3:route:POST /api/users/login",
		"":         "throttle:ip:10.1.2.3:route:POST /api/users/login",
	}
	for strategy, want := range cases {
		cfg.KeyStrategy = strategy
		assert.Equal(t, want, bucketKey(cfg, c), strategy)
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	assert.Equal(t, int64(0), retryAfter(-5))
	assert.Equal(t, int64(0), retryAfter(0))
	assert.Equal(t, int64(1), retryAfter(1))
	assert.Equal(t, int64(1), retryAfter(1000))
	assert.Equal(t, int64(2), retryAfter(1001))
}
