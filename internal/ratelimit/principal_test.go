package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPrincipalLimiterExhaustsBurst(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, Rate: 0.01, Burst: 3}}
	limiter := NewPrincipalLimiter(cfg, newClient(t), zap.NewNop())
	require.True(t, limiter.Enabled())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "42")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := limiter.Allow(ctx, "42")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)

	res, err = limiter.Allow(ctx, "43")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestPrincipalLimiterDisabled(t *testing.T) {
	log := zap.NewNop()

	cases := []struct {
		name   string
		cfg    config.RateLimitConfig
		client *redis.Client
	}{
		{name: "switched off", cfg: config.RateLimitConfig{Rate: 1, Burst: 1}, client: newClient(t)},
		{name: "no redis", cfg: config.RateLimitConfig{Enabled: true, Rate: 1, Burst: 1}},
		{name: "zero burst", cfg: config.RateLimitConfig{Enabled: true, Rate: 1}, client: newClient(t)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limiter := NewPrincipalLimiter(config.Config{RateLimit: tc.cfg}, tc.client, log)
			assert.False(t, limiter.Enabled())

			res, err := limiter.Allow(context.Background(), "42")
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		})
	}
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	bucket := NewTokenBucket(newClient(t))
	ctx := context.Background()

	_, err := bucket.Allow(ctx, "", 1, 1)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = bucket.Allow(ctx, "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidRate)

	var nilBucket *TokenBucket
	_, err = nilBucket.Allow(ctx, "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
