package ratelimit

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/comptoir/internal/config"
	"go.uber.org/zap"
)

const keyPrincipal = "comptoir:ratelimit:principal:%s"

// PrincipalLimiter throttles API calls per principal. A nil limiter allows
// everything.
type PrincipalLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewPrincipalLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *PrincipalLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil
	}
	if client == nil {
		log.Warn("rate limiting enabled without redis, requests are not throttled")
		return nil
	}
	if limitCfg.Rate <= 0 || limitCfg.Burst <= 0 {
		log.Warn("rate limiting disabled, rate and burst must be positive",
			zap.Float64("rate", limitCfg.Rate),
			zap.Int("burst", limitCfg.Burst),
		)
		return nil
	}
	return &PrincipalLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.Rate,
		burst:  limitCfg.Burst,
	}
}

func (l *PrincipalLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *PrincipalLimiter) Allow(ctx context.Context, principalID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPrincipal, principalID), l.rate, l.burst)
}
