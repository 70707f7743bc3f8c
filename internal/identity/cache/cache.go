// Package cache keeps resolved principals in redis so that request
// authentication does not hit the database on every call.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/smallbiznis/comptoir/internal/identity/domain"
	"go.uber.org/zap"
)

const keyPrincipal = "comptoir:principal:%d"

// PrincipalCache only ever holds principals that resolved successfully.
type PrincipalCache interface {
	Get(ctx context.Context, id snowflake.ID) (domain.Principal, bool)
	Set(ctx context.Context, principal domain.Principal)
	Delete(ctx context.Context, ids ...snowflake.ID)
}

// New returns a redis-backed cache, or a no-op one when client is nil.
func New(client *redis.Client, cfg config.Config, log *zap.Logger) PrincipalCache {
	if client == nil {
		return nopCache{}
	}
	ttl := cfg.PrincipalCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisCache{
		client: client,
		ttl:    ttl,
		log:    log.Named("identity.cache"),
	}
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func key(id snowflake.ID) string {
	return fmt.Sprintf(keyPrincipal, id.Int64())
}

func (c *redisCache) Get(ctx context.Context, id snowflake.ID) (domain.Principal, bool) {
	raw, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("principal cache read failed", zap.Int64("principal_id", id.Int64()), zap.Error(err))
		}
		return domain.Principal{}, false
	}
	var principal domain.Principal
	if err := json.Unmarshal(raw, &principal); err != nil {
		c.log.Warn("principal cache entry corrupt", zap.Int64("principal_id", id.Int64()), zap.Error(err))
		return domain.Principal{}, false
	}
	return principal, true
}

func (c *redisCache) Set(ctx context.Context, principal domain.Principal) {
	raw, err := json.Marshal(principal)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(principal.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("principal cache write failed", zap.Int64("principal_id", principal.ID.Int64()), zap.Error(err))
	}
}

func (c *redisCache) Delete(ctx context.Context, ids ...snowflake.ID) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, key(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("principal cache invalidation failed", zap.Int("count", len(keys)), zap.Error(err))
	}
}

type nopCache struct{}

func (nopCache) Get(context.Context, snowflake.ID) (domain.Principal, bool) {
	return domain.Principal{}, false
}
func (nopCache) Set(context.Context, domain.Principal)   {}
func (nopCache) Delete(context.Context, ...snowflake.ID) {}
