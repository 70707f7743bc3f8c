package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/smallbiznis/comptoir/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisCacheRoundTripAndExpiry(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	c := New(client, config.Config{PrincipalCacheTTL: 10 * time.Second}, zap.NewNop())
	ctx := context.Background()
	tenant := snowflake.ID(7)
	principal := domain.Principal{ID: 3, Role: domain.RoleCounter, TenantID: &tenant, Active: true}

	_, ok := c.Get(ctx, 3)
	assert.False(t, ok)

	c.Set(ctx, principal)
	got, ok := c.Get(ctx, 3)
	require.True(t, ok)
	assert.Equal(t, principal.Role, got.Role)
	require.NotNil(t, got.TenantID)
	assert.Equal(t, tenant, *got.TenantID)

	srv.FastForward(11 * time.Second)
	_, ok = c.Get(ctx, 3)
	assert.False(t, ok)
}

func TestRedisCacheDelete(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	c := New(client, config.Config{}, zap.NewNop())
	ctx := context.Background()
	c.Set(ctx, domain.Principal{ID: 1, Role: domain.RoleAdmin, Active: true})
	c.Set(ctx, domain.Principal{ID: 2, Role: domain.RoleAdmin, Active: true})

	c.Delete(ctx, 1, 2)
	assert.False(t, srv.Exists(key(1)))
	assert.False(t, srv.Exists(key(2)))
}

func TestNilClientDisablesCache(t *testing.T) {
	c := New(nil, config.Config{}, zap.NewNop())
	c.Set(context.Background(), domain.Principal{ID: 1})
	_, ok := c.Get(context.Background(), 1)
	assert.False(t, ok)
}
