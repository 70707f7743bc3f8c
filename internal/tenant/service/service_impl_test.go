package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	auditrepository "github.com/smallbiznis/comptoir/internal/audit/repository"
	auditservice "github.com/smallbiznis/comptoir/internal/audit/service"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	"github.com/smallbiznis/comptoir/internal/identity/cache"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	identityrepository "github.com/smallbiznis/comptoir/internal/identity/repository"
	identityservice "github.com/smallbiznis/comptoir/internal/identity/service"
	"github.com/smallbiznis/comptoir/internal/tenant/domain"
	"github.com/smallbiznis/comptoir/internal/tenant/repository"
	"github.com/smallbiznis/comptoir/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	identity identitydomain.Service
	clock    *clock.FakeClock
	admin    identitydomain.Principal
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.New(t)
	node := dbtest.Node(t)
	log := zap.NewNop()
	fake := clock.NewFakeClock(now)

	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(), Authz: authz, Clock: fake,
	})

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	identity := identityservice.NewService(identityservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  identityrepository.Provide(),
		Authz: authz,
		Audit: audit,
		Cache: cache.New(client, config.Config{PrincipalCacheTTL: time.Minute}, log),
		Clock: fake,
	})

	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     repository.Provide(),
		Authz:    authz,
		Audit:    audit,
		Identity: identity,
		Clock:    fake,
	})

	return fixture{
		db:       db,
		svc:      svc,
		identity: identity,
		clock:    fake,
		admin:    dbtest.SeedPrincipal(t, db, 1, identitydomain.RoleAdmin, 0),
	}
}

func (f fixture) seed(t *testing.T, id snowflake.ID, status domain.SubscriptionStatus, end time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&domain.Tenant{
		ID:                 id,
		Name:               "Maquis " + id.String(),
		Slug:               "maquis-" + id.String(),
		SubscriptionStatus: status,
		Active:             status == domain.StatusActive,
		SubscriptionStart:  domain.AddMonths(end, -12),
		SubscriptionEnd:    end,
		CreatedAt:          now,
		UpdatedAt:          now,
	}).Error)
}

func (f fixture) reload(t *testing.T, id snowflake.ID) domain.Tenant {
	t.Helper()
	var tenant domain.Tenant
	require.NoError(t, f.db.First(&tenant, "id = ?", id).Error)
	return tenant
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	cases := []struct {
		in   time.Time
		n    int
		want time.Time
	}{
		{time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), 12, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC), 1, time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC)},
		{time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), 12, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 2, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, domain.AddMonths(tc.in, tc.n), tc.in.String())
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tenant, err := f.svc.Create(ctx, f.admin, domain.CreateRequest{Name: "Chez Tantie Awa"})
	require.NoError(t, err)
	assert.Equal(t, "chez-tantie-awa", tenant.Slug)
	assert.Equal(t, domain.StatusActive, tenant.SubscriptionStatus)
	assert.True(t, tenant.Active)
	assert.Equal(t, now, tenant.SubscriptionStart)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), tenant.SubscriptionEnd)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &auditdomain.AuditLog{}, "action = ?", auditdomain.ActionEstablishmentCreated))

	_, err = f.svc.Create(ctx, f.admin, domain.CreateRequest{Name: "chez tantie awa"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)

	_, err = f.svc.Create(ctx, f.admin, domain.CreateRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	owner := dbtest.SeedPrincipal(t, f.db, 2, identitydomain.RoleOwner, tenant.ID)
	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{Name: "Other"})
	assert.ErrorIs(t, err, domainerr.ErrForbidden)
}

func TestConfirmPaymentExtendsFromCurrentEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 100, domain.StatusExpired, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))

	tenant, err := f.svc.ConfirmPayment(ctx, f.admin, 100)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), tenant.SubscriptionEnd)
	assert.Equal(t, domain.StatusActive, tenant.SubscriptionStatus)
	assert.True(t, tenant.Active)
	require.NotNil(t, tenant.LastPaymentAt)
	assert.Equal(t, now, *tenant.LastPaymentAt)
	require.NotNil(t, tenant.LastPaymentConfirmedBy)
	assert.Equal(t, f.admin.ID, *tenant.LastPaymentConfirmedBy)

	stored := f.reload(t, 100)
	assert.Equal(t, domain.StatusActive, stored.SubscriptionStatus)

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditdomain.ActionPaymentConfirmed).First(&entry).Error)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, f.admin.ID, *entry.ActorID)

	inactive := f.admin
	inactive.Active = false
	_, err = f.svc.ConfirmPayment(ctx, inactive, 100)
	assert.ErrorIs(t, err, domainerr.ErrForbidden)
}

func TestSuspendAndReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 100, domain.StatusActive, now.AddDate(0, 3, 0))
	server := dbtest.SeedPrincipal(t, f.db, 3, identitydomain.RoleServer, 100)

	_, err := f.identity.Resolve(ctx, server.ID)
	require.NoError(t, err)

	_, err = f.svc.Reactivate(ctx, f.admin, 100)
	assert.ErrorIs(t, err, domain.ErrNotSuspended)

	suspended, err := f.svc.Suspend(ctx, f.admin, 100, "unpaid invoices")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, suspended.SubscriptionStatus)
	assert.False(t, suspended.Active)
	require.NotNil(t, suspended.SuspensionReason)
	assert.Equal(t, "unpaid invoices", *suspended.SuspensionReason)

	_, err = f.identity.Resolve(ctx, server.ID)
	assert.ErrorIs(t, err, domainerr.ErrInactiveAccount)

	reactivated, err := f.svc.Reactivate(ctx, f.admin, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, reactivated.SubscriptionStatus)
	assert.Nil(t, reactivated.SuspensionReason)

	_, err = f.identity.Resolve(ctx, server.ID)
	assert.NoError(t, err)

	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &auditdomain.AuditLog{}, "action = ?", auditdomain.ActionEstablishmentSuspended))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &auditdomain.AuditLog{}, "action = ?", auditdomain.ActionEstablishmentReactivated))
}

func TestReactivateRejectsEndedSubscription(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 100, domain.StatusSuspended, now.AddDate(0, 0, -1))

	_, err := f.svc.Reactivate(context.Background(), f.admin, 100)
	assert.True(t, errors.Is(err, domainerr.ErrCannotReactivateExpired))
	assert.Equal(t, domain.StatusSuspended, f.reload(t, 100).SubscriptionStatus)
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 100, domain.StatusActive, now.AddDate(0, 0, -10))
	f.seed(t, 200, domain.StatusActive, now.AddDate(0, 0, 10))
	f.seed(t, 300, domain.StatusSuspended, now.AddDate(0, 0, -10))

	result, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Zero(t, result.Failed)
	require.Len(t, result.Results, 1)
	assert.Equal(t, snowflake.ID(100), result.Results[0].TenantID)
	assert.True(t, result.Results[0].Expired)

	expired := f.reload(t, 100)
	assert.Equal(t, domain.StatusExpired, expired.SubscriptionStatus)
	assert.False(t, expired.Active)
	assert.Equal(t, domain.StatusActive, f.reload(t, 200).SubscriptionStatus)
	assert.Equal(t, domain.StatusSuspended, f.reload(t, 300).SubscriptionStatus)

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditdomain.ActionSubscriptionExpired).First(&entry).Error)
	assert.Nil(t, entry.ActorID)
	assert.Equal(t, "100", entry.EntityID)

	again, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Processed)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &auditdomain.AuditLog{}, "action = ?", auditdomain.ActionSubscriptionExpired))
}

func TestExpireOverdueContinuesPastFailedTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 100, domain.StatusActive, now.AddDate(0, 0, -10))
	f.seed(t, 200, domain.StatusActive, now.AddDate(0, 0, -3))
	require.NoError(t, f.db.Exec(`CREATE TRIGGER reject_tenant_100 BEFORE UPDATE ON tenants
		WHEN OLD.id = 100
		BEGIN SELECT RAISE(ABORT, 'tenant row locked'); END`).Error)

	result, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 2)

	outcomes := map[snowflake.ID]domain.ExpireOutcome{}
	for _, outcome := range result.Results {
		outcomes[outcome.TenantID] = outcome
	}
	assert.NotEmpty(t, outcomes[100].Error)
	assert.False(t, outcomes[100].Expired)
	assert.Empty(t, outcomes[200].Error)
	assert.True(t, outcomes[200].Expired)

	assert.Equal(t, domain.StatusActive, f.reload(t, 100).SubscriptionStatus)
	assert.Equal(t, domain.StatusExpired, f.reload(t, 200).SubscriptionStatus)

	require.Equal(t, int64(1), dbtest.Count(t, f.db, &auditdomain.AuditLog{}, "action = ?", auditdomain.ActionExpirationError))
	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditdomain.ActionExpirationError).First(&entry).Error)
	assert.Equal(t, "100", entry.EntityID)
	assert.Nil(t, entry.ActorID)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &auditdomain.AuditLog{}, "action = ? AND entity_id = ?", auditdomain.ActionSubscriptionExpired, "200"))
}

func TestReadsAndGuardedDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 100, domain.StatusActive, now.AddDate(1, 0, 0))
	f.seed(t, 200, domain.StatusActive, now.AddDate(1, 0, 0))
	counter := dbtest.SeedPrincipal(t, f.db, 2, identitydomain.RoleCounter, 100)

	all, err := f.svc.List(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := f.svc.List(ctx, counter)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, snowflake.ID(100), own[0].ID)

	_, err = f.svc.Get(ctx, counter, 200)
	assert.ErrorIs(t, err, domainerr.ErrNotFound)

	renamed := "Le Grand Maquis"
	updated, err := f.svc.Update(ctx, f.admin, 200, domain.UpdateRequest{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "le-grand-maquis", updated.Slug)

	err = f.svc.Delete(ctx, f.admin, 100)
	assert.ErrorIs(t, err, domain.ErrHasDependents)

	require.NoError(t, f.db.Exec(
		`INSERT INTO business_sequences (tenant_id, kind, day, last_value) VALUES (?, ?, ?, ?)`,
		200, "order", "20240601", 3,
	).Error)
	require.NoError(t, f.svc.Delete(ctx, f.admin, 200))
	_, err = f.svc.Get(ctx, f.admin, 200)
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}
