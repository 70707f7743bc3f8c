package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/audit/repository"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	obscontext "github.com/smallbiznis/comptoir/internal/observability/context"
	"github.com/smallbiznis/comptoir/internal/testutil/dbtest"
	"github.com/smallbiznis/comptoir/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   auditdomain.Service
	clock *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.New(t)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Repo:  repository.Provide(),
		Authz: authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		Clock: fake,
	})
	return fixture{db: db, svc: svc, clock: fake}
}

func principal(id int64, role identitydomain.Role, tenant int64) identitydomain.Principal {
	p := identitydomain.Principal{ID: snowflake.ID(id), Role: role, Active: true}
	if tenant != 0 {
		tid := snowflake.ID(tenant)
		p.TenantID = &tid
	}
	return p
}

func TestRecordStoresSnapshotsAndRequestID(t *testing.T) {
	f := newFixture(t)
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	tenantID := snowflake.ID(10)
	actorID := snowflake.ID(20)

	err := f.svc.Record(ctx, f.db, auditdomain.Entry{
		TenantID: &tenantID,
		ActorID:  &actorID,
		Action:   auditdomain.Created(auditdomain.EntityProduct),
		Entity:   auditdomain.EntityProduct,
		EntityID: "99",
		After:    map[string]any{"name": "Flag"},
	})
	require.NoError(t, err)

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	entry := logs[0]
	assert.Equal(t, "product.created", entry.Action)
	assert.Equal(t, "99", entry.EntityID)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, actorID, *entry.ActorID)
	assert.Empty(t, entry.BeforeState)
	assert.JSONEq(t, `{"name":"Flag"}`, string(entry.AfterState))
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
}

func TestRecordTypedNilIsNull(t *testing.T) {
	f := newFixture(t)
	var before *struct{ Name string }
	require.NoError(t, f.svc.Record(context.Background(), nil, auditdomain.Entry{
		Action:   auditdomain.Deleted(auditdomain.EntityOrder),
		Entity:   auditdomain.EntityOrder,
		EntityID: "1",
		Before:   before,
	}))

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.First(&entry).Error)
	assert.Empty(t, entry.BeforeState)
	assert.Empty(t, entry.AfterState)
	assert.Nil(t, entry.ActorID, "no actor marks a system action")
}

func TestRecordJoinsCallerTransaction(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")

	err := f.db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, f.svc.Record(context.Background(), tx, auditdomain.Entry{
			Action: auditdomain.Updated(auditdomain.EntityOrder), Entity: auditdomain.EntityOrder, EntityID: "1",
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, dbtest.Count(t, f.db, &auditdomain.AuditLog{}, ""))
}

func TestRecordRejectsMissingAction(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Record(context.Background(), nil, auditdomain.Entry{Entity: auditdomain.EntityOrder})
	assert.ErrorIs(t, err, domainerr.ErrValidation)
}

func TestRecordActionUsesCallerIdentity(t *testing.T) {
	f := newFixture(t)
	admin := principal(1, identitydomain.RoleAdmin, 0)

	entry, err := f.svc.RecordAction(context.Background(), admin, auditdomain.ActionRequest{
		Action:   auditdomain.ActionAdminLogin,
		Entity:   auditdomain.EntityPrincipal,
		EntityID: "1",
	})
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, snowflake.ID(1), *entry.ActorID)
	assert.Nil(t, entry.TenantID)

	inactive := principal(2, identitydomain.RoleOwner, 5)
	inactive.Active = false
	_, err = f.svc.RecordAction(context.Background(), inactive, auditdomain.ActionRequest{Action: "x", Entity: "y"})
	assert.ErrorIs(t, err, domainerr.ErrInactiveAccount)
}

func TestRecordActionReportsWriteFailure(t *testing.T) {
	f := newFixture(t)
	admin := principal(1, identitydomain.RoleAdmin, 0)
	require.NoError(t, f.db.Exec("DROP TABLE audit_logs").Error)

	entry, err := f.svc.RecordAction(context.Background(), admin, auditdomain.ActionRequest{
		Action:   auditdomain.ActionAdminLogin,
		Entity:   auditdomain.EntityPrincipal,
		EntityID: "1",
	})
	require.Error(t, err)
	assert.Nil(t, entry)
}

func TestListIsTenantScopedAndRoleGated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, tenant := range []int64{1, 1, 2} {
		tid := snowflake.ID(tenant)
		require.NoError(t, f.svc.Record(ctx, nil, auditdomain.Entry{
			TenantID: &tid, Action: auditdomain.Created(auditdomain.EntityProduct), Entity: auditdomain.EntityProduct, EntityID: "p",
		}))
		f.clock.Advance(time.Second)
	}

	owner := principal(10, identitydomain.RoleOwner, 1)
	resp, err := f.svc.List(ctx, owner, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)
	for _, entry := range resp.AuditLogs {
		assert.Equal(t, snowflake.ID(1), *entry.TenantID)
	}

	manager := principal(11, identitydomain.RoleManager, 1)
	resp, err = f.svc.List(ctx, manager, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.AuditLogs)

	admin := principal(12, identitydomain.RoleAdmin, 0)
	resp, err = f.svc.List(ctx, admin, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 3)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := snowflake.ID(1)
	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.Record(ctx, nil, auditdomain.Entry{
			TenantID: &tid, Action: auditdomain.Updated(auditdomain.EntityOrder), Entity: auditdomain.EntityOrder, EntityID: snowflake.ID(i).String(),
		}))
		f.clock.Advance(time.Millisecond * 10)
	}

	owner := principal(10, identitydomain.RoleOwner, 1)
	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2

	var seen []string
	for page := 0; page < 5; page++ {
		resp, err := f.svc.List(ctx, owner, req)
		require.NoError(t, err)
		for _, entry := range resp.AuditLogs {
			seen = append(seen, entry.EntityID)
		}
		if !resp.HasMore {
			break
		}
		req.PageToken = resp.NextPageToken
	}
	assert.Equal(t, []string{"4", "3", "2", "1", "0"}, seen)
}

func TestListRejectsInvertedRange(t *testing.T) {
	f := newFixture(t)
	from := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, err := f.svc.List(context.Background(), principal(1, identitydomain.RoleOwner, 1), auditdomain.ListAuditLogRequest{From: &from, To: &to})
	assert.ErrorIs(t, err, domainerr.ErrInvalidRange)

	_, err = f.svc.List(context.Background(), principal(1, identitydomain.RoleOwner, 1), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "not-a-token"},
	})
	assert.ErrorIs(t, err, domainerr.ErrValidation)
}
