package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	auditrepository "github.com/smallbiznis/comptoir/internal/audit/repository"
	auditservice "github.com/smallbiznis/comptoir/internal/audit/service"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"github.com/smallbiznis/comptoir/internal/stock/domain"
	"github.com/smallbiznis/comptoir/internal/stock/repository"
	"github.com/smallbiznis/comptoir/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     domain.Service
	manager identitydomain.Principal
	server  identitydomain.Principal
	other   identitydomain.Principal
	admin   identitydomain.Principal
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.New(t)
	node := dbtest.Node(t)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(), Authz: authz, Clock: fake,
	})

	svc := NewService(Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  repository.Provide(),
		Authz: authz,
		Audit: audit,
		Clock: fake,
	})

	dbtest.SeedTenant(t, db, 100)
	dbtest.SeedTenant(t, db, 200)
	return fixture{
		db:      db,
		svc:     svc,
		admin:   dbtest.SeedPrincipal(t, db, 1, identitydomain.RoleAdmin, 0),
		manager: dbtest.SeedPrincipal(t, db, 2, identitydomain.RoleManager, 100),
		server:  dbtest.SeedPrincipal(t, db, 3, identitydomain.RoleServer, 100),
		other:   dbtest.SeedPrincipal(t, db, 4, identitydomain.RoleManager, 200),
	}
}

func (f fixture) move(t *testing.T, productID snowflake.ID, dir domain.Direction, qty int64, ref string) error {
	t.Helper()
	return f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.RecordMovement(context.Background(), tx, domain.MovementInput{
			TenantID:      100,
			ProductID:     productID,
			Direction:     dir,
			Quantity:      qty,
			ReferenceKind: domain.ReferenceSupply,
			Reference:     ref,
			ActorID:       f.manager.ActorID(),
		})
		return err
	})
}

func TestRecordMovementKeepsLedgerBalanced(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedProduct(t, f.db, 10, 100, "Coca", 500, 0)

	require.NoError(t, f.move(t, 10, domain.DirectionIn, 20, "RAV-20240601-001"))
	require.NoError(t, f.move(t, 10, domain.DirectionOut, 7, "CMD-20240601-001"))
	require.NoError(t, f.move(t, 10, domain.DirectionIn, 3, "RAV-20240601-002"))

	assert.Equal(t, int64(16), dbtest.Available(t, f.db, 10))

	result, err := f.svc.Reconcile(context.Background(), f.manager, 10)
	require.NoError(t, err)
	assert.True(t, result.Balanced)
	assert.Equal(t, int64(23), result.TotalIn)
	assert.Equal(t, int64(7), result.TotalOut)
	assert.Equal(t, int64(3), dbtest.Count(t, f.db, &domain.Movement{}, "product_id = ?", 10))
}

func TestRecordMovementRejectsOverdraw(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedProduct(t, f.db, 10, 100, "Coca", 500, 0)
	require.NoError(t, f.move(t, 10, domain.DirectionIn, 2, "RAV-20240601-001"))

	err := f.move(t, 10, domain.DirectionOut, 3, "CMD-20240601-001")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerr.ErrInsufficientStock)
	assert.Equal(t, int64(2), dbtest.Available(t, f.db, 10))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &domain.Movement{}, "product_id = ?", 10))

	require.NoError(t, f.move(t, 10, domain.DirectionOut, 2, "CMD-20240601-002"))
	assert.Equal(t, int64(0), dbtest.Available(t, f.db, 10))
}

func TestRecordMovementValidatesInput(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedProduct(t, f.db, 10, 100, "Coca", 500, 5)

	cases := []struct {
		name string
		in   domain.MovementInput
		want error
	}{
		{"zero quantity", domain.MovementInput{TenantID: 100, ProductID: 10, Direction: domain.DirectionIn, ReferenceKind: domain.ReferenceSupply, Reference: "x"}, domain.ErrInvalidQuantity},
		{"bad direction", domain.MovementInput{TenantID: 100, ProductID: 10, Direction: "sideways", Quantity: 1, ReferenceKind: domain.ReferenceSupply, Reference: "x"}, domain.ErrInvalidDirection},
		{"bad kind", domain.MovementInput{TenantID: 100, ProductID: 10, Direction: domain.DirectionIn, Quantity: 1, ReferenceKind: "gift", Reference: "x"}, domain.ErrInvalidRefKind},
		{"blank reference", domain.MovementInput{TenantID: 100, ProductID: 10, Direction: domain.DirectionIn, Quantity: 1, ReferenceKind: domain.ReferenceSupply, Reference: "  "}, domain.ErrInvalidReference},
		{"unknown product", domain.MovementInput{TenantID: 100, ProductID: 99, Direction: domain.DirectionIn, Quantity: 1, ReferenceKind: domain.ReferenceSupply, Reference: "x"}, domain.ErrLevelNotFound},
		{"other tenant", domain.MovementInput{TenantID: 200, ProductID: 10, Direction: domain.DirectionOut, Quantity: 1, ReferenceKind: domain.ReferenceOrder, Reference: "x"}, domain.ErrLevelNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.RecordMovement(context.Background(), f.db, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(5), dbtest.Available(t, f.db, 10))
}

func TestRecordMovementWritesAudit(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedProduct(t, f.db, 10, 100, "Coca", 500, 4)
	require.NoError(t, f.move(t, 10, domain.DirectionOut, 1, "CMD-20240601-001"))

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "stock_level.updated").First(&entry).Error)
	assert.Equal(t, "10", entry.EntityID)
	assert.Contains(t, string(entry.BeforeState), `"available":4`)
	assert.Contains(t, string(entry.AfterState), `"available":3`)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &auditdomain.AuditLog{}, "action = ?", "stock_movement.created"))
}

func TestCreateAndDeleteLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedProduct(t, f.db, 10, 100, "Coca", 500, 0)
	require.NoError(t, f.db.Where("product_id = ?", 10).Delete(&domain.Level{}).Error)

	level, err := f.svc.CreateLevel(ctx, f.db, 100, 10, 3, f.manager.ActorID())
	require.NoError(t, err)
	assert.Zero(t, level.Available)
	assert.Equal(t, int64(3), level.AlertThreshold)

	_, err = f.svc.CreateLevel(ctx, f.db, 100, 10, -1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	require.NoError(t, f.svc.DeleteLevel(ctx, f.db, 100, 10, f.manager.ActorID()))
	assert.Zero(t, dbtest.Count(t, f.db, &domain.Level{}, "product_id = ?", 10))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &auditdomain.AuditLog{}, "action = ?", "stock_level.deleted"))
}

func TestAlerts(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedProduct(t, f.db, 10, 100, "Coca", 500, 0)
	dbtest.SeedProduct(t, f.db, 11, 100, "Fanta", 500, 2)
	dbtest.SeedProduct(t, f.db, 12, 100, "Sprite", 500, 40)
	dbtest.SeedProduct(t, f.db, 13, 200, "Water", 300, 0)
	require.NoError(t, f.db.Model(&domain.Level{}).Where("product_id IN ?", []int64{10, 11, 12}).Update("alert_threshold", 5).Error)

	alerts, err := f.svc.Alerts(context.Background(), f.manager)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	bySeverity := map[snowflake.ID]domain.AlertSeverity{}
	for _, a := range alerts {
		bySeverity[a.ProductID] = a.Severity
	}
	assert.Equal(t, domain.AlertOutOfStock, bySeverity[10])
	assert.Equal(t, domain.AlertLow, bySeverity[11])

	all, err := f.svc.Alerts(context.Background(), f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSetAlertThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedProduct(t, f.db, 10, 100, "Coca", 500, 8)

	level, err := f.svc.SetAlertThreshold(ctx, f.manager, 10, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), level.AlertThreshold)

	_, err = f.svc.SetAlertThreshold(ctx, f.manager, 10, -2)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	_, err = f.svc.SetAlertThreshold(ctx, f.server, 10, 1)
	assert.ErrorIs(t, err, domainerr.ErrForbidden)

	_, err = f.svc.SetAlertThreshold(ctx, f.other, 10, 1)
	assert.ErrorIs(t, err, domainerr.ErrForbidden)

	_, err = f.svc.SetAlertThreshold(ctx, f.manager, 99, 1)
	assert.ErrorIs(t, err, domainerr.ErrNotFound)

	view, err := f.svc.GetLevel(ctx, f.manager, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(9), view.AlertThreshold)
	assert.Equal(t, "Coca", view.ProductName)
}

func TestReadsAreTenantScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedProduct(t, f.db, 10, 100, "Coca", 500, 1)
	dbtest.SeedProduct(t, f.db, 13, 200, "Water", 300, 1)

	levels, err := f.svc.ListLevels(ctx, f.manager)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, snowflake.ID(10), levels[0].ProductID)

	_, err = f.svc.GetLevel(ctx, f.manager, 13)
	assert.ErrorIs(t, err, domain.ErrLevelNotFound)

	movements, err := f.svc.ListMovements(ctx, f.other, 10, domain.MovementFilter{})
	require.NoError(t, err)
	assert.Empty(t, movements)
}
