package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	auditrepository "github.com/smallbiznis/comptoir/internal/audit/repository"
	auditservice "github.com/smallbiznis/comptoir/internal/audit/service"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	productrepository "github.com/smallbiznis/comptoir/internal/product/repository"
	"github.com/smallbiznis/comptoir/internal/sequence"
	stockdomain "github.com/smallbiznis/comptoir/internal/stock/domain"
	stockrepository "github.com/smallbiznis/comptoir/internal/stock/repository"
	stockservice "github.com/smallbiznis/comptoir/internal/stock/service"
	"github.com/smallbiznis/comptoir/internal/supply/domain"
	"github.com/smallbiznis/comptoir/internal/supply/repository"
	"github.com/smallbiznis/comptoir/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     domain.Service
	stock   stockdomain.Service
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
	stock := stockservice.NewService(stockservice.Params{
		DB: db, Log: log, GenID: node, Repo: stockrepository.Provide(), Authz: authz, Audit: audit, Clock: fake,
	})

	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     repository.Provide(),
		Products: productrepository.Provide(),
		Ledger:   stock,
		Sequence: sequence.New(time.UTC),
		Authz:    authz,
		Audit:    audit,
		Clock:    fake,
	})

	dbtest.SeedTenant(t, db, 100)
	dbtest.SeedTenant(t, db, 200)
	dbtest.SeedProduct(t, db, 10, 100, "Coca", 500, 0)
	dbtest.SeedProduct(t, db, 11, 100, "Fanta", 500, 0)
	return fixture{
		db:      db,
		svc:     svc,
		stock:   stock,
		admin:   dbtest.SeedPrincipal(t, db, 1, identitydomain.RoleAdmin, 0),
		manager: dbtest.SeedPrincipal(t, db, 2, identitydomain.RoleManager, 100),
		server:  dbtest.SeedPrincipal(t, db, 3, identitydomain.RoleServer, 100),
		other:   dbtest.SeedPrincipal(t, db, 4, identitydomain.RoleManager, 200),
	}
}

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func (f fixture) supply(t *testing.T, date time.Time, items ...domain.ItemInput) *domain.CreateResult {
	t.Helper()
	res, err := f.svc.Create(context.Background(), f.manager, domain.CreateRequest{
		Supplier: "Brasseries du Sud",
		Date:     date,
		Items:    items,
	})
	require.NoError(t, err)
	return res
}

func TestCreateAddsStock(t *testing.T) {
	f := newFixture(t)

	res := f.supply(t, day(1),
		domain.ItemInput{ProductID: 10, Quantity: 24, UnitCost: 300},
		domain.ItemInput{ProductID: 11, Quantity: 12, UnitCost: 250},
	)
	assert.Equal(t, "RAV-20240601-001", res.Number)
	assert.Equal(t, int64(24*300+12*250), res.Total)
	assert.Equal(t, int64(24), dbtest.Available(t, f.db, 10))
	assert.Equal(t, int64(12), dbtest.Available(t, f.db, 11))

	var movement stockdomain.Movement
	require.NoError(t, f.db.Where("product_id = ?", 10).First(&movement).Error)
	assert.Equal(t, stockdomain.DirectionIn, movement.Direction)
	assert.Equal(t, res.Number, movement.Reference)
	require.NotNil(t, movement.UnitCost)
	assert.Equal(t, int64(300), *movement.UnitCost)

	second := f.supply(t, day(1), domain.ItemInput{ProductID: 10, Quantity: 6, UnitCost: 300})
	assert.Equal(t, "RAV-20240601-002", second.Number)
	assert.Equal(t, int64(30), dbtest.Available(t, f.db, 10))

	reconcile, err := f.stock.Reconcile(context.Background(), f.manager, 10)
	require.NoError(t, err)
	assert.True(t, reconcile.Balanced)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &auditdomain.AuditLog{}, "action = ? AND entity_id = ?", "supply.created", res.SupplyID.String()))
}

func TestCreateValidatesBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good := []domain.ItemInput{{ProductID: 10, Quantity: 1, UnitCost: 1}}

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{"empty supplier", domain.CreateRequest{Supplier: " ", Date: day(1), Items: good}, domain.ErrInvalidSupplier},
		{"missing date", domain.CreateRequest{Supplier: "x", Items: good}, domain.ErrInvalidDate},
		{"no items", domain.CreateRequest{Supplier: "x", Date: day(1)}, domain.ErrEmptyItems},
		{"zero quantity", domain.CreateRequest{Supplier: "x", Date: day(1), Items: []domain.ItemInput{{ProductID: 10, Quantity: 0}}}, domain.ErrInvalidQuantity},
		{"negative cost", domain.CreateRequest{Supplier: "x", Date: day(1), Items: []domain.ItemInput{{ProductID: 10, Quantity: 1, UnitCost: -1}}}, domain.ErrInvalidUnitCost},
		{"unknown product", domain.CreateRequest{Supplier: "x", Date: day(1), Items: []domain.ItemInput{{ProductID: 10, Quantity: 1}, {ProductID: 99, Quantity: 1}}}, domain.ErrInvalidProduct},
		{"line out of range", domain.CreateRequest{Supplier: "x", Date: day(1), Items: []domain.ItemInput{{ProductID: 10, Quantity: 1 << 62, UnitCost: 4}}}, domain.ErrAmountOverflow},
		{"total out of range", domain.CreateRequest{Supplier: "x", Date: day(1), Items: []domain.ItemInput{{ProductID: 10, Quantity: 2, UnitCost: 1 << 61}, {ProductID: 10, Quantity: 2, UnitCost: 1 << 61}}}, domain.ErrAmountOverflow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.manager, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, domainerr.ErrValidation)
		})
	}
	assert.Zero(t, dbtest.Count(t, f.db, &domain.Supply{}, ""))
	assert.Zero(t, dbtest.Available(t, f.db, 10))

	_, err := f.svc.Create(ctx, f.server, domain.CreateRequest{Supplier: "x", Date: day(1), Items: good})
	assert.ErrorIs(t, err, domainerr.ErrForbidden)
	_, err = f.svc.Create(ctx, f.admin, domain.CreateRequest{Supplier: "x", Date: day(1), Items: good})
	assert.ErrorIs(t, err, domainerr.ErrForbidden)
}

func TestListByPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := domain.ItemInput{ProductID: 10, Quantity: 1, UnitCost: 100}

	f.supply(t, day(3), item)
	f.supply(t, day(1), item)
	f.supply(t, day(5), item)

	items, err := f.svc.ListByPeriod(ctx, f.server, day(1), day(3).Add(23*time.Hour))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].SupplyDate.Equal(day(1)))
	assert.True(t, items[1].SupplyDate.Equal(day(3)))

	items, err = f.svc.ListByPeriod(ctx, f.server, day(3), day(3))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = f.svc.ListByPeriod(ctx, f.manager, day(20), day(25))
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = f.svc.ListByPeriod(ctx, f.other, day(1), day(30))
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = f.svc.ListByPeriod(ctx, f.manager, day(5), day(1))
	assert.ErrorIs(t, err, domainerr.ErrInvalidRange)
}

func TestUpdateHeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.supply(t, day(1), domain.ItemInput{ProductID: 10, Quantity: 2, UnitCost: 100})

	supplier := "Grossiste Central"
	date := day(2)
	updated, err := f.svc.Update(ctx, f.manager, res.SupplyID, domain.UpdateRequest{Supplier: &supplier, Date: &date})
	require.NoError(t, err)
	assert.Equal(t, supplier, updated.Supplier)
	assert.Equal(t, int64(200), updated.TotalAmount)

	_, err = f.svc.Update(ctx, f.other, res.SupplyID, domain.UpdateRequest{Supplier: &supplier})
	assert.ErrorIs(t, err, domainerr.ErrForbidden)

	got, err := f.svc.Get(ctx, f.server, res.SupplyID)
	require.NoError(t, err)
	assert.True(t, got.SupplyDate.Equal(day(2)))
	assert.Len(t, got.Items, 1)
}

func TestDeleteReversesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.supply(t, day(1), domain.ItemInput{ProductID: 10, Quantity: 5, UnitCost: 100})

	require.NoError(t, f.svc.Delete(ctx, f.manager, res.SupplyID))
	assert.Zero(t, dbtest.Available(t, f.db, 10))
	assert.Equal(t, int64(2), dbtest.Count(t, f.db, &stockdomain.Movement{}, "product_id = ?", 10))
	assert.Zero(t, dbtest.Count(t, f.db, &domain.SupplyItem{}, ""))

	_, err := f.svc.Get(ctx, f.manager, res.SupplyID)
	assert.ErrorIs(t, err, domain.ErrSupplyNotFound)
}

func TestDeleteFailsWhenStockWasConsumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.supply(t, day(1), domain.ItemInput{ProductID: 10, Quantity: 5, UnitCost: 100})

	_, err := f.stock.RecordMovement(ctx, f.db, stockdomain.MovementInput{
		TenantID: 100, ProductID: 10, Direction: stockdomain.DirectionOut, Quantity: 3,
		ReferenceKind: stockdomain.ReferenceOrder, Reference: "CMD-20240601-001",
	})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, f.manager, res.SupplyID)
	assert.ErrorIs(t, err, domainerr.ErrInsufficientStock)
	assert.Equal(t, int64(2), dbtest.Available(t, f.db, 10))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &domain.Supply{}, ""))
}
