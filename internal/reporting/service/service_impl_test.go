package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/comptoir/internal/invoice/domain"
	orderdomain "github.com/smallbiznis/comptoir/internal/order/domain"
	paymentdomain "github.com/smallbiznis/comptoir/internal/payment/domain"
	"github.com/smallbiznis/comptoir/internal/reporting/domain"
	"github.com/smallbiznis/comptoir/internal/reporting/repository"
	supplydomain "github.com/smallbiznis/comptoir/internal/supply/domain"
	"github.com/smallbiznis/comptoir/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	now       = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	yesterday = now.AddDate(0, 0, -1)
)

type fixture struct {
	db      *gorm.DB
	svc     domain.Service
	owner   identitydomain.Principal
	manager identitydomain.Principal
	counter identitydomain.Principal
	server  identitydomain.Principal
	admin   identitydomain.Principal
}

// newFixture seeds two business days for tenant 100 and one sale for
// tenant 200:
//
//	A  validated today      3 Coca + 1 Brochette = 3000, paid 1500 cash + 500 mobile money
//	B  validated yesterday  2 Coca = 1000, paid 1000 card
//	C  pending today        1 Brochette = 1500
//	D  tenant 200, validated today, 9999 paid cash
//
// Coca was supplied at 200 a unit; Brochette never was.
func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.New(t)
	log := zap.NewNop()

	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	svc := NewService(Params{
		DB:     db,
		Log:    log,
		Repo:   repository.Provide(),
		Authz:  authz,
		Config: config.Config{BusinessTimezone: "UTC"},
		Clock:  clock.NewFakeClock(now),
	})

	dbtest.SeedTenant(t, db, 100)
	dbtest.SeedTenant(t, db, 200)
	dbtest.SeedTable(t, db, 50, 100, 1)
	dbtest.SeedTable(t, db, 51, 100, 2)
	dbtest.SeedTable(t, db, 60, 200, 1)
	dbtest.SeedProduct(t, db, 10, 100, "Coca", 500, 50)
	dbtest.SeedProduct(t, db, 11, 100, "Brochette", 1500, 50)
	dbtest.SeedProduct(t, db, 20, 200, "Water", 9999, 50)

	f := fixture{
		db:      db,
		svc:     svc,
		owner:   dbtest.SeedPrincipal(t, db, 1, identitydomain.RoleOwner, 100),
		manager: dbtest.SeedPrincipal(t, db, 2, identitydomain.RoleManager, 100),
		counter: dbtest.SeedPrincipal(t, db, 3, identitydomain.RoleCounter, 100),
		server:  dbtest.SeedPrincipal(t, db, 4, identitydomain.RoleServer, 100),
		admin:   dbtest.SeedPrincipal(t, db, 9, identitydomain.RoleAdmin, 0),
	}
	dbtest.SeedPrincipal(t, db, 5, identitydomain.RoleServer, 100)
	dbtest.SeedPrincipal(t, db, 6, identitydomain.RoleServer, 200)

	f.supply(t, 300, 100, now, 10, 10, 200)

	validatedA := now.Add(time.Hour)
	f.order(t, 70, 100, 50, 4, orderdomain.StatusValidated, now.Add(30*time.Minute), &validatedA,
		item{10, "Coca", 500, 3}, item{11, "Brochette", 1500, 1})
	f.invoice(t, 80, 100, 70, 3000, 2000, now.Add(2*time.Hour))
	f.payment(t, 90, 100, 80, 1500, paymentdomain.MethodCash, now.Add(2*time.Hour))
	f.payment(t, 91, 100, 80, 500, paymentdomain.MethodMobileMoney, now.Add(2*time.Hour+5*time.Minute))

	validatedB := yesterday.Add(11 * time.Hour)
	f.order(t, 71, 100, 51, 5, orderdomain.StatusValidated, yesterday.Add(10*time.Hour), &validatedB,
		item{10, "Coca", 500, 2})
	f.invoice(t, 81, 100, 71, 1000, 1000, yesterday.Add(11*time.Hour))
	f.payment(t, 92, 100, 81, 1000, paymentdomain.MethodCard, yesterday.Add(12*time.Hour))

	f.order(t, 72, 100, 50, 4, orderdomain.StatusPending, now.Add(3*time.Hour), nil,
		item{11, "Brochette", 1500, 1})

	validatedD := now.Add(time.Hour)
	f.order(t, 73, 200, 60, 6, orderdomain.StatusValidated, now, &validatedD,
		item{20, "Water", 9999, 1})
	f.invoice(t, 82, 200, 73, 9999, 9999, now.Add(time.Hour))
	f.payment(t, 93, 200, 82, 9999, paymentdomain.MethodCash, now.Add(time.Hour))
	return f
}

type item struct {
	productID snowflake.ID
	name      string
	price     int64
	quantity  int64
}

func (f fixture) order(t *testing.T, id, tenantID, tableID, serverID snowflake.ID, status orderdomain.Status, createdAt time.Time, validatedAt *time.Time, items ...item) {
	t.Helper()
	order := &orderdomain.Order{
		ID:          id,
		TenantID:    tenantID,
		Number:      "CMD-" + id.String(),
		TableID:     tableID,
		ServerID:    serverID,
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		ValidatedAt: validatedAt,
	}
	for i, it := range items {
		order.TotalAmount += it.price * it.quantity
		require.NoError(t, f.db.Create(&orderdomain.OrderItem{
			ID:          id*100 + snowflake.ID(i),
			OrderID:     id,
			TenantID:    tenantID,
			ProductID:   it.productID,
			ProductName: it.name,
			UnitPrice:   it.price,
			Quantity:    it.quantity,
			LineAmount:  it.price * it.quantity,
			CreatedAt:   createdAt,
		}).Error)
	}
	require.NoError(t, f.db.Create(order).Error)
}

func (f fixture) invoice(t *testing.T, id, tenantID, orderID snowflake.ID, total, paid int64, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&invoicedomain.Invoice{
		ID:              id,
		TenantID:        tenantID,
		OrderID:         orderID,
		Number:          "FACT-" + id.String(),
		TotalAmount:     total,
		AmountPaid:      paid,
		RemainingAmount: total - paid,
		Status:          invoicedomain.StatusFor(total, paid),
		GeneratedAt:     at,
		CreatedBy:       3,
		UpdatedAt:       at,
	}).Error)
}

func (f fixture) payment(t *testing.T, id, tenantID, invoiceID snowflake.ID, amount int64, method paymentdomain.Method, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&paymentdomain.Payment{
		ID:        id,
		TenantID:  tenantID,
		InvoiceID: invoiceID,
		Amount:    amount,
		Method:    method,
		ActorID:   3,
		CreatedAt: at,
	}).Error)
}

func (f fixture) supply(t *testing.T, id, tenantID snowflake.ID, day time.Time, productID snowflake.ID, quantity, unitCost int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&supplydomain.Supply{
		ID:          id,
		TenantID:    tenantID,
		Number:      "RAV-" + id.String(),
		Supplier:    "Brasserie",
		SupplyDate:  supplydomain.Day(day),
		ManagerID:   2,
		TotalAmount: quantity * unitCost,
		CreatedAt:   day,
		UpdatedAt:   day,
	}).Error)
	require.NoError(t, f.db.Create(&supplydomain.SupplyItem{
		ID:         id + 1,
		SupplyID:   id,
		TenantID:   tenantID,
		ProductID:  productID,
		Quantity:   quantity,
		UnitCost:   unitCost,
		LineAmount: quantity * unitCost,
		CreatedAt:  day,
	}).Error)
}

func twoDays() domain.PeriodRequest {
	return domain.PeriodRequest{
		From: supplydomain.Day(yesterday),
		To:   supplydomain.Day(now).AddDate(0, 0, 1).Add(-time.Nanosecond),
	}
}

func TestKPIsDefaultToToday(t *testing.T) {
	f := newFixture(t)

	kpis, err := f.svc.KPIs(context.Background(), f.owner, domain.PeriodRequest{})
	require.NoError(t, err)
	assert.Equal(t, supplydomain.Day(now), kpis.From)
	assert.Equal(t, int64(3000), kpis.Revenue)
	assert.Equal(t, int64(1), kpis.OrderCount)
	assert.Equal(t, int64(3000), kpis.AverageBasket)
	assert.Equal(t, int64(2000), kpis.Collected)
	assert.Equal(t, int64(1000), kpis.Receivables)
	assert.Equal(t, int64(600), kpis.CostOfGoods)
	assert.Equal(t, int64(2400), kpis.GrossMargin)
	assert.Equal(t, int64(2000), kpis.SuppliesTotal)
}

func TestKPIsOverPeriod(t *testing.T) {
	f := newFixture(t)

	kpis, err := f.svc.KPIs(context.Background(), f.manager, twoDays())
	require.NoError(t, err)
	assert.Equal(t, int64(4000), kpis.Revenue)
	assert.Equal(t, int64(2), kpis.OrderCount)
	assert.Equal(t, int64(2000), kpis.AverageBasket)
	assert.Equal(t, int64(3000), kpis.Collected)
	assert.Equal(t, int64(1000), kpis.Receivables)
	assert.Equal(t, int64(1000), kpis.CostOfGoods)
	assert.Equal(t, int64(3000), kpis.GrossMargin)
}

func TestReportsAreTenantScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	forTenant, err := f.svc.KPIs(ctx, f.admin, domain.PeriodRequest{TenantID: 200})
	require.NoError(t, err)
	assert.Equal(t, int64(9999), forTenant.Revenue)
	assert.Equal(t, int64(9999), forTenant.Collected)

	platform, err := f.svc.KPIs(ctx, f.admin, domain.PeriodRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(12999), platform.Revenue)

	// a tenant id from a non-admin is ignored, not honoured
	own, err := f.svc.KPIs(ctx, f.owner, domain.PeriodRequest{TenantID: 200})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), own.Revenue)

	for _, actor := range []identitydomain.Principal{f.server, f.counter} {
		_, err := f.svc.KPIs(ctx, actor, domain.PeriodRequest{})
		assert.ErrorIs(t, err, domainerr.ErrForbidden)
		_, err = f.svc.SearchTransactions(ctx, actor, domain.TransactionFilter{})
		assert.ErrorIs(t, err, domainerr.ErrForbidden)
	}
}

func TestSalesByProduct(t *testing.T) {
	f := newFixture(t)

	rows, err := f.svc.SalesByProduct(context.Background(), f.owner, twoDays())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.ProductSales{ProductID: 10, ProductName: "Coca", Quantity: 5, Revenue: 2500}, rows[0])
	assert.Equal(t, domain.ProductSales{ProductID: 11, ProductName: "Brochette", Quantity: 1, Revenue: 1500}, rows[1])

	empty, err := f.svc.SalesByProduct(context.Background(), f.owner, domain.PeriodRequest{
		From: now.AddDate(0, 0, 5), To: now.AddDate(0, 0, 6),
	})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRevenueSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	daily, err := f.svc.RevenueSeries(ctx, f.owner, twoDays())
	require.NoError(t, err)
	assert.Equal(t, domain.GranularityDay, daily.Granularity)
	assert.Equal(t, []domain.SeriesPoint{
		{Period: "2024-05-31", Revenue: 1000, Collected: 1000, Shortfall: 0},
		{Period: "2024-06-01", Revenue: 3000, Collected: 2000, Shortfall: 1000},
	}, daily.Points)

	req := twoDays()
	req.Granularity = domain.GranularityMonth
	monthly, err := f.svc.RevenueSeries(ctx, f.owner, req)
	require.NoError(t, err)
	assert.Equal(t, []domain.SeriesPoint{
		{Period: "2024-05", Revenue: 1000, Collected: 1000, Shortfall: 0},
		{Period: "2024-06", Revenue: 3000, Collected: 2000, Shortfall: 1000},
	}, monthly.Points)

	req.Granularity = "week"
	_, err = f.svc.RevenueSeries(ctx, f.owner, req)
	assert.ErrorIs(t, err, domain.ErrInvalidGranularity)

	_, err = f.svc.RevenueSeries(ctx, f.owner, domain.PeriodRequest{From: now.AddDate(-2, 0, 0), To: now})
	assert.ErrorIs(t, err, domain.ErrRangeTooLong)
}

func TestCollectionsByMethodListsEveryMethod(t *testing.T) {
	f := newFixture(t)

	rows, err := f.svc.CollectionsByMethod(context.Background(), f.owner, domain.PeriodRequest{})
	require.NoError(t, err)
	assert.Equal(t, []domain.MethodTotal{
		{Method: "cash", Amount: 1500, Count: 1},
		{Method: "mobile_money", Amount: 500, Count: 1},
		{Method: "card", Amount: 0, Count: 0},
	}, rows)
}

func TestSearchTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	all, err := f.svc.SearchTransactions(ctx, f.owner, domain.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Pagination.Total)
	require.Len(t, all.Transactions, 3)
	assert.Equal(t, snowflake.ID(72), all.Transactions[0].OrderID)
	assert.Nil(t, all.Transactions[0].InvoiceStatus)

	first := all.Transactions[1]
	assert.Equal(t, snowflake.ID(70), first.OrderID)
	assert.Equal(t, int64(2000), first.AmountPaid)
	require.NotNil(t, first.InvoiceStatus)
	assert.Equal(t, string(invoicedomain.InvoiceStatusPartiallyPaid), *first.InvoiceStatus)

	cases := []struct {
		name   string
		filter domain.TransactionFilter
		want   []snowflake.ID
	}{
		{"by server", domain.TransactionFilter{ServerID: 4}, []snowflake.ID{72, 70}},
		{"by table", domain.TransactionFilter{TableID: 51}, []snowflake.ID{71}},
		{"by product", domain.TransactionFilter{ProductID: 11}, []snowflake.ID{72, 70}},
		{"by status", domain.TransactionFilter{Status: "validated"}, []snowflake.ID{70, 71}},
		{"foreign product", domain.TransactionFilter{ProductID: 20}, []snowflake.ID{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := f.svc.SearchTransactions(ctx, f.owner, tc.filter)
			require.NoError(t, err)
			ids := []snowflake.ID{}
			for _, tx := range page.Transactions {
				ids = append(ids, tx.OrderID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}

	paged, err := f.svc.SearchTransactions(ctx, f.owner, domain.TransactionFilter{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, paged.Transactions, 2)
	assert.Equal(t, domain.PageMeta{Total: 3, Page: 1, PageSize: 2, TotalPages: 2}, paged.Pagination)

	second, err := f.svc.SearchTransactions(ctx, f.owner, domain.TransactionFilter{PageSize: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, second.Transactions, 1)
	assert.Equal(t, snowflake.ID(71), second.Transactions[0].OrderID)

	_, err = f.svc.SearchTransactions(ctx, f.owner, domain.TransactionFilter{Status: "archived"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestPeriodValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.KPIs(ctx, f.owner, domain.PeriodRequest{From: now})
	assert.ErrorIs(t, err, domain.ErrMissingBound)
	assert.ErrorIs(t, err, domainerr.ErrValidation)

	_, err = f.svc.KPIs(ctx, f.owner, domain.PeriodRequest{From: now, To: yesterday})
	assert.ErrorIs(t, err, domainerr.ErrInvalidRange)
}
