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
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"github.com/smallbiznis/comptoir/internal/invoice/domain"
	"github.com/smallbiznis/comptoir/internal/invoice/repository"
	orderdomain "github.com/smallbiznis/comptoir/internal/order/domain"
	orderrepository "github.com/smallbiznis/comptoir/internal/order/repository"
	"github.com/smallbiznis/comptoir/internal/sequence"
	"github.com/smallbiznis/comptoir/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     domain.Service
	clock   *clock.FakeClock
	counter identitydomain.Principal
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
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     repository.Provide(),
		Orders:   orderrepository.Provide(),
		Sequence: sequence.New(time.UTC),
		Authz:    authz,
		Audit:    audit,
		Ops:      config.NewStaticOperationsConfigHolder(config.DefaultOperationsConfig()),
		Clock:    fake,
	})

	dbtest.SeedTenant(t, db, 100)
	dbtest.SeedTenant(t, db, 200)
	dbtest.SeedTable(t, db, 50, 100, 1)
	return fixture{
		db:      db,
		svc:     svc,
		clock:   fake,
		admin:   dbtest.SeedPrincipal(t, db, 1, identitydomain.RoleAdmin, 0),
		counter: dbtest.SeedPrincipal(t, db, 2, identitydomain.RoleCounter, 100),
		server:  dbtest.SeedPrincipal(t, db, 3, identitydomain.RoleServer, 100),
		other:   dbtest.SeedPrincipal(t, db, 4, identitydomain.RoleCounter, 200),
	}
}

func (f fixture) seedOrder(t *testing.T, id snowflake.ID, status orderdomain.Status, total int64) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&orderdomain.Order{
		ID:          id,
		TenantID:    100,
		Number:      "CMD-" + id.String(),
		TableID:     50,
		ServerID:    f.server.ID,
		Status:      status,
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}).Error)
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOrder(t, 500, orderdomain.StatusValidated, 4500)

	invoice, err := f.svc.Generate(ctx, f.counter, domain.GenerateRequest{OrderID: 500})
	require.NoError(t, err)
	assert.Equal(t, "FACT-20240601-001", invoice.Number)
	assert.Equal(t, int64(4500), invoice.TotalAmount)
	assert.Equal(t, int64(4500), invoice.RemainingAmount)
	assert.Equal(t, domain.InvoiceStatusAwaitingPayment, invoice.Status)
	assert.Nil(t, invoice.PaidAt)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &auditdomain.AuditLog{}, "action = ?", "invoice.created"))

	_, err = f.svc.Generate(ctx, f.counter, domain.GenerateRequest{OrderID: 500})
	assert.ErrorIs(t, err, domain.ErrInvoiceExists)

	byOrder, err := f.svc.GetByOrder(ctx, f.server, 500)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, byOrder.ID)
}

func TestGenerateZeroTotalIsPaid(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, 500, orderdomain.StatusValidated, 0)

	invoice, err := f.svc.Generate(context.Background(), f.counter, domain.GenerateRequest{OrderID: 500, Number: "F-1"})
	require.NoError(t, err)
	assert.Equal(t, "F-1", invoice.Number)
	assert.Equal(t, domain.InvoiceStatusPaid, invoice.Status)
	assert.NotNil(t, invoice.PaidAt)
}

func TestGenerateRequiresValidatedOrderOfSameTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOrder(t, 500, orderdomain.StatusPending, 100)

	_, err := f.svc.Generate(ctx, f.counter, domain.GenerateRequest{OrderID: 500})
	assert.ErrorIs(t, err, domainerr.ErrInvalidOrderState)

	_, err = f.svc.Generate(ctx, f.counter, domain.GenerateRequest{OrderID: 999})
	assert.ErrorIs(t, err, domainerr.ErrNotFound)

	require.NoError(t, f.db.Model(&orderdomain.Order{}).Where("id = ?", 500).Update("status", orderdomain.StatusValidated).Error)
	_, err = f.svc.Generate(ctx, f.other, domain.GenerateRequest{OrderID: 500})
	assert.ErrorIs(t, err, domainerr.ErrForbidden)
	_, err = f.svc.Generate(ctx, f.server, domain.GenerateRequest{OrderID: 500})
	assert.ErrorIs(t, err, domainerr.ErrForbidden)

	assert.Zero(t, dbtest.Count(t, f.db, &domain.Invoice{}, ""))
}

func TestListAndOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ages := map[snowflake.ID]time.Duration{
		501: 200 * time.Hour,
		502: 80 * time.Hour,
		503: 30 * time.Hour,
		504: 2 * time.Hour,
	}
	start := f.clock.Now()
	for _, id := range []snowflake.ID{501, 502, 503, 504} {
		f.seedOrder(t, id, orderdomain.StatusValidated, 1000)
		f.clock.Set(start.Add(-ages[id]))
		_, err := f.svc.Generate(ctx, f.counter, domain.GenerateRequest{OrderID: id, Number: "F-" + id.String()})
		require.NoError(t, err)
	}
	f.clock.Set(start)

	overdue, err := f.svc.Overdue(ctx, f.counter)
	require.NoError(t, err)
	require.Len(t, overdue, 3)
	assert.Equal(t, config.SeverityCritical, overdue[0].Severity)
	assert.Equal(t, config.SeverityHigh, overdue[1].Severity)
	assert.Equal(t, config.SeverityMedium, overdue[2].Severity)
	assert.Equal(t, int64(200), overdue[0].AgeHours)

	empty, err := f.svc.Overdue(ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, empty)

	all, err := f.svc.List(ctx, f.admin, domain.ListRequest{Status: domain.InvoiceStatusAwaitingPayment})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = f.svc.List(ctx, f.counter, domain.ListRequest{Status: "void"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
