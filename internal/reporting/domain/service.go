package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"gorm.io/gorm"
)

// PeriodRequest bounds a report. A zero From and To mean the current
// business day. TenantID narrows a platform admin's report to one tenant and
// is ignored for everyone else.
type PeriodRequest struct {
	TenantID    snowflake.ID
	From        time.Time
	To          time.Time
	Granularity Granularity
}

type TransactionFilter struct {
	TenantID  snowflake.ID
	From      *time.Time
	To        *time.Time
	Status    string
	ServerID  snowflake.ID
	TableID   snowflake.ID
	ProductID snowflake.ID
	Page      int
	PageSize  int
}

// Service answers the owner's dashboard reads. Every report is limited to
// the caller's tenant.
type Service interface {
	KPIs(ctx context.Context, actor identitydomain.Principal, req PeriodRequest) (*KPIs, error)
	SalesByProduct(ctx context.Context, actor identitydomain.Principal, req PeriodRequest) ([]ProductSales, error)
	RevenueSeries(ctx context.Context, actor identitydomain.Principal, req PeriodRequest) (*RevenueSeries, error)
	CollectionsByMethod(ctx context.Context, actor identitydomain.Principal, req PeriodRequest) ([]MethodTotal, error)
	SearchTransactions(ctx context.Context, actor identitydomain.Principal, filter TransactionFilter) (*TransactionPage, error)
}

// Scope restricts a query to the caller's tenant through the named
// tenant column, which reports qualify with a table alias.
type Scope = func(column string) func(*gorm.DB) *gorm.DB

type Repository interface {
	OrderTotals(ctx context.Context, db *gorm.DB, scope Scope, from, to time.Time) (Totals, error)
	CostOfGoods(ctx context.Context, db *gorm.DB, scope Scope, from, to time.Time) (int64, error)
	Collected(ctx context.Context, db *gorm.DB, scope Scope, from, to time.Time) (int64, error)
	SuppliesTotal(ctx context.Context, db *gorm.DB, scope Scope, fromDay, toDay time.Time) (int64, error)
	SalesByProduct(ctx context.Context, db *gorm.DB, scope Scope, from, to time.Time) ([]ProductSales, error)
	CollectionsByMethod(ctx context.Context, db *gorm.DB, scope Scope, from, to time.Time) ([]MethodTotal, error)
	ValidatedAmounts(ctx context.Context, db *gorm.DB, scope Scope, from, to time.Time) ([]DatedAmount, error)
	PaymentAmounts(ctx context.Context, db *gorm.DB, scope Scope, from, to time.Time) ([]DatedAmount, error)
	SearchTransactions(ctx context.Context, db *gorm.DB, scope Scope, filter TransactionFilter) ([]Transaction, int64, error)
}

var (
	ErrInvalidRange       = domainerr.Wrap(domainerr.ErrInvalidRange, "from_after_to")
	ErrMissingBound       = domainerr.Invalid("from", "from_and_to_required")
	ErrInvalidGranularity = domainerr.Invalid("granularity", "invalid_granularity")
	ErrRangeTooLong       = domainerr.Invalid("to", "range_too_long")
	ErrInvalidStatus      = domainerr.Invalid("status", "invalid_status")
)
