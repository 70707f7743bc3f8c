package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"gorm.io/gorm"
)

type GenerateRequest struct {
	OrderID snowflake.ID `json:"order_id"`
	Number  string       `json:"number"`
}

type ListRequest struct {
	Status InvoiceStatus `form:"status"`
}

type Service interface {
	Generate(ctx context.Context, actor identitydomain.Principal, req GenerateRequest) (*Invoice, error)
	Get(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*Invoice, error)
	GetByOrder(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) (*Invoice, error)
	List(ctx context.Context, actor identitydomain.Principal, req ListRequest) ([]Invoice, error)
	Overdue(ctx context.Context, actor identitydomain.Principal) ([]OverdueInvoice, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByOrder(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, orderID snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, req ListRequest) ([]Invoice, error)
	ListUnpaidBefore(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, before time.Time) ([]Invoice, error)
	// ApplyPayment adds amount to amount_paid only while the result stays
	// within the total, and reports whether a row was updated.
	ApplyPayment(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, amount int64, at time.Time) (bool, error)
}

var (
	ErrInvoiceNotFound  = domainerr.Wrap(domainerr.ErrNotFound, "invoice_not_found")
	ErrOrderNotFound    = domainerr.Wrap(domainerr.ErrNotFound, "order_not_found")
	ErrOrderNotBillable = domainerr.Wrap(domainerr.ErrInvalidOrderState, "order_not_validated")
	ErrInvoiceExists    = domainerr.Invalid("order_id", "invoice_exists")
	ErrNumberTaken      = domainerr.Invalid("number", "number_taken")
	ErrInvalidStatus    = domainerr.Invalid("status", "invalid_status")
)
