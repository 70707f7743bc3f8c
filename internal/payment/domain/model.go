package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/comptoir/internal/invoice/domain"
	"gorm.io/gorm"
)

type Method string

const (
	MethodCash        Method = "cash"
	MethodMobileMoney Method = "mobile_money"
	MethodCard        Method = "card"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodMobileMoney, MethodCard:
		return true
	}
	return false
}

// Payment is a partial or full settlement against an invoice.
type Payment struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Amount    int64        `gorm:"not null;check:chk_payments_amount,amount > 0" json:"amount"`
	Method    Method       `gorm:"type:varchar(16);not null" json:"method"`
	Reference *string      `gorm:"type:varchar(120)" json:"reference,omitempty"`
	ActorID   snowflake.ID `gorm:"not null" json:"actor_id"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

type RecordRequest struct {
	InvoiceID snowflake.ID `json:"invoice_id"`
	Amount    int64        `json:"amount"`
	Method    Method       `json:"method"`
	Reference string       `json:"reference"`
}

type RecordResult struct {
	Payment Payment               `json:"payment"`
	Invoice invoicedomain.Invoice `json:"invoice"`
}

type Service interface {
	Record(ctx context.Context, actor identitydomain.Principal, req RecordRequest) (*RecordResult, error)
	List(ctx context.Context, actor identitydomain.Principal, invoiceID snowflake.ID) ([]Payment, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListByInvoice(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, invoiceID snowflake.ID) ([]Payment, error)
}

var (
	ErrInvalidAmount = domainerr.Invalid("amount", "must_be_positive")
	ErrInvalidMethod = domainerr.Invalid("method", "invalid_method")
	ErrOverpayment   = domainerr.Invalid("amount", "overpayment")
)
