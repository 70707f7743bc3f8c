package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"gorm.io/gorm"
)

type ItemInput struct {
	ProductID snowflake.ID `json:"product_id"`
	Quantity  int64        `json:"quantity"`
	UnitCost  int64        `json:"unit_cost"`
}

// CreateRequest carries the batch. Only the calendar day of Date is kept.
type CreateRequest struct {
	Supplier string      `json:"supplier"`
	Date     time.Time   `json:"date"`
	Items    []ItemInput `json:"items"`
	Number   string      `json:"number"`
	Note     *string     `json:"note"`
}

type UpdateRequest struct {
	Supplier *string    `json:"supplier"`
	Date     *time.Time `json:"date"`
	Note     *string    `json:"note"`
}

type Service interface {
	Create(ctx context.Context, actor identitydomain.Principal, req CreateRequest) (*CreateResult, error)
	// ListByPeriod returns the tenant's supplies dated within [start, end],
	// both days inclusive.
	ListByPeriod(ctx context.Context, actor identitydomain.Principal, start, end time.Time) ([]Supply, error)
	Get(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*Supply, error)
	Update(ctx context.Context, actor identitydomain.Principal, id snowflake.ID, req UpdateRequest) (*Supply, error)
	// Delete reverses the stock the supply brought in, then removes it.
	Delete(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, supply *Supply) error
	InsertItem(ctx context.Context, db *gorm.DB, item *SupplyItem) error
	FindByID(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, id snowflake.ID) (*Supply, error)
	FindItems(ctx context.Context, db *gorm.DB, supplyID snowflake.ID) ([]SupplyItem, error)
	ListByPeriod(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, start, end time.Time) ([]Supply, error)
	UpdateHeader(ctx context.Context, db *gorm.DB, supply *Supply) error
	Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error
}

var (
	ErrSupplyNotFound  = domainerr.Wrap(domainerr.ErrNotFound, "supply_not_found")
	ErrInvalidSupplier = domainerr.Invalid("supplier", "required")
	ErrInvalidDate     = domainerr.Invalid("date", "required")
	ErrEmptyItems      = domainerr.Invalid("items", "required")
	ErrInvalidQuantity = domainerr.Invalid("quantity", "must_be_positive")
	ErrInvalidUnitCost = domainerr.Invalid("unit_cost", "must_not_be_negative")
	ErrAmountOverflow  = domainerr.Invalid("quantity", "amount_out_of_range")
	ErrInvalidProduct  = domainerr.Invalid("product_id", "product_not_found")
	ErrNumberTaken     = domainerr.Invalid("number", "number_taken")
	ErrInvalidRange    = domainerr.Wrap(domainerr.ErrInvalidRange, "start_after_end")
)

// Day truncates t to its calendar day, expressed as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
