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
}

type CreateRequest struct {
	TableID snowflake.ID `json:"table_id"`
	Items   []ItemInput  `json:"items"`
	Number  string       `json:"number"`
	Note    *string      `json:"note"`
}

type ListRequest struct {
	Status  Status       `form:"status"`
	TableID snowflake.ID `form:"table_id"`
	From    *time.Time   `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To      *time.Time   `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

type Service interface {
	Create(ctx context.Context, actor identitydomain.Principal, req CreateRequest) (*Order, error)
	AddItem(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID, item ItemInput) (*Order, error)
	UpdateItemQuantity(ctx context.Context, actor identitydomain.Principal, orderID, itemID snowflake.ID, quantity int64) (*Order, error)
	RemoveItem(ctx context.Context, actor identitydomain.Principal, orderID, itemID snowflake.ID) (*Order, error)
	// Validate settles a pending order: every item leaves the stock or none does.
	Validate(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) (*Order, error)
	Cancel(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) (*Order, error)
	Delete(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) error
	Get(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) (*Order, error)
	List(ctx context.Context, actor identitydomain.Principal, req ListRequest) ([]Order, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertItem(ctx context.Context, db *gorm.DB, item *OrderItem) error
	FindByID(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, id snowflake.ID) (*Order, error)
	FindItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)
	FindItem(ctx context.Context, db *gorm.DB, orderID, itemID snowflake.ID) (*OrderItem, error)
	UpdateItemQuantity(ctx context.Context, db *gorm.DB, item *OrderItem) error
	DeleteItem(ctx context.Context, db *gorm.DB, orderID, itemID snowflake.ID) error
	// RecomputeTotal rewrites the total from the items while the order is
	// still pending.
	RecomputeTotal(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	MarkValidated(ctx context.Context, db *gorm.DB, id, validatorID snowflake.ID, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	DeletePending(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	List(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, filter ListRequest) ([]Order, error)
}

var (
	ErrOrderNotFound   = domainerr.Wrap(domainerr.ErrNotFound, "order_not_found")
	ErrItemNotFound    = domainerr.Wrap(domainerr.ErrNotFound, "order_item_not_found")
	ErrNotPending      = domainerr.Wrap(domainerr.ErrInvalidOrderState, "order_not_pending")
	ErrOrderEmpty      = domainerr.Invalid("items", "order_empty")
	ErrInvalidTable    = domainerr.Invalid("table_id", "table_not_found")
	ErrInvalidProduct  = domainerr.Invalid("product_id", "product_not_found")
	ErrProductInactive = domainerr.Invalid("product_id", "product_inactive")
	ErrInvalidQuantity = domainerr.Invalid("quantity", "must_be_positive")
	ErrAmountOverflow  = domainerr.Invalid("quantity", "amount_out_of_range")
	ErrNumberTaken     = domainerr.Invalid("number", "number_taken")
	ErrInvalidStatus   = domainerr.Invalid("status", "invalid_status")
	ErrInvalidRange    = domainerr.Wrap(domainerr.ErrInvalidRange, "from_after_to")
	ErrNotOwner        = domainerr.Wrap(domainerr.ErrForbidden, "not_order_owner")
)
