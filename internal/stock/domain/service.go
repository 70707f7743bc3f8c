package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"gorm.io/gorm"
)

// MovementInput describes one adjustment. UnitCost is set for inbound
// movements coming from supplies.
type MovementInput struct {
	TenantID      snowflake.ID
	ProductID     snowflake.ID
	Direction     Direction
	Quantity      int64
	UnitCost      *int64
	ReferenceKind ReferenceKind
	Reference     string
	ActorID       *snowflake.ID
}

type MovementFilter struct {
	Direction Direction  `form:"direction"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// Ledger is the only writer of stock levels. Every method runs inside the
// caller's transaction.
type Ledger interface {
	RecordMovement(ctx context.Context, tx *gorm.DB, in MovementInput) (*Movement, error)
	CreateLevel(ctx context.Context, tx *gorm.DB, tenantID, productID snowflake.ID, threshold int64, actorID *snowflake.ID) (*Level, error)
	DeleteLevel(ctx context.Context, tx *gorm.DB, tenantID, productID snowflake.ID, actorID *snowflake.ID) error
}

type Service interface {
	Ledger

	ListLevels(ctx context.Context, actor identitydomain.Principal) ([]LevelView, error)
	GetLevel(ctx context.Context, actor identitydomain.Principal, productID snowflake.ID) (*LevelView, error)
	ListMovements(ctx context.Context, actor identitydomain.Principal, productID snowflake.ID, filter MovementFilter) ([]Movement, error)
	Alerts(ctx context.Context, actor identitydomain.Principal) ([]Alert, error)
	SetAlertThreshold(ctx context.Context, actor identitydomain.Principal, productID snowflake.ID, threshold int64) (*Level, error)
	Reconcile(ctx context.Context, actor identitydomain.Principal, productID snowflake.ID) (*ReconcileResult, error)
}

type Repository interface {
	InsertLevel(ctx context.Context, db *gorm.DB, level *Level) error
	FindLevel(ctx context.Context, db *gorm.DB, tenantID, productID snowflake.ID) (*Level, error)
	DeleteLevel(ctx context.Context, db *gorm.DB, tenantID, productID snowflake.ID) error
	// Deduct subtracts quantity only while enough stock is available.
	Deduct(ctx context.Context, db *gorm.DB, tenantID, productID snowflake.ID, quantity int64, at time.Time) (bool, error)
	Add(ctx context.Context, db *gorm.DB, tenantID, productID snowflake.ID, quantity int64, at time.Time) (bool, error)
	SetThreshold(ctx context.Context, db *gorm.DB, tenantID, productID snowflake.ID, threshold int64, at time.Time) (bool, error)
	InsertMovement(ctx context.Context, db *gorm.DB, movement *Movement) error

	ListLevels(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB) ([]LevelView, error)
	GetLevelView(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, productID snowflake.ID) (*LevelView, error)
	ListMovements(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, productID snowflake.ID, filter MovementFilter) ([]Movement, error)
	Totals(ctx context.Context, db *gorm.DB, productID snowflake.ID) (in int64, out int64, err error)
}

var (
	ErrLevelNotFound     = domainerr.Wrap(domainerr.ErrNotFound, "stock_level_not_found")
	ErrInsufficientStock = domainerr.ErrInsufficientStock
	ErrInvalidQuantity   = domainerr.Invalid("quantity", "must_be_positive")
	ErrInvalidDirection  = domainerr.Invalid("direction", "invalid_direction")
	ErrInvalidReference  = domainerr.Invalid("reference", "required")
	ErrInvalidRefKind    = domainerr.Invalid("reference_kind", "invalid_reference_kind")
	ErrInvalidThreshold  = domainerr.Invalid("alert_threshold", "must_not_be_negative")
	ErrInvalidProduct    = domainerr.Invalid("product_id", "required")
)
