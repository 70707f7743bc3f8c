package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"gorm.io/gorm"
)

type CreateRequest struct {
	Number int `json:"number"`
	Seats  int `json:"seats"`
}

type UpdateRequest struct {
	Seats  *int    `json:"seats"`
	Status *Status `json:"status"`
}

type ListRequest struct {
	Status Status `form:"status"`
}

type Service interface {
	Create(ctx context.Context, actor identitydomain.Principal, req CreateRequest) (*Table, error)
	Get(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*Table, error)
	List(ctx context.Context, actor identitydomain.Principal, req ListRequest) ([]Table, error)
	// Update changes seats (manager, owner) or status (any floor role).
	Update(ctx context.Context, actor identitydomain.Principal, id snowflake.ID, req UpdateRequest) (*Table, error)
	Delete(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, table *Table) error
	FindByID(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, id snowflake.ID) (*Table, error)
	List(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, filter ListRequest) ([]Table, error)
	Update(ctx context.Context, db *gorm.DB, table *Table) error
	SetStatus(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, status Status, at time.Time) error
	Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error
	HasOrders(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}

var (
	ErrTableNotFound = domainerr.Wrap(domainerr.ErrNotFound, "table_not_found")
	ErrInvalidNumber = domainerr.Invalid("number", "must_be_positive")
	ErrInvalidSeats  = domainerr.Invalid("seats", "must_not_be_negative")
	ErrInvalidStatus = domainerr.Invalid("status", "invalid_status")
	ErrNumberTaken   = domainerr.Invalid("number", "number_taken")
	ErrTableInUse    = domainerr.Invalid("id", "table_in_use")
)
