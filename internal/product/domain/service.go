package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"gorm.io/gorm"
)

type CreateRequest struct {
	Name           string   `json:"name"`
	Category       Category `json:"category"`
	Price          int64    `json:"price"`
	MinStock       int64    `json:"min_stock"`
	Active         *bool    `json:"active"`
	AlertThreshold *int64   `json:"alert_threshold"`
}

type UpdateRequest struct {
	Name     *string   `json:"name"`
	Category *Category `json:"category"`
	Price    *int64    `json:"price"`
	MinStock *int64    `json:"min_stock"`
	Active   *bool     `json:"active"`
}

type ListRequest struct {
	Name     string   `form:"name"`
	Category Category `form:"category"`
	Active   *bool    `form:"active"`
}

type Service interface {
	Create(ctx context.Context, actor identitydomain.Principal, req CreateRequest) (*Product, error)
	Get(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*Product, error)
	List(ctx context.Context, actor identitydomain.Principal, req ListRequest) ([]Product, error)
	Update(ctx context.Context, actor identitydomain.Principal, id snowflake.ID, req UpdateRequest) (*Product, error)
	// Delete removes a product that no movement or order line references.
	// Deactivate it through Update otherwise.
	Delete(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, id snowflake.ID) (*Product, error)
	List(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, filter ListRequest) ([]Product, error)
	Update(ctx context.Context, db *gorm.DB, product *Product) error
	Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error
	InUse(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}

var (
	ErrProductNotFound = domainerr.Wrap(domainerr.ErrNotFound, "product_not_found")
	ErrInvalidName     = domainerr.Invalid("name", "required")
	ErrInvalidCategory = domainerr.Invalid("category", "invalid_category")
	ErrInvalidPrice    = domainerr.Invalid("price", "must_be_positive")
	ErrInvalidMinStock = domainerr.Invalid("min_stock", "must_not_be_negative")
	ErrNameTaken       = domainerr.Invalid("name", "name_taken")
	ErrProductInUse    = domainerr.Invalid("id", "product_in_use")
	ErrProductInactive = domainerr.Invalid("product_id", "product_inactive")
)
