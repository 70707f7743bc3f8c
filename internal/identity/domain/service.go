package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	"gorm.io/gorm"
)

type CreateRequest struct {
	ID          snowflake.ID  `json:"id"`
	TenantID    *snowflake.ID `json:"tenant_id"`
	Role        Role          `json:"role"`
	DisplayName string        `json:"display_name"`
	Email       string        `json:"email"`
}

type UpdateRequest struct {
	Role        *Role         `json:"role"`
	Active      *bool         `json:"active"`
	TenantID    *snowflake.ID `json:"tenant_id"`
	DisplayName *string       `json:"display_name"`
}

type Service interface {
	// Resolve maps a principal id to its role and tenant.
	Resolve(ctx context.Context, principalID snowflake.ID) (Principal, error)
	// RecordLogin stamps last_login_at and audits admin sign-ins.
	RecordLogin(ctx context.Context, principalID snowflake.ID) (Principal, error)

	Create(ctx context.Context, actor Principal, req CreateRequest) (*Account, error)
	Update(ctx context.Context, actor Principal, id snowflake.ID, req UpdateRequest) (*Account, error)
	Get(ctx context.Context, actor Principal, id snowflake.ID) (*Account, error)
	List(ctx context.Context, actor Principal) ([]Account, error)

	// InvalidateTenant drops cached resolutions for every principal of tenantID.
	InvalidateTenant(ctx context.Context, tenantID snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	Update(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ResolvedAccount, error)
	List(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB) ([]Account, error)
	IDsByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]snowflake.ID, error)
	TenantExists(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (bool, error)
	TouchLogin(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

var (
	ErrPrincipalNotFound = domainerr.Wrap(domainerr.ErrNotFound, "principal_not_found")
	ErrInvalidRole       = domainerr.Invalid("role", "invalid_role")
	ErrAdminWithTenant   = domainerr.Invalid("tenant_id", "admin_without_tenant")
	ErrTenantRequired    = domainerr.Invalid("tenant_id", "tenant_required")
	ErrInvalidID         = domainerr.Invalid("id", "required")
	ErrOwnTenantChange   = domainerr.Wrap(domainerr.ErrForbidden, "own_tenant_immutable")
	ErrTenantNotFound    = domainerr.Invalid("tenant_id", "tenant_not_found")
	ErrEmailTaken        = domainerr.Invalid("email", "email_taken")
	ErrIDTaken           = domainerr.Invalid("id", "id_taken")
	ErrInvalidName       = domainerr.Invalid("display_name", "required")
)
