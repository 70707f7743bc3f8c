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
	Name  string     `json:"name"`
	Start *time.Time `json:"subscription_start"`
}

type UpdateRequest struct {
	Name *string `json:"name"`
}

type Service interface {
	Create(ctx context.Context, actor identitydomain.Principal, req CreateRequest) (*Tenant, error)
	Get(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*Tenant, error)
	List(ctx context.Context, actor identitydomain.Principal) ([]Tenant, error)
	Update(ctx context.Context, actor identitydomain.Principal, id snowflake.ID, req UpdateRequest) (*Tenant, error)
	Delete(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) error

	ConfirmPayment(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*Tenant, error)
	Suspend(ctx context.Context, actor identitydomain.Principal, id snowflake.ID, reason string) (*Tenant, error)
	Reactivate(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*Tenant, error)
	// ExpireOverdue is a system action: it has no principal.
	ExpireOverdue(ctx context.Context) (ExpireResult, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	List(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB) ([]Tenant, error)
	UpdateName(ctx context.Context, db *gorm.DB, id snowflake.ID, name, slug string, at time.Time) error
	Save(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	// ExpireIfOverdue flips one tenant to expired only while it still matches
	// the expiry predicate, and reports whether it did.
	ExpireIfOverdue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	ListOverdue(ctx context.Context, db *gorm.DB, now time.Time) ([]Tenant, error)
	CountDependents(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

var (
	ErrTenantNotFound   = domainerr.Wrap(domainerr.ErrNotFound, "tenant_not_found")
	ErrInvalidName      = domainerr.Invalid("name", "required")
	ErrNotSuspended     = domainerr.Invalid("subscription_status", "not_suspended")
	ErrHasDependents    = domainerr.Invalid("id", "tenant_has_dependents")
	ErrSlugTaken        = domainerr.Invalid("name", "slug_taken")
	ErrCannotReactivate = domainerr.ErrCannotReactivateExpired
)
