package authorization

import (
	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"gorm.io/gorm"
)

// Scope restricts a query on a tenant-scoped table to the rows p may see.
// Admins read across tenants; a non-admin without tenant sees nothing.
func Scope(p identitydomain.Principal) func(*gorm.DB) *gorm.DB {
	return ScopeColumn(p, "tenant_id")
}

// ScopeColumn is Scope for a qualified or differently named column.
func ScopeColumn(p identitydomain.Principal, column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p.IsAdmin() {
			return db
		}
		tenantID, ok := p.CurrentTenant()
		if !ok {
			return db.Where("1 = 0")
		}
		return db.Where(column+" = ?", tenantID)
	}
}

// CanSee reports whether a row of tenantID is visible to p.
func CanSee(p identitydomain.Principal, tenantID snowflake.ID) bool {
	if p.IsAdmin() {
		return true
	}
	own, ok := p.CurrentTenant()
	return ok && own == tenantID
}

// RequireSameTenant guards mutations: a row of another tenant is rejected,
// never silently skipped.
func RequireSameTenant(p identitydomain.Principal, tenantID snowflake.ID) error {
	own, ok := p.CurrentTenant()
	if !ok {
		return ErrNoTenant
	}
	if own != tenantID {
		return ErrForbidden
	}
	return nil
}

// TenantOf returns the tenant a mutation by p applies to.
func TenantOf(p identitydomain.Principal) (snowflake.ID, error) {
	tenantID, ok := p.CurrentTenant()
	if !ok {
		return 0, ErrNoTenant
	}
	return tenantID, nil
}
