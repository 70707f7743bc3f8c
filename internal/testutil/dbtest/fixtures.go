package dbtest

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	productdomain "github.com/smallbiznis/comptoir/internal/product/domain"
	stockdomain "github.com/smallbiznis/comptoir/internal/stock/domain"
	tabledomain "github.com/smallbiznis/comptoir/internal/table/domain"
	tenantdomain "github.com/smallbiznis/comptoir/internal/tenant/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SeedTenant inserts an active tenant whose subscription ends a year from now.
func SeedTenant(t *testing.T, db *gorm.DB, id snowflake.ID) *tenantdomain.Tenant {
	t.Helper()
	now := time.Now().UTC()
	tenant := &tenantdomain.Tenant{
		ID:                 id,
		Name:               "Tenant " + id.String(),
		Slug:               "tenant-" + id.String(),
		SubscriptionStatus: tenantdomain.StatusActive,
		Active:             true,
		SubscriptionStart:  now,
		SubscriptionEnd:    now.AddDate(1, 0, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

// SeedPrincipal inserts an active principal; tenantID is ignored for admins.
func SeedPrincipal(t *testing.T, db *gorm.DB, id snowflake.ID, role identitydomain.Role, tenantID snowflake.ID) identitydomain.Principal {
	t.Helper()
	now := time.Now().UTC()
	account := &identitydomain.Account{
		ID:          id,
		Role:        role,
		DisplayName: string(role) + " " + id.String(),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if role != identitydomain.RoleAdmin {
		tid := tenantID
		account.TenantID = &tid
	}
	require.NoError(t, db.Create(account).Error)
	return account.Principal()
}

// SeedProduct inserts an active product and its stock level.
func SeedProduct(t *testing.T, db *gorm.DB, id, tenantID snowflake.ID, name string, price, available int64) *productdomain.Product {
	t.Helper()
	now := time.Now().UTC()
	product := &productdomain.Product{
		ID:        id,
		TenantID:  tenantID,
		Name:      name,
		Category:  productdomain.CategoryDrink,
		Price:     price,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(product).Error)
	require.NoError(t, db.Create(&stockdomain.Level{
		ProductID: id,
		TenantID:  tenantID,
		Available: available,
		UpdatedAt: now,
	}).Error)
	return product
}

// SeedTable inserts a free table.
func SeedTable(t *testing.T, db *gorm.DB, id, tenantID snowflake.ID, number int) *tabledomain.Table {
	t.Helper()
	now := time.Now().UTC()
	table := &tabledomain.Table{
		ID:        id,
		TenantID:  tenantID,
		Number:    number,
		Seats:     4,
		Status:    tabledomain.StatusFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(table).Error)
	return table
}

// Available reads the stock level of productID.
func Available(t *testing.T, db *gorm.DB, productID snowflake.ID) int64 {
	t.Helper()
	var level stockdomain.Level
	require.NoError(t, db.Where("product_id = ?", productID).First(&level).Error)
	return level.Available
}

// Count counts rows of model matching the optional condition.
func Count(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	stmt := db.Model(model)
	if query != "" {
		stmt = stmt.Where(query, args...)
	}
	require.NoError(t, stmt.Count(&n).Error)
	return n
}
