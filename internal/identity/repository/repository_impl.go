package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/identity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const principalColumns = `id, tenant_id, role, display_name, email, active, last_login_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO principals (`+principalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.TenantID,
		account.Role,
		account.DisplayName,
		account.Email,
		account.Active,
		account.LastLoginAt,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	if account == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE principals
		 SET tenant_id = ?, role = ?, display_name = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		account.TenantID,
		account.Role,
		account.DisplayName,
		account.Active,
		account.UpdatedAt,
		account.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ResolvedAccount, error) {
	var resolved domain.ResolvedAccount
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.tenant_id, p.role, p.display_name, p.email, p.active,
		        p.last_login_at, p.created_at, p.updated_at, t.active AS tenant_active
		 FROM principals p
		 LEFT JOIN tenants t ON t.id = p.tenant_id
		 WHERE p.id = ?`,
		id,
	).Scan(&resolved).Error
	if err != nil {
		return nil, err
	}
	if resolved.ID == 0 {
		return nil, nil
	}
	return &resolved, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB) ([]domain.Account, error) {
	var items []domain.Account
	stmt := db.WithContext(ctx).Model(&domain.Account{})
	if scope != nil {
		stmt = stmt.Scopes(scope)
	}
	if err := stmt.Order("created_at asc, id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) IDsByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("tenant_id = ?", tenantID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) TenantExists(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM tenants WHERE id = ?`, tenantID).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) TouchLogin(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE principals SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		at,
		at,
		id,
	).Error
}
