package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/tenant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenants (
			id, name, slug, subscription_status, active, subscription_start, subscription_end,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.SubscriptionStatus,
		tenant.Active,
		tenant.SubscriptionStart,
		tenant.SubscriptionEnd,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, subscription_status, active, subscription_start, subscription_end,
		        last_payment_at, last_payment_confirmed_by, suspension_reason, created_at, updated_at
		 FROM tenants
		 WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB) ([]domain.Tenant, error) {
	var items []domain.Tenant
	err := db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Scopes(scope).
		Order("name ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateName(ctx context.Context, db *gorm.DB, id snowflake.ID, name, slug string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants SET name = ?, slug = ?, updated_at = ? WHERE id = ?`,
		name,
		slug,
		at,
		id,
	).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants
		 SET subscription_status = ?,
		     active = ?,
		     subscription_end = ?,
		     last_payment_at = ?,
		     last_payment_confirmed_by = ?,
		     suspension_reason = ?,
		     updated_at = ?
		 WHERE id = ?`,
		tenant.SubscriptionStatus,
		tenant.Active,
		tenant.SubscriptionEnd,
		tenant.LastPaymentAt,
		tenant.LastPaymentConfirmedBy,
		tenant.SuspensionReason,
		tenant.UpdatedAt,
		tenant.ID,
	).Error
}

func (r *repo) ExpireIfOverdue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE tenants
		 SET subscription_status = ?, active = ?, updated_at = ?
		 WHERE id = ? AND subscription_status = ? AND subscription_end < ?`,
		domain.StatusExpired,
		false,
		now,
		id,
		domain.StatusActive,
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListOverdue(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Tenant, error) {
	var items []domain.Tenant
	err := db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("subscription_status = ? AND subscription_end < ?", domain.StatusActive, now).
		Order("subscription_end ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountDependents(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT
			(SELECT COUNT(*) FROM principals WHERE tenant_id = ?) +
			(SELECT COUNT(*) FROM products WHERE tenant_id = ?) +
			(SELECT COUNT(*) FROM dining_tables WHERE tenant_id = ?) +
			(SELECT COUNT(*) FROM orders WHERE tenant_id = ?) +
			(SELECT COUNT(*) FROM supplies WHERE tenant_id = ?) +
			(SELECT COUNT(*) FROM invoices WHERE tenant_id = ?) +
			(SELECT COUNT(*) FROM payments WHERE tenant_id = ?)`,
		id, id, id, id, id, id, id,
	).Scan(&count).Error
	return count, err
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM business_sequences WHERE tenant_id = ?`, id).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM tenants WHERE id = ?`, id).Error
}
