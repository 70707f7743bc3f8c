package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/table/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, table *domain.Table) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO dining_tables (id, tenant_id, number, seats, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		table.ID,
		table.TenantID,
		table.Number,
		table.Seats,
		table.Status,
		table.CreatedAt,
		table.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, id snowflake.ID) (*domain.Table, error) {
	var item domain.Table
	err := db.WithContext(ctx).
		Model(&domain.Table{}).
		Scopes(scope).
		Where("id = ?", id).
		Limit(1).
		Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, filter domain.ListRequest) ([]domain.Table, error) {
	var items []domain.Table
	stmt := db.WithContext(ctx).Model(&domain.Table{}).Scopes(scope)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if err := stmt.Order("tenant_id ASC").Order("number ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, table *domain.Table) error {
	return db.WithContext(ctx).Exec(
		`UPDATE dining_tables SET seats = ?, status = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		table.Seats,
		table.Status,
		table.UpdatedAt,
		table.TenantID,
		table.ID,
	).Error
}

func (r *repo) SetStatus(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, status domain.Status, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE dining_tables SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		status,
		at,
		tenantID,
		id,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM dining_tables WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Error
}

func (r *repo) HasOrders(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM orders WHERE table_id = ?`, id).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
