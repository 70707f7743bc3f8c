package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/supply/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, supply *domain.Supply) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO supplies (id, tenant_id, number, supplier, supply_date, manager_id, total_amount, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		supply.ID,
		supply.TenantID,
		supply.Number,
		supply.Supplier,
		supply.SupplyDate,
		supply.ManagerID,
		supply.TotalAmount,
		supply.Note,
		supply.CreatedAt,
		supply.UpdatedAt,
	).Error
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *domain.SupplyItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO supply_items (id, supply_id, tenant_id, product_id, quantity, unit_cost, line_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.SupplyID,
		item.TenantID,
		item.ProductID,
		item.Quantity,
		item.UnitCost,
		item.LineAmount,
		item.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, id snowflake.ID) (*domain.Supply, error) {
	var item domain.Supply
	err := db.WithContext(ctx).
		Model(&domain.Supply{}).
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

func (r *repo) FindItems(ctx context.Context, db *gorm.DB, supplyID snowflake.ID) ([]domain.SupplyItem, error) {
	var items []domain.SupplyItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, supply_id, tenant_id, product_id, quantity, unit_cost, line_amount, created_at
		 FROM supply_items WHERE supply_id = ? ORDER BY created_at ASC, id ASC`,
		supplyID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByPeriod(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, start, end time.Time) ([]domain.Supply, error) {
	var items []domain.Supply
	err := db.WithContext(ctx).
		Model(&domain.Supply{}).
		Scopes(scope).
		Where("supply_date >= ? AND supply_date <= ?", start, end).
		Order("supply_date ASC").
		Order("number ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateHeader(ctx context.Context, db *gorm.DB, supply *domain.Supply) error {
	return db.WithContext(ctx).Exec(
		`UPDATE supplies SET supplier = ?, supply_date = ?, note = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		supply.Supplier,
		supply.SupplyDate,
		supply.Note,
		supply.UpdatedAt,
		supply.TenantID,
		supply.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM supply_items WHERE tenant_id = ? AND supply_id = ?`,
		tenantID,
		id,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`DELETE FROM supplies WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Error
}
