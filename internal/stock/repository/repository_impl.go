package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/stock/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertLevel(ctx context.Context, db *gorm.DB, level *domain.Level) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO stock_levels (product_id, tenant_id, available, alert_threshold, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		level.ProductID,
		level.TenantID,
		level.Available,
		level.AlertThreshold,
		level.UpdatedAt,
	).Error
}

func (r *repo) FindLevel(ctx context.Context, db *gorm.DB, tenantID, productID snowflake.ID) (*domain.Level, error) {
	var level domain.Level
	err := db.WithContext(ctx).Raw(
		`SELECT product_id, tenant_id, available, alert_threshold, updated_at
		 FROM stock_levels WHERE tenant_id = ? AND product_id = ?`,
		tenantID,
		productID,
	).Scan(&level).Error
	if err != nil {
		return nil, err
	}
	if level.ProductID == 0 {
		return nil, nil
	}
	return &level, nil
}

func (r *repo) DeleteLevel(ctx context.Context, db *gorm.DB, tenantID, productID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM stock_levels WHERE tenant_id = ? AND product_id = ?`,
		tenantID,
		productID,
	).Error
}

func (r *repo) Deduct(ctx context.Context, db *gorm.DB, tenantID, productID snowflake.ID, quantity int64, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE stock_levels
		 SET available = available - ?, updated_at = ?
		 WHERE tenant_id = ? AND product_id = ? AND available >= ?`,
		quantity,
		at,
		tenantID,
		productID,
		quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Add(ctx context.Context, db *gorm.DB, tenantID, productID snowflake.ID, quantity int64, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE stock_levels
		 SET available = available + ?, updated_at = ?
		 WHERE tenant_id = ? AND product_id = ?`,
		quantity,
		at,
		tenantID,
		productID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetThreshold(ctx context.Context, db *gorm.DB, tenantID, productID snowflake.ID, threshold int64, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE stock_levels SET alert_threshold = ?, updated_at = ?
		 WHERE tenant_id = ? AND product_id = ?`,
		threshold,
		at,
		tenantID,
		productID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertMovement(ctx context.Context, db *gorm.DB, movement *domain.Movement) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO stock_movements (
			id, tenant_id, product_id, direction, quantity, unit_cost,
			reference, reference_kind, actor_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		movement.ID,
		movement.TenantID,
		movement.ProductID,
		movement.Direction,
		movement.Quantity,
		movement.UnitCost,
		movement.Reference,
		movement.ReferenceKind,
		movement.ActorID,
		movement.CreatedAt,
	).Error
}

func levelViews(db *gorm.DB) *gorm.DB {
	return db.Table("stock_levels AS l").
		Select(`l.product_id, l.tenant_id, p.name AS product_name, p.category, p.min_stock,
			p.active, l.available, l.alert_threshold, l.updated_at`).
		Joins("JOIN products p ON p.id = l.product_id")
}

func (r *repo) ListLevels(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB) ([]domain.LevelView, error) {
	var items []domain.LevelView
	err := levelViews(db.WithContext(ctx)).
		Scopes(scope).
		Order("p.name asc").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) GetLevelView(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, productID snowflake.ID) (*domain.LevelView, error) {
	var item domain.LevelView
	err := levelViews(db.WithContext(ctx)).
		Scopes(scope).
		Where("l.product_id = ?", productID).
		Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ProductID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListMovements(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, productID snowflake.ID, filter domain.MovementFilter) ([]domain.Movement, error) {
	var items []domain.Movement
	stmt := db.WithContext(ctx).
		Model(&domain.Movement{}).
		Scopes(scope).
		Where("product_id = ?", productID)
	if filter.Direction != "" {
		stmt = stmt.Where("direction = ?", filter.Direction)
	}
	if filter.From != nil {
		stmt = stmt.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("created_at <= ?", filter.To.UTC())
	}
	if err := stmt.Order("created_at asc, id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Totals(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, int64, error) {
	var totals struct {
		TotalIn  int64
		TotalOut int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN direction = 'in' THEN quantity ELSE 0 END), 0) AS total_in,
			COALESCE(SUM(CASE WHEN direction = 'out' THEN quantity ELSE 0 END), 0) AS total_out
		 FROM stock_movements WHERE product_id = ?`,
		productID,
	).Scan(&totals).Error
	if err != nil {
		return 0, 0, err
	}
	return totals.TotalIn, totals.TotalOut, nil
}
