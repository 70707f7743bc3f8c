package repository

import (
	"context"
	"time"

	orderdomain "github.com/smallbiznis/comptoir/internal/order/domain"
	"github.com/smallbiznis/comptoir/internal/reporting/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// validatedOrders selects the orders validated within [from, to] as "o".
func validatedOrders(ctx context.Context, db *gorm.DB, scope domain.Scope, from, to time.Time) *gorm.DB {
	return db.WithContext(ctx).
		Table("orders AS o").
		Scopes(scope("o.tenant_id")).
		Where("o.status = ?", orderdomain.StatusValidated).
		Where("o.validated_at >= ? AND o.validated_at <= ?", from.UTC(), to.UTC())
}

func (r *repo) OrderTotals(ctx context.Context, db *gorm.DB, scope domain.Scope, from, to time.Time) (domain.Totals, error) {
	var row domain.Totals
	err := validatedOrders(ctx, db, scope, from, to).
		Joins("LEFT JOIN invoices i ON i.order_id = o.id").
		Select(`COALESCE(SUM(o.total_amount), 0) AS revenue,
			COUNT(1) AS order_count,
			COALESCE(SUM(o.total_amount - COALESCE(i.amount_paid, 0)), 0) AS receivables`).
		Scan(&row).Error
	return row, err
}

// CostOfGoods values sold quantities at each product's average supply cost.
// Products never supplied cost nothing.
func (r *repo) CostOfGoods(ctx context.Context, db *gorm.DB, scope domain.Scope, from, to time.Time) (int64, error) {
	var cost int64
	err := validatedOrders(ctx, db, scope, from, to).
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Joins(`LEFT JOIN (
			SELECT product_id, SUM(line_amount) / SUM(quantity) AS unit_cost
			FROM supply_items
			GROUP BY product_id
		) c ON c.product_id = oi.product_id`).
		Select("COALESCE(SUM(oi.quantity * COALESCE(c.unit_cost, 0)), 0)").
		Scan(&cost).Error
	return cost, err
}

func (r *repo) Collected(ctx context.Context, db *gorm.DB, scope domain.Scope, from, to time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Table("payments AS p").
		Scopes(scope("p.tenant_id")).
		Where("p.created_at >= ? AND p.created_at <= ?", from.UTC(), to.UTC()).
		Select("COALESCE(SUM(p.amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repo) SuppliesTotal(ctx context.Context, db *gorm.DB, scope domain.Scope, fromDay, toDay time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Table("supplies AS s").
		Scopes(scope("s.tenant_id")).
		Where("s.supply_date >= ? AND s.supply_date <= ?", fromDay, toDay).
		Select("COALESCE(SUM(s.total_amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repo) SalesByProduct(ctx context.Context, db *gorm.DB, scope domain.Scope, from, to time.Time) ([]domain.ProductSales, error) {
	var rows []domain.ProductSales
	err := validatedOrders(ctx, db, scope, from, to).
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Select(`oi.product_id AS product_id,
			MAX(oi.product_name) AS product_name,
			SUM(oi.quantity) AS quantity,
			SUM(oi.line_amount) AS revenue`).
		Group("oi.product_id").
		Order("revenue DESC").
		Order("oi.product_id").
		Scan(&rows).Error
	return rows, err
}

func (r *repo) CollectionsByMethod(ctx context.Context, db *gorm.DB, scope domain.Scope, from, to time.Time) ([]domain.MethodTotal, error) {
	var rows []domain.MethodTotal
	err := db.WithContext(ctx).
		Table("payments AS p").
		Scopes(scope("p.tenant_id")).
		Where("p.created_at >= ? AND p.created_at <= ?", from.UTC(), to.UTC()).
		Select("p.method AS method, SUM(p.amount) AS amount, COUNT(1) AS count").
		Group("p.method").
		Order("p.method").
		Scan(&rows).Error
	return rows, err
}

func (r *repo) ValidatedAmounts(ctx context.Context, db *gorm.DB, scope domain.Scope, from, to time.Time) ([]domain.DatedAmount, error) {
	var rows []domain.DatedAmount
	err := validatedOrders(ctx, db, scope, from, to).
		Select("o.validated_at AS at, o.total_amount AS amount").
		Scan(&rows).Error
	return rows, err
}

func (r *repo) PaymentAmounts(ctx context.Context, db *gorm.DB, scope domain.Scope, from, to time.Time) ([]domain.DatedAmount, error) {
	var rows []domain.DatedAmount
	err := db.WithContext(ctx).
		Table("payments AS p").
		Scopes(scope("p.tenant_id")).
		Where("p.created_at >= ? AND p.created_at <= ?", from.UTC(), to.UTC()).
		Select("p.created_at AS at, p.amount AS amount").
		Scan(&rows).Error
	return rows, err
}

func (r *repo) SearchTransactions(ctx context.Context, db *gorm.DB, scope domain.Scope, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	filtered := func() *gorm.DB {
		stmt := db.WithContext(ctx).Table("orders AS o").Scopes(scope("o.tenant_id"))
		if filter.Status != "" {
			stmt = stmt.Where("o.status = ?", filter.Status)
		}
		if filter.ServerID != 0 {
			stmt = stmt.Where("o.server_id = ?", filter.ServerID)
		}
		if filter.TableID != 0 {
			stmt = stmt.Where("o.table_id = ?", filter.TableID)
		}
		if filter.ProductID != 0 {
			stmt = stmt.Where("EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.product_id = ?)", filter.ProductID)
		}
		if filter.From != nil {
			stmt = stmt.Where("o.created_at >= ?", filter.From.UTC())
		}
		if filter.To != nil {
			stmt = stmt.Where("o.created_at <= ?", filter.To.UTC())
		}
		return stmt
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	var rows []domain.Transaction
	err := filtered().
		Joins("LEFT JOIN invoices i ON i.order_id = o.id").
		Select(`o.id AS order_id, o.number AS number, o.status AS status,
			o.table_id AS table_id, o.server_id AS server_id, o.total_amount AS total_amount,
			COALESCE(i.amount_paid, 0) AS amount_paid,
			i.number AS invoice_number, i.status AS invoice_status,
			o.created_at AS created_at, o.validated_at AS validated_at`).
		Order("o.created_at DESC").
		Order("o.id DESC").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
