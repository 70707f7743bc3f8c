package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert skips the row when the order already has an invoice and reports
// whether it was written.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, tenant_id, order_id, number, total_amount, amount_paid, remaining_amount,
			status, generated_at, paid_at, created_by, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_id) DO NOTHING`,
		invoice.ID,
		invoice.TenantID,
		invoice.OrderID,
		invoice.Number,
		invoice.TotalAmount,
		invoice.AmountPaid,
		invoice.RemainingAmount,
		invoice.Status,
		invoice.GeneratedAt,
		invoice.PaidAt,
		invoice.CreatedBy,
		invoice.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, db, scope, "id = ?", id)
}

func (r *repo) FindByOrder(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, orderID snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, db, scope, "order_id = ?", orderID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, query string, arg any) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Scopes(scope).
		Where(query, arg).
		Limit(1).
		Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, req domain.ListRequest) ([]domain.Invoice, error) {
	var items []domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{}).Scopes(scope)
	if req.Status != "" {
		stmt = stmt.Where("status = ?", req.Status)
	}
	if err := stmt.Order("generated_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListUnpaidBefore(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, before time.Time) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Scopes(scope).
		Where("status <> ?", domain.InvoiceStatusPaid).
		Where("generated_at < ?", before).
		Order("generated_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ApplyPayment(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, amount int64, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_paid = amount_paid + ?,
		     remaining_amount = total_amount - amount_paid - ?,
		     status = CASE
		       WHEN amount_paid + ? >= total_amount THEN ?
		       ELSE ?
		     END,
		     paid_at = CASE
		       WHEN amount_paid + ? >= total_amount THEN ?
		       ELSE paid_at
		     END,
		     updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND amount_paid + ? <= total_amount`,
		amount,
		amount,
		amount,
		domain.InvoiceStatusPaid,
		domain.InvoiceStatusPartiallyPaid,
		amount,
		at,
		at,
		id,
		tenantID,
		amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
