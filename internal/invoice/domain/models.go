// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusAwaitingPayment InvoiceStatus = "awaiting_payment"
	InvoiceStatusPartiallyPaid   InvoiceStatus = "partially_paid"
	InvoiceStatusPaid            InvoiceStatus = "paid"
)

// Invoice is the billable record of one validated order.
type Invoice struct {
	ID              snowflake.ID  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TenantID        snowflake.ID  `gorm:"not null;uniqueIndex:uq_invoices_tenant_number,priority:1" json:"tenant_id"`
	OrderID         snowflake.ID  `gorm:"not null;uniqueIndex:uq_invoices_order" json:"order_id"`
	Number          string        `gorm:"type:varchar(64);not null;uniqueIndex:uq_invoices_tenant_number,priority:2" json:"number"`
	TotalAmount     int64         `gorm:"not null;check:chk_invoices_total,total_amount >= 0" json:"total_amount"`
	AmountPaid      int64         `gorm:"not null;default:0;check:chk_invoices_paid,amount_paid >= 0 AND amount_paid <= total_amount" json:"amount_paid"`
	RemainingAmount int64         `gorm:"not null" json:"remaining_amount"`
	Status          InvoiceStatus `gorm:"type:varchar(24);not null;index" json:"status"`
	GeneratedAt     time.Time     `gorm:"not null" json:"generated_at"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
	CreatedBy       snowflake.ID  `gorm:"not null" json:"created_by"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// StatusFor derives the status from the amounts.
func StatusFor(total, paid int64) InvoiceStatus {
	switch {
	case paid >= total:
		return InvoiceStatusPaid
	case paid > 0:
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusAwaitingPayment
	}
}

// OverdueInvoice is an unpaid invoice past the configured age.
type OverdueInvoice struct {
	Invoice
	Age      time.Duration `json:"-"`
	AgeHours int64         `json:"age_hours"`
	Severity string        `json:"severity"`
}
