package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusCancelled Status = "cancelled"
)

type Order struct {
	ID          snowflake.ID  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TenantID    snowflake.ID  `gorm:"not null;uniqueIndex:uq_orders_tenant_number,priority:1" json:"tenant_id"`
	Number      string        `gorm:"type:varchar(64);not null;uniqueIndex:uq_orders_tenant_number,priority:2" json:"number"`
	TableID     snowflake.ID  `gorm:"not null;index" json:"table_id"`
	ServerID    snowflake.ID  `gorm:"not null;index" json:"server_id"`
	Status      Status        `gorm:"type:varchar(16);not null;index" json:"status"`
	TotalAmount int64         `gorm:"not null;default:0;check:chk_orders_total,total_amount >= 0" json:"total_amount"`
	Note        *string       `gorm:"type:text" json:"note,omitempty"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null" json:"updated_at"`
	ValidatedAt *time.Time    `json:"validated_at,omitempty"`
	ValidatorID *snowflake.ID `json:"validator_id,omitempty"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`

	Items []OrderItem `gorm:"-" json:"items,omitempty"`
}

func (Order) TableName() string { return "orders" }

// OrderItem snapshots the product name and price at the time it is added.
type OrderItem struct {
	ID          snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OrderID     snowflake.ID `gorm:"not null;index" json:"order_id"`
	TenantID    snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	ProductID   snowflake.ID `gorm:"not null;index" json:"product_id"`
	ProductName string       `gorm:"type:varchar(160);not null" json:"product_name"`
	UnitPrice   int64        `gorm:"not null" json:"unit_price"`
	Quantity    int64        `gorm:"not null;check:chk_order_items_quantity,quantity > 0" json:"quantity"`
	LineAmount  int64        `gorm:"not null;check:chk_order_items_line_amount,line_amount >= 0" json:"line_amount"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (OrderItem) TableName() string { return "order_items" }
