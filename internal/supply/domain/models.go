package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Supply is one replenishment batch. SupplyDate is a calendar day stored as
// UTC midnight.
type Supply struct {
	ID          snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TenantID    snowflake.ID `gorm:"not null;uniqueIndex:uq_supplies_tenant_number,priority:1;index:idx_supplies_tenant_date,priority:1" json:"tenant_id"`
	Number      string       `gorm:"type:varchar(64);not null;uniqueIndex:uq_supplies_tenant_number,priority:2" json:"number"`
	Supplier    string       `gorm:"type:varchar(160);not null" json:"supplier"`
	SupplyDate  time.Time    `gorm:"not null;index:idx_supplies_tenant_date,priority:2" json:"supply_date"`
	ManagerID   snowflake.ID `gorm:"not null" json:"manager_id"`
	TotalAmount int64        `gorm:"not null;default:0;check:chk_supplies_total,total_amount >= 0" json:"total_amount"`
	Note        *string      `gorm:"type:text" json:"note,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`

	Items []SupplyItem `gorm:"-" json:"items,omitempty"`
}

func (Supply) TableName() string { return "supplies" }

type SupplyItem struct {
	ID         snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SupplyID   snowflake.ID `gorm:"not null;index" json:"supply_id"`
	TenantID   snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	ProductID  snowflake.ID `gorm:"not null;index" json:"product_id"`
	Quantity   int64        `gorm:"not null;check:chk_supply_items_quantity,quantity > 0" json:"quantity"`
	UnitCost   int64        `gorm:"not null;check:chk_supply_items_unit_cost,unit_cost >= 0" json:"unit_cost"`
	LineAmount int64        `gorm:"not null;check:chk_supply_items_line_amount,line_amount >= 0" json:"line_amount"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (SupplyItem) TableName() string { return "supply_items" }

// CreateResult is returned by Create.
type CreateResult struct {
	SupplyID snowflake.ID `json:"supply_id"`
	Number   string       `json:"number"`
	Total    int64        `json:"total"`
}
