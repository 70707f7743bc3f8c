package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

type ReferenceKind string

const (
	ReferenceOrder  ReferenceKind = "order"
	ReferenceSupply ReferenceKind = "supply"
)

func (k ReferenceKind) Valid() bool {
	return k == ReferenceOrder || k == ReferenceSupply
}

// Level is the current on-hand quantity of one product. Only the ledger
// writes Available.
type Level struct {
	ProductID      snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	TenantID       snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Available      int64        `gorm:"not null;default:0;check:chk_stock_levels_available,available >= 0" json:"available"`
	AlertThreshold int64        `gorm:"not null;default:0;check:chk_stock_levels_threshold,alert_threshold >= 0" json:"alert_threshold"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (Level) TableName() string { return "stock_levels" }

// Movement is an append-only inbound or outbound adjustment.
type Movement struct {
	ID            snowflake.ID  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TenantID      snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	ProductID     snowflake.ID  `gorm:"not null;index" json:"product_id"`
	Direction     Direction     `gorm:"type:varchar(8);not null" json:"direction"`
	Quantity      int64         `gorm:"not null;check:chk_stock_movements_quantity,quantity > 0" json:"quantity"`
	UnitCost      *int64        `json:"unit_cost,omitempty"`
	Reference     string        `gorm:"type:varchar(64);not null;index" json:"reference"`
	ReferenceKind ReferenceKind `gorm:"type:varchar(16);not null" json:"reference_kind"`
	ActorID       *snowflake.ID `json:"actor_id,omitempty"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
}

func (Movement) TableName() string { return "stock_movements" }

// LevelView is a level joined with its product for read paths.
type LevelView struct {
	ProductID      snowflake.ID `json:"product_id"`
	TenantID       snowflake.ID `json:"tenant_id"`
	ProductName    string       `json:"product_name"`
	Category       string       `json:"category"`
	MinStock       int64        `json:"min_stock"`
	Active         bool         `json:"active"`
	Available      int64        `json:"available"`
	AlertThreshold int64        `json:"alert_threshold"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type AlertSeverity string

const (
	AlertOutOfStock AlertSeverity = "out_of_stock"
	AlertLow        AlertSeverity = "low"
)

type Alert struct {
	LevelView
	Threshold int64         `json:"threshold"`
	Severity  AlertSeverity `json:"severity"`
}

type ReconcileResult struct {
	ProductID snowflake.ID `json:"product_id"`
	Available int64        `json:"available"`
	TotalIn   int64        `json:"total_in"`
	TotalOut  int64        `json:"total_out"`
	Balanced  bool         `json:"balanced"`
}
