package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusFree     Status = "free"
	StatusOccupied Status = "occupied"
)

func (s Status) Valid() bool {
	return s == StatusFree || s == StatusOccupied
}

type Table struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:uq_dining_tables_tenant_number,priority:1" json:"tenant_id"`
	Number    int          `gorm:"not null;uniqueIndex:uq_dining_tables_tenant_number,priority:2;check:chk_dining_tables_number,number > 0" json:"number"`
	Seats     int          `gorm:"not null;default:0;check:chk_dining_tables_seats,seats >= 0" json:"seats"`
	Status    Status       `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Table) TableName() string { return "dining_tables" }
