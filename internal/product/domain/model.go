package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Category string

const (
	CategoryDrink Category = "drink"
	CategoryFood  Category = "food"
	CategoryOther Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryDrink, CategoryFood, CategoryOther:
		return true
	}
	return false
}

type Product struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:uq_products_tenant_name,priority:1" json:"tenant_id"`
	Name      string       `gorm:"type:varchar(160);not null;uniqueIndex:uq_products_tenant_name,priority:2" json:"name"`
	Category  Category     `gorm:"type:varchar(16);not null" json:"category"`
	Price     int64        `gorm:"not null;check:chk_products_price,price > 0" json:"price"`
	MinStock  int64        `gorm:"not null;default:0;check:chk_products_min_stock,min_stock >= 0" json:"min_stock"`
	Active    bool         `gorm:"not null" json:"active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Product) TableName() string { return "products" }
