package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// KPIs summarises one period. Revenue counts validated orders by validation
// time; Collected counts payments by payment time.
type KPIs struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Revenue       int64     `json:"revenue"`
	OrderCount    int64     `json:"order_count"`
	AverageBasket int64     `json:"average_basket"`
	Collected     int64     `json:"collected"`
	Receivables   int64     `json:"receivables"`
	CostOfGoods   int64     `json:"cost_of_goods"`
	GrossMargin   int64     `json:"gross_margin"`
	SuppliesTotal int64     `json:"supplies_total"`
}

type ProductSales struct {
	ProductID   snowflake.ID `json:"product_id"`
	ProductName string       `json:"product_name"`
	Quantity    int64        `json:"quantity"`
	Revenue     int64        `json:"revenue"`
}

// SeriesPoint is one bucket of the revenue series. Shortfall is revenue not
// matched by collections in the same bucket and may be negative.
type SeriesPoint struct {
	Period    string `json:"period"`
	Revenue   int64  `json:"revenue"`
	Collected int64  `json:"collected"`
	Shortfall int64  `json:"shortfall"`
}

type RevenueSeries struct {
	Granularity Granularity   `json:"granularity"`
	Points      []SeriesPoint `json:"points"`
}

type MethodTotal struct {
	Method string `json:"method"`
	Amount int64  `json:"amount"`
	Count  int64  `json:"count"`
}

type Transaction struct {
	OrderID       snowflake.ID `json:"order_id"`
	Number        string       `json:"number"`
	Status        string       `json:"status"`
	TableID       snowflake.ID `json:"table_id"`
	ServerID      snowflake.ID `json:"server_id"`
	TotalAmount   int64        `json:"total_amount"`
	AmountPaid    int64        `json:"amount_paid"`
	InvoiceNumber *string      `json:"invoice_number,omitempty"`
	InvoiceStatus *string      `json:"invoice_status,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ValidatedAt   *time.Time   `json:"validated_at,omitempty"`
}

type PageMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Pagination   PageMeta      `json:"pagination"`
}

// DatedAmount is a raw row feeding the series buckets.
type DatedAmount struct {
	At     time.Time
	Amount int64
}

// Totals is the aggregate row behind KPIs.
type Totals struct {
	Revenue     int64
	OrderCount  int64
	Receivables int64
}
