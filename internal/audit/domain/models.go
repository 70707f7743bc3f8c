package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entities whose every insert, update and delete is mirrored in the trail.
const (
	EntityPrincipal     = "principal"
	EntityProduct       = "product"
	EntityOrder         = "order"
	EntitySupply        = "supply"
	EntityInvoice       = "invoice"
	EntityPayment       = "payment"
	EntityStockLevel    = "stock_level"
	EntityStockMovement = "stock_movement"
	EntityTenant        = "tenant"
)

// Named business actions.
const (
	ActionSubscriptionExpired      = "SUBSCRIPTION_EXPIRED"
	ActionExpirationError          = "EXPIRATION_ERROR"
	ActionPaymentConfirmed         = "PAYMENT_CONFIRMED"
	ActionEstablishmentSuspended   = "ESTABLISHMENT_SUSPENDED"
	ActionEstablishmentReactivated = "ESTABLISHMENT_REACTIVATED"
	ActionEstablishmentCreated     = "ESTABLISHMENT_CREATED"
	ActionAdminLogin               = "ADMIN_LOGIN"
)

func Created(entity string) string { return entity + ".created" }
func Updated(entity string) string { return entity + ".updated" }
func Deleted(entity string) string { return entity + ".deleted" }

// AuditLog is an immutable trail entry. It carries no foreign keys so it
// outlives the rows it describes.
type AuditLog struct {
	ID          snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TenantID    *snowflake.ID     `gorm:"index:idx_audit_logs_tenant_created,priority:1" json:"tenant_id,omitempty"`
	ActorID     *snowflake.ID     `json:"actor_id,omitempty"`
	Action      string            `gorm:"type:varchar(64);not null;index" json:"action"`
	Entity      string            `gorm:"type:varchar(64);not null" json:"entity"`
	EntityID    string            `gorm:"type:varchar(64);not null;index" json:"entity_id"`
	BeforeState datatypes.JSON    `json:"before_state,omitempty"`
	AfterState  datatypes.JSON    `json:"after_state,omitempty"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;index:idx_audit_logs_tenant_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is what a service hands to the recorder. A nil ActorID marks a
// system-initiated action. Before and After are marshalled as JSON; nil
// values are stored as NULL.
type Entry struct {
	TenantID *snowflake.ID
	ActorID  *snowflake.ID
	Action   string
	Entity   string
	EntityID string
	Before   any
	After    any
	Metadata map[string]any
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Scope    func(*gorm.DB) *gorm.DB
	Action   string
	Entity   string
	EntityID string
	From     *time.Time
	To       *time.Time
	Cursor   *AuditCursor
	Limit    int
}
