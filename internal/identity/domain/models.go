package domain

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleServer  Role = "server"
	RoleCounter Role = "counter"
	RoleManager Role = "manager"
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
)

var Roles = []Role{RoleServer, RoleCounter, RoleManager, RoleOwner, RoleAdmin}

func (r Role) Valid() bool {
	switch r {
	case RoleServer, RoleCounter, RoleManager, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// Principal is the resolved caller of an operation. Every service method
// receives it explicitly; nothing reads it from ambient state.
type Principal struct {
	ID       snowflake.ID  `json:"id"`
	Role     Role          `json:"role"`
	TenantID *snowflake.ID `json:"tenant_id,omitempty"`
	Active   bool          `json:"active"`
}

func (p Principal) CurrentRole() Role {
	return p.Role
}

// CurrentTenant returns the tenant the principal acts for. Admins have none.
func (p Principal) CurrentTenant() (snowflake.ID, bool) {
	if p.TenantID == nil || *p.TenantID == 0 {
		return 0, false
	}
	return *p.TenantID, true
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// ActorID returns the id recorded as actor in audit entries.
func (p Principal) ActorID() *snowflake.ID {
	id := p.ID
	return &id
}

func (p Principal) LogTenant() string {
	if id, ok := p.CurrentTenant(); ok {
		return id.String()
	}
	return ""
}

func (p Principal) LogActor() string {
	if p.ID == 0 {
		return ""
	}
	return strconv.FormatInt(p.ID.Int64(), 10)
}

// Account is the persisted principal profile.
type Account struct {
	ID          snowflake.ID  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TenantID    *snowflake.ID `gorm:"index" json:"tenant_id,omitempty"`
	Role        Role          `gorm:"type:varchar(16);not null" json:"role"`
	DisplayName string        `gorm:"type:varchar(120);not null" json:"display_name"`
	Email       *string       `gorm:"type:varchar(255);uniqueIndex:uq_principals_email" json:"email,omitempty"`
	Active      bool          `gorm:"not null" json:"active"`
	LastLoginAt *time.Time    `json:"last_login_at,omitempty"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "principals" }

func (a Account) Principal() Principal {
	return Principal{ID: a.ID, Role: a.Role, TenantID: a.TenantID, Active: a.Active}
}

// ResolvedAccount is an account joined with the active flag of its tenant.
type ResolvedAccount struct {
	Account
	TenantActive *bool
}
