package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusSuspended SubscriptionStatus = "suspended"
)

// SubscriptionTerm is the length of one paid subscription period.
const SubscriptionTerm = 12

// Tenant is one restaurant account and the unit of data isolation. Its
// status only changes through the subscription lifecycle.
type Tenant struct {
	ID                     snowflake.ID       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name                   string             `gorm:"type:varchar(160);not null" json:"name"`
	Slug                   string             `gorm:"type:varchar(160);not null;uniqueIndex:uq_tenants_slug" json:"slug"`
	SubscriptionStatus     SubscriptionStatus `gorm:"type:varchar(16);not null;index" json:"subscription_status"`
	Active                 bool               `gorm:"not null" json:"active"`
	SubscriptionStart      time.Time          `gorm:"not null" json:"subscription_start"`
	SubscriptionEnd        time.Time          `gorm:"not null;index" json:"subscription_end"`
	LastPaymentAt          *time.Time         `json:"last_payment_at,omitempty"`
	LastPaymentConfirmedBy *snowflake.ID      `json:"last_payment_confirmed_by,omitempty"`
	SuspensionReason       *string            `gorm:"type:text" json:"suspension_reason,omitempty"`
	CreatedAt              time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// AddMonths adds n calendar months to t, clamping the day to the last day of
// the target month (Jan 31 + 1 month is Feb 28 or 29).
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()
	first := time.Date(year, month+time.Month(n), 1, hour, minute, sec, t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// ExpireOutcome describes what happened to one tenant during an expiry run.
type ExpireOutcome struct {
	TenantID        snowflake.ID `json:"tenant_id"`
	Name            string       `json:"name"`
	SubscriptionEnd time.Time    `json:"subscription_end"`
	Expired         bool         `json:"expired"`
	Error           string       `json:"error,omitempty"`
}

type ExpireResult struct {
	Processed int             `json:"processed"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Results   []ExpireOutcome `json:"results"`
}
