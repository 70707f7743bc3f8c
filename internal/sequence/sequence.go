// Package sequence issues human-readable business numbers of the form
// PREFIX-YYYYMMDD-NNN, one counter per tenant, kind and calendar day.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Kind string

const (
	KindOrder   Kind = "order"
	KindSupply  Kind = "supply"
	KindInvoice Kind = "invoice"
)

var prefixes = map[Kind]string{
	KindOrder:   "CMD",
	KindSupply:  "RAV",
	KindInvoice: "FACT",
}

func (k Kind) Prefix() string {
	return prefixes[k]
}

// BusinessSequence is the counter row of one tenant, kind and day.
type BusinessSequence struct {
	TenantID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Kind      Kind         `gorm:"primaryKey;type:varchar(16)"`
	Day       string       `gorm:"primaryKey;type:varchar(8)"`
	LastValue int64        `gorm:"not null"`
}

func (BusinessSequence) TableName() string { return "business_sequences" }

var ErrUnknownKind = domainerr.Invalid("kind", "unknown_sequence_kind")

const dayLayout = "20060102"

const nextValueSQL = `INSERT INTO business_sequences (tenant_id, kind, day, last_value) VALUES (?, ?, ?, 1) ` +
	`ON CONFLICT (tenant_id, kind, day) DO UPDATE SET last_value = business_sequences.last_value + 1 ` +
	`RETURNING last_value`

// Generator hands out business numbers inside the caller's transaction, so
// a rolled back operation does not consume a number.
type Generator interface {
	Next(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, kind Kind, at time.Time) (string, error)
	// Resolve returns override untouched when it is not blank and a fresh
	// number otherwise.
	Resolve(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, kind Kind, at time.Time, override string) (string, error)
}

type Params struct {
	fx.In

	Config config.Config
}

type generator struct {
	loc *time.Location
}

func NewGenerator(p Params) Generator {
	return New(p.Config.Location())
}

// New returns a generator computing calendar days in loc.
func New(loc *time.Location) Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &generator{loc: loc}
}

func (g *generator) Next(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, kind Kind, at time.Time) (string, error) {
	prefix := kind.Prefix()
	if prefix == "" {
		return "", ErrUnknownKind
	}
	if tenantID == 0 {
		return "", domainerr.Invalid("tenant_id", "required")
	}

	day := at.In(g.loc).Format(dayLayout)
	var value int64
	if err := tx.WithContext(ctx).Raw(nextValueSQL, tenantID, kind, day).Scan(&value).Error; err != nil {
		return "", fmt.Errorf("next %s number: %w", kind, err)
	}
	if value <= 0 {
		return "", fmt.Errorf("next %s number: counter returned %d", kind, value)
	}
	return Format(prefix, day, value), nil
}

func (g *generator) Resolve(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, kind Kind, at time.Time, override string) (string, error) {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed, nil
	}
	return g.Next(ctx, tx, tenantID, kind, at)
}

// Format renders a number; values past 999 keep all their digits.
func Format(prefix, day string, value int64) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, day, value)
}
