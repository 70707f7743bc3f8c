package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"github.com/smallbiznis/comptoir/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action   string     `form:"action"`
	Entity   string     `form:"entity"`
	EntityID string     `form:"entity_id"`
	From     *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To       *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// ActionRequest is the payload of the generic logging hook used by sign-in
// flows and other collaborators outside the core.
type ActionRequest struct {
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Before   any            `json:"before"`
	After    any            `json:"after"`
	Metadata map[string]any `json:"metadata"`
}

// Recorder writes trail entries inside the caller's transaction. A failed
// write fails the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

type Service interface {
	Recorder
	// RecordBestEffort writes entry in its own statement and only logs a
	// failure.
	RecordBestEffort(ctx context.Context, entry Entry)
	RecordAction(ctx context.Context, actor identitydomain.Principal, req ActionRequest) (*AuditLog, error)
	List(ctx context.Context, actor identitydomain.Principal, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidAction    = domainerr.Invalid("action", "required")
	ErrInvalidEntity    = domainerr.Invalid("entity", "required")
	ErrInvalidPageToken = domainerr.Invalid("page_token", "invalid_page_token")
	ErrInvalidTimeRange = domainerr.Wrap(domainerr.ErrInvalidRange, "invalid_time_range")
)
