package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	obscontext "github.com/smallbiznis/comptoir/internal/observability/context"
	"github.com/smallbiznis/comptoir/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Authz authorization.Service
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	authz authorization.Service
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		authz: p.Authz,
		clock: p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	record, err := s.build(ctx, entry)
	if err != nil {
		return err
	}
	if tx == nil {
		tx = s.db
	}
	if err := s.repo.Insert(ctx, tx, record); err != nil {
		return fmt.Errorf("write audit log %s: %w", record.Action, err)
	}
	return nil
}

func (s *Service) RecordBestEffort(ctx context.Context, entry auditdomain.Entry) {
	if err := s.Record(ctx, s.db, entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", entry.Action),
			zap.String("entity", entry.Entity),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
	}
}

func (s *Service) RecordAction(ctx context.Context, actor identitydomain.Principal, req auditdomain.ActionRequest) (*auditdomain.AuditLog, error) {
	if !actor.Active {
		return nil, authorization.ErrInactive
	}
	entry := auditdomain.Entry{
		ActorID:  actor.ActorID(),
		Action:   req.Action,
		Entity:   req.Entity,
		EntityID: req.EntityID,
		Before:   req.Before,
		After:    req.After,
		Metadata: req.Metadata,
	}
	if tenantID, ok := actor.CurrentTenant(); ok {
		entry.TenantID = &tenantID
	}

	record, err := s.build(ctx, entry)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		s.log.Error("failed to write audit log",
			zap.String("action", record.Action),
			zap.String("actor_id", actor.LogActor()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("record audit action: %w", err)
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, actor identitydomain.Principal, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	empty := auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{}}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return empty, auditdomain.ErrInvalidTimeRange
	}
	if !s.authz.CanRead(ctx, actor, authorization.ObjectAuditLog) {
		return empty, nil
	}

	var cursor *auditdomain.AuditCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return empty, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := decoded.Time()
		if err != nil {
			return empty, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return empty, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.Limit(defaultPageSize, maxPageSize)
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Scope:    authorization.Scope(actor),
		Action:   req.Action,
		Entity:   req.Entity,
		EntityID: req.EntityID,
		From:     req.From,
		To:       req.To,
		Cursor:   cursor,
		Limit:    pageSize,
	})
	if err != nil {
		return empty, err
	}

	items, pageInfo, err := pagination.Page(items, pageSize, func(item *auditdomain.AuditLog) pagination.Cursor {
		return pagination.NewCursor(item.ID.String(), item.CreatedAt)
	})
	if err != nil {
		return empty, err
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func (s *Service) build(ctx context.Context, entry auditdomain.Entry) (*auditdomain.AuditLog, error) {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}
	entity := strings.TrimSpace(entry.Entity)
	if entity == "" {
		return nil, auditdomain.ErrInvalidEntity
	}

	before, err := snapshot(entry.Before)
	if err != nil {
		return nil, fmt.Errorf("marshal before state: %w", err)
	}
	after, err := snapshot(entry.After)
	if err != nil {
		return nil, fmt.Errorf("marshal after state: %w", err)
	}

	metadata := datatypes.JSONMap{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}

	record := &auditdomain.AuditLog{
		ID:          s.genID.Generate(),
		TenantID:    normalizeID(entry.TenantID),
		ActorID:     normalizeID(entry.ActorID),
		Action:      action,
		Entity:      entity,
		EntityID:    strings.TrimSpace(entry.EntityID),
		BeforeState: before,
		AfterState:  after,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if len(metadata) > 0 {
		record.Metadata = metadata
	}
	return record, nil
}

// snapshot marshals a state; nil and typed nil pointers become NULL.
func snapshot(value any) (datatypes.JSON, error) {
	if value == nil {
		return nil, nil
	}
	if raw, ok := value.(datatypes.JSON); ok {
		if len(raw) == 0 {
			return nil, nil
		}
		return raw, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return datatypes.JSON(b), nil
}

func normalizeID(id *snowflake.ID) *snowflake.ID {
	if id == nil || *id == 0 {
		return nil
	}
	value := *id
	return &value
}
