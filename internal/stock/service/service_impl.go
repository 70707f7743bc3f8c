package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	obsmetrics "github.com/smallbiznis/comptoir/internal/observability/metrics"
	"github.com/smallbiznis/comptoir/internal/stock/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Authz authorization.Service
	Audit auditdomain.Recorder
	Clock clock.Clock
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	authz   authorization.Service
	audit   auditdomain.Recorder
	clock   clock.Clock
	metrics *obsmetrics.POSMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("stock.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		authz:   p.Authz,
		audit:   p.Audit,
		clock:   p.Clock,
		metrics: obsmetrics.POS(),
	}
}

func (s *Service) RecordMovement(ctx context.Context, tx *gorm.DB, in domain.MovementInput) (*domain.Movement, error) {
	if err := validateMovement(in); err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(in.Reference)
	now := s.clock.Now()

	var (
		applied bool
		err     error
	)
	switch in.Direction {
	case domain.DirectionOut:
		applied, err = s.repo.Deduct(ctx, tx, in.TenantID, in.ProductID, in.Quantity, now)
	default:
		applied, err = s.repo.Add(ctx, tx, in.TenantID, in.ProductID, in.Quantity, now)
	}
	if err != nil {
		return nil, err
	}
	if !applied {
		level, err := s.repo.FindLevel(ctx, tx, in.TenantID, in.ProductID)
		if err != nil {
			return nil, err
		}
		if level == nil {
			return nil, domain.ErrLevelNotFound
		}
		s.metrics.IncInsufficientStock()
		return nil, fmt.Errorf("product %s needs %d, has %d: %w",
			in.ProductID, in.Quantity, level.Available, domain.ErrInsufficientStock)
	}

	after, err := s.repo.FindLevel(ctx, tx, in.TenantID, in.ProductID)
	if err != nil {
		return nil, err
	}
	if after == nil {
		return nil, domain.ErrLevelNotFound
	}
	before := *after
	if in.Direction == domain.DirectionOut {
		before.Available += in.Quantity
	} else {
		before.Available -= in.Quantity
	}

	movement := &domain.Movement{
		ID:            s.genID.Generate(),
		TenantID:      in.TenantID,
		ProductID:     in.ProductID,
		Direction:     in.Direction,
		Quantity:      in.Quantity,
		UnitCost:      in.UnitCost,
		Reference:     reference,
		ReferenceKind: in.ReferenceKind,
		ActorID:       in.ActorID,
		CreatedAt:     now,
	}
	if err := s.repo.InsertMovement(ctx, tx, movement); err != nil {
		return nil, err
	}

	tenantID := in.TenantID
	if err := s.audit.Record(ctx, tx, auditdomain.Entry{
		TenantID: &tenantID,
		ActorID:  in.ActorID,
		Action:   auditdomain.Created(auditdomain.EntityStockMovement),
		Entity:   auditdomain.EntityStockMovement,
		EntityID: movement.ID.String(),
		After:    movement,
	}); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, tx, auditdomain.Entry{
		TenantID: &tenantID,
		ActorID:  in.ActorID,
		Action:   auditdomain.Updated(auditdomain.EntityStockLevel),
		Entity:   auditdomain.EntityStockLevel,
		EntityID: in.ProductID.String(),
		Before:   before,
		After:    after,
		Metadata: map[string]any{"reference": reference, "direction": string(in.Direction)},
	}); err != nil {
		return nil, err
	}

	s.metrics.IncStockMovement(string(in.Direction), string(in.ReferenceKind))
	return movement, nil
}

func validateMovement(in domain.MovementInput) error {
	if in.TenantID == 0 {
		return authorization.ErrNoTenant
	}
	if in.ProductID == 0 {
		return domain.ErrInvalidProduct
	}
	if in.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if !in.Direction.Valid() {
		return domain.ErrInvalidDirection
	}
	if !in.ReferenceKind.Valid() {
		return domain.ErrInvalidRefKind
	}
	if strings.TrimSpace(in.Reference) == "" {
		return domain.ErrInvalidReference
	}
	return nil
}

func (s *Service) CreateLevel(ctx context.Context, tx *gorm.DB, tenantID, productID snowflake.ID, threshold int64, actorID *snowflake.ID) (*domain.Level, error) {
	if threshold < 0 {
		return nil, domain.ErrInvalidThreshold
	}
	level := &domain.Level{
		ProductID:      productID,
		TenantID:       tenantID,
		Available:      0,
		AlertThreshold: threshold,
		UpdatedAt:      s.clock.Now(),
	}
	if err := s.repo.InsertLevel(ctx, tx, level); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, tx, auditdomain.Entry{
		TenantID: &tenantID,
		ActorID:  actorID,
		Action:   auditdomain.Created(auditdomain.EntityStockLevel),
		Entity:   auditdomain.EntityStockLevel,
		EntityID: productID.String(),
		After:    level,
	}); err != nil {
		return nil, err
	}
	return level, nil
}

func (s *Service) DeleteLevel(ctx context.Context, tx *gorm.DB, tenantID, productID snowflake.ID, actorID *snowflake.ID) error {
	level, err := s.repo.FindLevel(ctx, tx, tenantID, productID)
	if err != nil {
		return err
	}
	if level == nil {
		return nil
	}
	if err := s.repo.DeleteLevel(ctx, tx, tenantID, productID); err != nil {
		return err
	}
	return s.audit.Record(ctx, tx, auditdomain.Entry{
		TenantID: &tenantID,
		ActorID:  actorID,
		Action:   auditdomain.Deleted(auditdomain.EntityStockLevel),
		Entity:   auditdomain.EntityStockLevel,
		EntityID: productID.String(),
		Before:   level,
	})
}

func (s *Service) ListLevels(ctx context.Context, actor identitydomain.Principal) ([]domain.LevelView, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectStock) {
		return []domain.LevelView{}, nil
	}
	items, err := s.repo.ListLevels(ctx, s.db, authorization.ScopeColumn(actor, "l.tenant_id"))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.LevelView{}
	}
	return items, nil
}

func (s *Service) GetLevel(ctx context.Context, actor identitydomain.Principal, productID snowflake.ID) (*domain.LevelView, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectStock) {
		return nil, domain.ErrLevelNotFound
	}
	item, err := s.repo.GetLevelView(ctx, s.db, authorization.ScopeColumn(actor, "l.tenant_id"), productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrLevelNotFound
	}
	return item, nil
}

func (s *Service) ListMovements(ctx context.Context, actor identitydomain.Principal, productID snowflake.ID, filter domain.MovementFilter) ([]domain.Movement, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectStock) {
		return []domain.Movement{}, nil
	}
	if filter.Direction != "" && !filter.Direction.Valid() {
		return nil, domain.ErrInvalidDirection
	}
	items, err := s.repo.ListMovements(ctx, s.db, authorization.Scope(actor), productID, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Movement{}
	}
	return items, nil
}

// Alerts lists products at or below their threshold, which is the larger of
// the level's alert threshold and the product's minimum stock.
func (s *Service) Alerts(ctx context.Context, actor identitydomain.Principal) ([]domain.Alert, error) {
	levels, err := s.ListLevels(ctx, actor)
	if err != nil {
		return nil, err
	}
	alerts := make([]domain.Alert, 0)
	for _, level := range levels {
		if !level.Active {
			continue
		}
		threshold := level.AlertThreshold
		if level.MinStock > threshold {
			threshold = level.MinStock
		}
		if level.Available > threshold {
			continue
		}
		severity := domain.AlertLow
		if level.Available == 0 {
			severity = domain.AlertOutOfStock
		}
		alerts = append(alerts, domain.Alert{LevelView: level, Threshold: threshold, Severity: severity})
	}
	return alerts, nil
}

func (s *Service) SetAlertThreshold(ctx context.Context, actor identitydomain.Principal, productID snowflake.ID, threshold int64) (*domain.Level, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectStock, authorization.ActionUpdate); err != nil {
		return nil, err
	}
	if threshold < 0 {
		return nil, domain.ErrInvalidThreshold
	}
	view, err := s.repo.GetLevelView(ctx, s.db, unscoped, productID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, domain.ErrLevelNotFound
	}
	if err := authorization.RequireSameTenant(actor, view.TenantID); err != nil {
		return nil, err
	}
	tenantID := view.TenantID

	var updated *domain.Level
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := s.repo.FindLevel(ctx, tx, tenantID, productID)
		if err != nil {
			return err
		}
		if before == nil {
			return domain.ErrLevelNotFound
		}
		now := s.clock.Now()
		ok, err := s.repo.SetThreshold(ctx, tx, tenantID, productID, threshold, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrLevelNotFound
		}
		after := *before
		after.AlertThreshold = threshold
		after.UpdatedAt = now
		updated = &after

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &tenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Updated(auditdomain.EntityStockLevel),
			Entity:   auditdomain.EntityStockLevel,
			EntityID: productID.String(),
			Before:   before,
			After:    after,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func unscoped(db *gorm.DB) *gorm.DB { return db }

func (s *Service) Reconcile(ctx context.Context, actor identitydomain.Principal, productID snowflake.ID) (*domain.ReconcileResult, error) {
	level, err := s.GetLevel(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	totalIn, totalOut, err := s.repo.Totals(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	result := &domain.ReconcileResult{
		ProductID: productID,
		Available: level.Available,
		TotalIn:   totalIn,
		TotalOut:  totalOut,
		Balanced:  level.Available == totalIn-totalOut,
	}
	if !result.Balanced {
		s.log.Warn("stock ledger out of balance",
			zap.String("product_id", productID.String()),
			zap.Int64("available", level.Available),
			zap.Int64("total_in", totalIn),
			zap.Int64("total_out", totalOut),
		)
	}
	return result, nil
}
