package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"github.com/smallbiznis/comptoir/internal/table/domain"
	"github.com/smallbiznis/comptoir/pkg/db"
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
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	authz authorization.Service
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("table.service"),
		genID: p.GenID,
		repo:  p.Repo,
		authz: p.Authz,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, actor identitydomain.Principal, req domain.CreateRequest) (*domain.Table, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTable, authorization.ActionCreate); err != nil {
		return nil, err
	}
	tenantID, err := authorization.TenantOf(actor)
	if err != nil {
		return nil, err
	}
	if req.Number <= 0 {
		return nil, domain.ErrInvalidNumber
	}
	if req.Seats < 0 {
		return nil, domain.ErrInvalidSeats
	}

	now := s.clock.Now()
	table := &domain.Table{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Number:    req.Number,
		Seats:     req.Seats,
		Status:    domain.StatusFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, table); err != nil {
		return nil, db.UniqueAs(err, "number", domain.ErrNumberTaken.Rule)
	}
	return table, nil
}

func (s *Service) Get(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*domain.Table, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectTable) {
		return nil, domain.ErrTableNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, authorization.Scope(actor), id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrTableNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, actor identitydomain.Principal, req domain.ListRequest) ([]domain.Table, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectTable) {
		return []domain.Table{}, nil
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	items, err := s.repo.List(ctx, s.db, authorization.Scope(actor), req)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Table{}
	}
	return items, nil
}

func (s *Service) Update(ctx context.Context, actor identitydomain.Principal, id snowflake.ID, req domain.UpdateRequest) (*domain.Table, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTable, authorization.ActionUpdate); err != nil {
		return nil, err
	}
	// Seats are part of the floor plan, which only managers and owners edit.
	if req.Seats != nil {
		if err := s.authz.Authorize(ctx, actor, authorization.ObjectTable, authorization.ActionCreate); err != nil {
			return nil, err
		}
	}
	item, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.Seats != nil {
		if *req.Seats < 0 {
			return nil, domain.ErrInvalidSeats
		}
		item.Seats = *req.Seats
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, domain.ErrInvalidStatus
		}
		item.Status = *req.Status
	}
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, db.TranslateConstraint(err)
	}
	return item, nil
}

func (s *Service) Delete(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) error {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTable, authorization.ActionDelete); err != nil {
		return err
	}
	item, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	inUse, err := s.repo.HasOrders(ctx, s.db, id)
	if err != nil {
		return err
	}
	if inUse {
		return domain.ErrTableInUse
	}
	if err := s.repo.Delete(ctx, s.db, item.TenantID, item.ID); err != nil {
		return db.TranslateConstraint(err)
	}
	s.log.Info("table deleted",
		zap.String("table_id", item.ID.String()),
		zap.String("actor_id", actor.LogActor()),
	)
	return nil
}

func (s *Service) load(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*domain.Table, error) {
	item, err := s.repo.FindByID(ctx, s.db, func(db *gorm.DB) *gorm.DB { return db }, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrTableNotFound
	}
	if err := authorization.RequireSameTenant(actor, item.TenantID); err != nil {
		return nil, err
	}
	return item, nil
}
