package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/config"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"github.com/smallbiznis/comptoir/internal/product/domain"
	stockdomain "github.com/smallbiznis/comptoir/internal/stock/domain"
	"github.com/smallbiznis/comptoir/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Authz  authorization.Service
	Audit  auditdomain.Recorder
	Ledger stockdomain.Ledger
	Ops    *config.OperationsConfigHolder
	Clock  clock.Clock
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	authz  authorization.Service
	audit  auditdomain.Recorder
	ledger stockdomain.Ledger
	ops    *config.OperationsConfigHolder
	clock  clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("product.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		authz:  p.Authz,
		audit:  p.Audit,
		ledger: p.Ledger,
		ops:    p.Ops,
		clock:  p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, actor identitydomain.Principal, req domain.CreateRequest) (*domain.Product, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectProduct, authorization.ActionCreate); err != nil {
		return nil, err
	}
	tenantID, err := authorization.TenantOf(actor)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if !req.Category.Valid() {
		return nil, domain.ErrInvalidCategory
	}
	if req.Price <= 0 {
		return nil, domain.ErrInvalidPrice
	}
	if req.MinStock < 0 {
		return nil, domain.ErrInvalidMinStock
	}
	threshold := s.ops.Get().Stock.DefaultThreshold
	if req.AlertThreshold != nil {
		if *req.AlertThreshold < 0 {
			return nil, stockdomain.ErrInvalidThreshold
		}
		threshold = *req.AlertThreshold
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	product := &domain.Product{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Name:      name,
		Category:  req.Category,
		Price:     req.Price,
		MinStock:  req.MinStock,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, product); err != nil {
			return db.UniqueAs(err, "name", domain.ErrNameTaken.Rule)
		}
		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &tenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Created(auditdomain.EntityProduct),
			Entity:   auditdomain.EntityProduct,
			EntityID: product.ID.String(),
			After:    product,
		}); err != nil {
			return err
		}
		_, err := s.ledger.CreateLevel(ctx, tx, tenantID, product.ID, threshold, actor.ActorID())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product created",
		zap.String("product_id", product.ID.String()),
		zap.String("tenant_id", tenantID.String()),
	)
	return product, nil
}

func (s *Service) Get(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*domain.Product, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectProduct) {
		return nil, domain.ErrProductNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, authorization.Scope(actor), id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrProductNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, actor identitydomain.Principal, req domain.ListRequest) ([]domain.Product, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectProduct) {
		return []domain.Product{}, nil
	}
	if req.Category != "" && !req.Category.Valid() {
		return nil, domain.ErrInvalidCategory
	}
	filter := domain.ListRequest{
		Name:     strings.ToLower(strings.TrimSpace(req.Name)),
		Category: req.Category,
		Active:   req.Active,
	}
	items, err := s.repo.List(ctx, s.db, authorization.Scope(actor), filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Product{}
	}
	return items, nil
}

func (s *Service) Update(ctx context.Context, actor identitydomain.Principal, id snowflake.ID, req domain.UpdateRequest) (*domain.Product, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectProduct, authorization.ActionUpdate); err != nil {
		return nil, err
	}
	before, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	item := *before
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Category != nil {
		if !req.Category.Valid() {
			return nil, domain.ErrInvalidCategory
		}
		item.Category = *req.Category
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			return nil, domain.ErrInvalidPrice
		}
		item.Price = *req.Price
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return nil, domain.ErrInvalidMinStock
		}
		item.MinStock = *req.MinStock
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	item.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, &item); err != nil {
			return db.UniqueAs(err, "name", domain.ErrNameTaken.Rule)
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &item.TenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Updated(auditdomain.EntityProduct),
			Entity:   auditdomain.EntityProduct,
			EntityID: item.ID.String(),
			Before:   before,
			After:    item,
		})
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Service) Delete(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) error {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectProduct, authorization.ActionDelete); err != nil {
		return err
	}
	item, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}

	// The reference check shares the delete's transaction so a line written
	// in between cannot slip past it.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inUse, err := s.repo.InUse(ctx, tx, id)
		if err != nil {
			return err
		}
		if inUse {
			return domain.ErrProductInUse
		}
		if err := s.ledger.DeleteLevel(ctx, tx, item.TenantID, item.ID, actor.ActorID()); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, item.TenantID, item.ID); err != nil {
			return db.TranslateConstraint(err)
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &item.TenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Deleted(auditdomain.EntityProduct),
			Entity:   auditdomain.EntityProduct,
			EntityID: item.ID.String(),
			Before:   item,
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("product deleted",
		zap.String("product_id", item.ID.String()),
		zap.String("actor_id", actor.LogActor()),
	)
	return nil
}

// load fetches a product for mutation: foreign rows are forbidden, not hidden.
func (s *Service) load(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*domain.Product, error) {
	item, err := s.repo.FindByID(ctx, s.db, func(db *gorm.DB) *gorm.DB { return db }, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrProductNotFound
	}
	if err := authorization.RequireSameTenant(actor, item.TenantID); err != nil {
		return nil, err
	}
	return item, nil
}
