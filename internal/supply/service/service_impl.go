package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	productdomain "github.com/smallbiznis/comptoir/internal/product/domain"
	"github.com/smallbiznis/comptoir/internal/sequence"
	stockdomain "github.com/smallbiznis/comptoir/internal/stock/domain"
	"github.com/smallbiznis/comptoir/internal/supply/domain"
	"github.com/smallbiznis/comptoir/pkg/db"
	"github.com/smallbiznis/comptoir/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Products productdomain.Repository
	Ledger   stockdomain.Ledger
	Sequence sequence.Generator
	Authz    authorization.Service
	Audit    auditdomain.Recorder
	Clock    clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	products productdomain.Repository
	ledger   stockdomain.Ledger
	sequence sequence.Generator
	authz    authorization.Service
	audit    auditdomain.Recorder
	clock    clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("supply.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		products: p.Products,
		ledger:   p.Ledger,
		sequence: p.Sequence,
		authz:    p.Authz,
		audit:    p.Audit,
		clock:    p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, actor identitydomain.Principal, req domain.CreateRequest) (*domain.CreateResult, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectSupply, authorization.ActionCreate); err != nil {
		return nil, err
	}
	tenantID, err := authorization.TenantOf(actor)
	if err != nil {
		return nil, err
	}

	supplier := strings.TrimSpace(req.Supplier)
	if supplier == "" {
		return nil, domain.ErrInvalidSupplier
	}
	if req.Date.IsZero() {
		return nil, domain.ErrInvalidDate
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyItems
	}
	for _, in := range req.Items {
		if in.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		if in.UnitCost < 0 {
			return nil, domain.ErrInvalidUnitCost
		}
	}
	for _, in := range req.Items {
		product, err := s.products.FindByID(ctx, s.db, tenantOnly(tenantID), in.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, domain.ErrInvalidProduct
		}
	}

	now := s.clock.Now()
	supply := &domain.Supply{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		Supplier:   supplier,
		SupplyDate: domain.Day(req.Date),
		ManagerID:  actor.ID,
		Note:       trimmedNote(req.Note),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, in := range req.Items {
		lineAmount, ok := money.Mul(in.Quantity, in.UnitCost)
		if !ok {
			return nil, domain.ErrAmountOverflow
		}
		item := domain.SupplyItem{
			ID:         s.genID.Generate(),
			SupplyID:   supply.ID,
			TenantID:   tenantID,
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			UnitCost:   in.UnitCost,
			LineAmount: lineAmount,
			CreatedAt:  now,
		}
		supply.Items = append(supply.Items, item)
		total, ok := money.Add(supply.TotalAmount, item.LineAmount)
		if !ok {
			return nil, domain.ErrAmountOverflow
		}
		supply.TotalAmount = total
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.sequence.Resolve(ctx, tx, tenantID, sequence.KindSupply, now, req.Number)
		if err != nil {
			return err
		}
		supply.Number = number
		if err := s.repo.Insert(ctx, tx, supply); err != nil {
			return db.UniqueAs(err, "number", domain.ErrNumberTaken.Rule)
		}
		for i := range supply.Items {
			item := &supply.Items[i]
			if err := s.repo.InsertItem(ctx, tx, item); err != nil {
				return db.TranslateConstraint(err)
			}
			unitCost := item.UnitCost
			if _, err := s.ledger.RecordMovement(ctx, tx, stockdomain.MovementInput{
				TenantID:      tenantID,
				ProductID:     item.ProductID,
				Direction:     stockdomain.DirectionIn,
				Quantity:      item.Quantity,
				UnitCost:      &unitCost,
				ReferenceKind: stockdomain.ReferenceSupply,
				Reference:     supply.Number,
				ActorID:       actor.ActorID(),
			}); err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &tenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Created(auditdomain.EntitySupply),
			Entity:   auditdomain.EntitySupply,
			EntityID: supply.ID.String(),
			After:    supply,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("supply created",
		zap.String("supply_id", supply.ID.String()),
		zap.String("number", supply.Number),
		zap.Int64("total_amount", supply.TotalAmount),
	)
	return &domain.CreateResult{SupplyID: supply.ID, Number: supply.Number, Total: supply.TotalAmount}, nil
}

func (s *Service) ListByPeriod(ctx context.Context, actor identitydomain.Principal, start, end time.Time) ([]domain.Supply, error) {
	from, to := domain.Day(start), domain.Day(end)
	if from.After(to) {
		return nil, domain.ErrInvalidRange
	}
	if !s.authz.CanRead(ctx, actor, authorization.ObjectSupply) {
		return []domain.Supply{}, nil
	}
	items, err := s.repo.ListByPeriod(ctx, s.db, authorization.Scope(actor), from, to)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Supply{}
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*domain.Supply, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectSupply) {
		return nil, domain.ErrSupplyNotFound
	}
	supply, err := s.repo.FindByID(ctx, s.db, authorization.Scope(actor), id)
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return nil, domain.ErrSupplyNotFound
	}
	supply.Items, err = s.repo.FindItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return supply, nil
}

func (s *Service) Update(ctx context.Context, actor identitydomain.Principal, id snowflake.ID, req domain.UpdateRequest) (*domain.Supply, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectSupply, authorization.ActionUpdate); err != nil {
		return nil, err
	}
	before, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	after := *before
	if req.Supplier != nil {
		supplier := strings.TrimSpace(*req.Supplier)
		if supplier == "" {
			return nil, domain.ErrInvalidSupplier
		}
		after.Supplier = supplier
	}
	if req.Date != nil {
		if req.Date.IsZero() {
			return nil, domain.ErrInvalidDate
		}
		after.SupplyDate = domain.Day(*req.Date)
	}
	if req.Note != nil {
		after.Note = trimmedNote(req.Note)
	}
	after.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateHeader(ctx, tx, &after); err != nil {
			return db.TranslateConstraint(err)
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &after.TenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Updated(auditdomain.EntitySupply),
			Entity:   auditdomain.EntitySupply,
			EntityID: after.ID.String(),
			Before:   before,
			After:    after,
		})
	})
	if err != nil {
		return nil, err
	}
	return &after, nil
}

func (s *Service) Delete(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) error {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectSupply, authorization.ActionDelete); err != nil {
		return err
	}
	supply, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range supply.Items {
			if _, err := s.ledger.RecordMovement(ctx, tx, stockdomain.MovementInput{
				TenantID:      supply.TenantID,
				ProductID:     item.ProductID,
				Direction:     stockdomain.DirectionOut,
				Quantity:      item.Quantity,
				ReferenceKind: stockdomain.ReferenceSupply,
				Reference:     supply.Number,
				ActorID:       actor.ActorID(),
			}); err != nil {
				return err
			}
		}
		if err := s.repo.Delete(ctx, tx, supply.TenantID, supply.ID); err != nil {
			return db.TranslateConstraint(err)
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &supply.TenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Deleted(auditdomain.EntitySupply),
			Entity:   auditdomain.EntitySupply,
			EntityID: supply.ID.String(),
			Before:   supply,
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("supply deleted",
		zap.String("supply_id", supply.ID.String()),
		zap.String("number", supply.Number),
		zap.String("actor_id", actor.LogActor()),
	)
	return nil
}

func (s *Service) load(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*domain.Supply, error) {
	supply, err := s.repo.FindByID(ctx, s.db, func(db *gorm.DB) *gorm.DB { return db }, id)
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return nil, domain.ErrSupplyNotFound
	}
	if err := authorization.RequireSameTenant(actor, supply.TenantID); err != nil {
		return nil, err
	}
	supply.Items, err = s.repo.FindItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return supply, nil
}

func trimmedNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func tenantOnly(tenantID snowflake.ID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}
