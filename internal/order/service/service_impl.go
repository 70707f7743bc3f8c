package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	obsmetrics "github.com/smallbiznis/comptoir/internal/observability/metrics"
	"github.com/smallbiznis/comptoir/internal/order/domain"
	productdomain "github.com/smallbiznis/comptoir/internal/product/domain"
	"github.com/smallbiznis/comptoir/internal/sequence"
	stockdomain "github.com/smallbiznis/comptoir/internal/stock/domain"
	tabledomain "github.com/smallbiznis/comptoir/internal/table/domain"
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
	Tables   tabledomain.Repository
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
	tables   tabledomain.Repository
	ledger   stockdomain.Ledger
	sequence sequence.Generator
	authz    authorization.Service
	audit    auditdomain.Recorder
	clock    clock.Clock
	metrics  *obsmetrics.POSMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		products: p.Products,
		tables:   p.Tables,
		ledger:   p.Ledger,
		sequence: p.Sequence,
		authz:    p.Authz,
		audit:    p.Audit,
		clock:    p.Clock,
		metrics:  obsmetrics.POS(),
	}
}

func (s *Service) Create(ctx context.Context, actor identitydomain.Principal, req domain.CreateRequest) (*domain.Order, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectOrder, authorization.ActionCreate); err != nil {
		return nil, err
	}
	tenantID, err := authorization.TenantOf(actor)
	if err != nil {
		return nil, err
	}
	for _, in := range req.Items {
		if in.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
	}

	tenantScope := tenantOnly(tenantID)
	table, err := s.tables.FindByID(ctx, s.db, tenantScope, req.TableID)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, domain.ErrInvalidTable
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		TableID:   table.ID,
		ServerID:  actor.ID,
		Status:    domain.StatusPending,
		Note:      trimmedNote(req.Note),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, in := range req.Items {
		item, err := s.newItem(ctx, s.db, order, in, now)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, *item)
		total, ok := money.Add(order.TotalAmount, item.LineAmount)
		if !ok {
			return nil, domain.ErrAmountOverflow
		}
		order.TotalAmount = total
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.sequence.Resolve(ctx, tx, tenantID, sequence.KindOrder, now, req.Number)
		if err != nil {
			return err
		}
		order.Number = number
		if err := s.repo.Insert(ctx, tx, order); err != nil {
			return db.UniqueAs(err, "number", domain.ErrNumberTaken.Rule)
		}
		for i := range order.Items {
			if err := s.repo.InsertItem(ctx, tx, &order.Items[i]); err != nil {
				return db.TranslateConstraint(err)
			}
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &tenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Created(auditdomain.EntityOrder),
			Entity:   auditdomain.EntityOrder,
			EntityID: order.ID.String(),
			After:    order,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("number", order.Number),
		zap.Int("items", len(order.Items)),
	)
	return order, nil
}

// newItem snapshots the product's current name and price into a line.
func (s *Service) newItem(ctx context.Context, tx *gorm.DB, order *domain.Order, in domain.ItemInput, now time.Time) (*domain.OrderItem, error) {
	if in.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	product, err := s.products.FindByID(ctx, tx, tenantOnly(order.TenantID), in.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrInvalidProduct
	}
	if !product.Active {
		return nil, domain.ErrProductInactive
	}
	lineAmount, ok := money.Mul(in.Quantity, product.Price)
	if !ok {
		return nil, domain.ErrAmountOverflow
	}
	return &domain.OrderItem{
		ID:          s.genID.Generate(),
		OrderID:     order.ID,
		TenantID:    order.TenantID,
		ProductID:   product.ID,
		ProductName: product.Name,
		UnitPrice:   product.Price,
		Quantity:    in.Quantity,
		LineAmount:  lineAmount,
		CreatedAt:   now,
	}, nil
}

func (s *Service) AddItem(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID, in domain.ItemInput) (*domain.Order, error) {
	before, err := s.loadForEdit(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	item, err := s.newItem(ctx, s.db, before, in, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if _, ok := money.Add(before.TotalAmount, item.LineAmount); !ok {
		return nil, domain.ErrAmountOverflow
	}
	return s.editItems(ctx, actor, before, func(tx *gorm.DB) error {
		if err := s.repo.InsertItem(ctx, tx, item); err != nil {
			return db.TranslateConstraint(err)
		}
		return nil
	})
}

func (s *Service) UpdateItemQuantity(ctx context.Context, actor identitydomain.Principal, orderID, itemID snowflake.ID, quantity int64) (*domain.Order, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	before, err := s.loadForEdit(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindItem(ctx, s.db, orderID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrItemNotFound
	}
	lineAmount, ok := money.Mul(quantity, item.UnitPrice)
	if !ok {
		return nil, domain.ErrAmountOverflow
	}
	if _, ok := money.Add(before.TotalAmount-item.LineAmount, lineAmount); !ok {
		return nil, domain.ErrAmountOverflow
	}
	item.Quantity = quantity
	item.LineAmount = lineAmount
	return s.editItems(ctx, actor, before, func(tx *gorm.DB) error {
		if err := s.repo.UpdateItemQuantity(ctx, tx, item); err != nil {
			return db.TranslateConstraint(err)
		}
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, actor identitydomain.Principal, orderID, itemID snowflake.ID) (*domain.Order, error) {
	before, err := s.loadForEdit(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindItem(ctx, s.db, orderID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrItemNotFound
	}
	return s.editItems(ctx, actor, before, func(tx *gorm.DB) error {
		return s.repo.DeleteItem(ctx, tx, orderID, itemID)
	})
}

// editItems applies change and recomputes the total. The recompute only
// matches a pending order, so an edit racing a validation rolls back.
func (s *Service) editItems(ctx context.Context, actor identitydomain.Principal, before *domain.Order, change func(tx *gorm.DB) error) (*domain.Order, error) {
	var after *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := change(tx); err != nil {
			return err
		}
		ok, err := s.repo.RecomputeTotal(ctx, tx, before.ID, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotPending
		}
		after, err = s.withItems(ctx, tx, before.ID)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &before.TenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Updated(auditdomain.EntityOrder),
			Entity:   auditdomain.EntityOrder,
			EntityID: before.ID.String(),
			Before:   before,
			After:    after,
		})
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (s *Service) Validate(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) (*domain.Order, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectOrder, authorization.ActionOrderValidate); err != nil {
		return nil, err
	}
	before, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if before.Status != domain.StatusPending {
		return nil, domain.ErrNotPending
	}
	if len(before.Items) == 0 {
		return nil, domain.ErrOrderEmpty
	}

	var after *domain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		ok, err := s.repo.MarkValidated(ctx, tx, orderID, actor.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotPending
		}

		items, err := s.repo.FindItems(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrOrderEmpty
		}
		for _, item := range items {
			if _, err := s.ledger.RecordMovement(ctx, tx, stockdomain.MovementInput{
				TenantID:      before.TenantID,
				ProductID:     item.ProductID,
				Direction:     stockdomain.DirectionOut,
				Quantity:      item.Quantity,
				ReferenceKind: stockdomain.ReferenceOrder,
				Reference:     before.Number,
				ActorID:       actor.ActorID(),
			}); err != nil {
				return err
			}
		}

		if err := s.tables.SetStatus(ctx, tx, before.TenantID, before.TableID, tabledomain.StatusOccupied, now); err != nil {
			return err
		}

		after, err = s.withItems(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &before.TenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Updated(auditdomain.EntityOrder),
			Entity:   auditdomain.EntityOrder,
			EntityID: orderID.String(),
			Before:   before,
			After:    after,
			Metadata: map[string]any{"transition": "validate"},
		})
	})
	if err != nil {
		s.metrics.IncOrderRejected(rejectReason(err))
		return nil, err
	}

	s.metrics.IncOrderValidated()
	s.log.Info("order validated",
		zap.String("order_id", orderID.String()),
		zap.String("number", before.Number),
		zap.Int64("total_amount", after.TotalAmount),
		zap.String("actor_id", actor.LogActor()),
	)
	return after, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domainerr.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domainerr.ErrInvalidOrderState):
		return "invalid_state"
	case errors.Is(err, domainerr.ErrValidation):
		return "validation"
	default:
		return "error"
	}
}

func (s *Service) Cancel(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) (*domain.Order, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectOrder, authorization.ActionOrderCancel); err != nil {
		return nil, err
	}
	before, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, before); err != nil {
		return nil, err
	}
	if before.Status != domain.StatusPending {
		return nil, domain.ErrNotPending
	}

	var after *domain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.MarkCancelled(ctx, tx, orderID, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotPending
		}
		after, err = s.withItems(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &before.TenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Updated(auditdomain.EntityOrder),
			Entity:   auditdomain.EntityOrder,
			EntityID: orderID.String(),
			Before:   before,
			After:    after,
			Metadata: map[string]any{"transition": "cancel"},
		})
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (s *Service) Delete(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) error {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectOrder, authorization.ActionDelete); err != nil {
		return err
	}
	before, err := s.load(ctx, actor, orderID)
	if err != nil {
		return err
	}
	if before.ServerID != actor.ID {
		return domain.ErrNotOwner
	}
	if before.Status != domain.StatusPending {
		return domain.ErrNotPending
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.DeletePending(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotPending
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &before.TenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Deleted(auditdomain.EntityOrder),
			Entity:   auditdomain.EntityOrder,
			EntityID: orderID.String(),
			Before:   before,
		})
	})
}

func (s *Service) Get(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) (*domain.Order, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectOrder) {
		return nil, domain.ErrOrderNotFound
	}
	order, err := s.repo.FindByID(ctx, s.db, readScope(actor), orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	order.Items, err = s.repo.FindItems(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, actor identitydomain.Principal, req domain.ListRequest) ([]domain.Order, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectOrder) {
		return []domain.Order{}, nil
	}
	if req.Status != "" && req.Status != domain.StatusPending && req.Status != domain.StatusValidated && req.Status != domain.StatusCancelled {
		return nil, domain.ErrInvalidStatus
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return nil, domain.ErrInvalidRange
	}
	items, err := s.repo.List(ctx, s.db, readScope(actor), req)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Order{}
	}
	return items, nil
}

// load fetches an order for mutation with its items. Foreign orders are
// forbidden rather than hidden.
func (s *Service) load(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, unscoped, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if err := authorization.RequireSameTenant(actor, order.TenantID); err != nil {
		return nil, err
	}
	order.Items, err = s.repo.FindItems(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) loadForEdit(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) (*domain.Order, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectOrder, authorization.ActionUpdate); err != nil {
		return nil, err
	}
	order, err := s.load(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, order); err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPending {
		return nil, domain.ErrNotPending
	}
	return order, nil
}

func (s *Service) withItems(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, tx, unscoped, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	order.Items, err = s.repo.FindItems(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// requireOwner lets servers touch only the orders they opened.
func requireOwner(actor identitydomain.Principal, order *domain.Order) error {
	if actor.CurrentRole() == identitydomain.RoleServer && order.ServerID != actor.ID {
		return domain.ErrNotOwner
	}
	return nil
}

// readScope limits servers to their own orders and everyone else to the
// tenant.
func readScope(actor identitydomain.Principal) func(*gorm.DB) *gorm.DB {
	scope := authorization.Scope(actor)
	if actor.CurrentRole() != identitydomain.RoleServer {
		return scope
	}
	return func(db *gorm.DB) *gorm.DB {
		return scope(db).Where("server_id = ?", actor.ID)
	}
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

func unscoped(db *gorm.DB) *gorm.DB { return db }
