package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/config"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"github.com/smallbiznis/comptoir/internal/invoice/domain"
	orderdomain "github.com/smallbiznis/comptoir/internal/order/domain"
	"github.com/smallbiznis/comptoir/internal/sequence"
	"github.com/smallbiznis/comptoir/pkg/db"
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
	Orders   orderdomain.Repository
	Sequence sequence.Generator
	Authz    authorization.Service
	Audit    auditdomain.Recorder
	Ops      *config.OperationsConfigHolder
	Clock    clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	orders   orderdomain.Repository
	sequence sequence.Generator
	authz    authorization.Service
	audit    auditdomain.Recorder
	ops      *config.OperationsConfigHolder
	clock    clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invoice.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		orders:   p.Orders,
		sequence: p.Sequence,
		authz:    p.Authz,
		audit:    p.Audit,
		ops:      p.Ops,
		clock:    p.Clock,
	}
}

func (s *Service) Generate(ctx context.Context, actor identitydomain.Principal, req domain.GenerateRequest) (*domain.Invoice, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectInvoice, authorization.ActionCreate); err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, s.db, func(db *gorm.DB) *gorm.DB { return db }, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if err := authorization.RequireSameTenant(actor, order.TenantID); err != nil {
		return nil, err
	}
	if order.Status != orderdomain.StatusValidated {
		return nil, domain.ErrOrderNotBillable
	}
	existing, err := s.repo.FindByOrder(ctx, s.db, authorization.Scope(actor), order.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrInvoiceExists
	}

	now := s.clock.Now()
	invoice := &domain.Invoice{
		ID:              s.genID.Generate(),
		TenantID:        order.TenantID,
		OrderID:         order.ID,
		TotalAmount:     order.TotalAmount,
		AmountPaid:      0,
		RemainingAmount: order.TotalAmount,
		Status:          domain.StatusFor(order.TotalAmount, 0),
		GeneratedAt:     now,
		CreatedBy:       actor.ID,
		UpdatedAt:       now,
	}
	if invoice.Status == domain.InvoiceStatusPaid {
		invoice.PaidAt = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.sequence.Resolve(ctx, tx, order.TenantID, sequence.KindInvoice, now, req.Number)
		if err != nil {
			return err
		}
		invoice.Number = number
		inserted, err := s.repo.Insert(ctx, tx, invoice)
		if err != nil {
			return db.UniqueAs(err, "number", domain.ErrNumberTaken.Rule)
		}
		if !inserted {
			return domain.ErrInvoiceExists
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &invoice.TenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Created(auditdomain.EntityInvoice),
			Entity:   auditdomain.EntityInvoice,
			EntityID: invoice.ID.String(),
			After:    invoice,
			Metadata: map[string]any{"order_number": order.Number},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number),
		zap.String("order_id", order.ID.String()),
		zap.Int64("total_amount", invoice.TotalAmount),
	)
	return invoice, nil
}

func (s *Service) Get(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*domain.Invoice, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectInvoice) {
		return nil, domain.ErrInvoiceNotFound
	}
	invoice, err := s.repo.FindByID(ctx, s.db, authorization.Scope(actor), id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) GetByOrder(ctx context.Context, actor identitydomain.Principal, orderID snowflake.ID) (*domain.Invoice, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectInvoice) {
		return nil, domain.ErrInvoiceNotFound
	}
	invoice, err := s.repo.FindByOrder(ctx, s.db, authorization.Scope(actor), orderID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, actor identitydomain.Principal, req domain.ListRequest) ([]domain.Invoice, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectInvoice) {
		return []domain.Invoice{}, nil
	}
	switch req.Status {
	case "", domain.InvoiceStatusAwaitingPayment, domain.InvoiceStatusPartiallyPaid, domain.InvoiceStatusPaid:
	default:
		return nil, domain.ErrInvalidStatus
	}
	items, err := s.repo.List(ctx, s.db, authorization.Scope(actor), req)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Invoice{}
	}
	return items, nil
}

// Overdue lists unpaid invoices older than the configured minimum age,
// oldest first, each with its severity bucket.
func (s *Service) Overdue(ctx context.Context, actor identitydomain.Principal) ([]domain.OverdueInvoice, error) {
	result := make([]domain.OverdueInvoice, 0)
	if !s.authz.CanRead(ctx, actor, authorization.ObjectInvoice) {
		return result, nil
	}

	cfg := s.ops.Get().Overdue
	now := s.clock.Now()
	items, err := s.repo.ListUnpaidBefore(ctx, s.db, authorization.Scope(actor), now.Add(-cfg.MinAge))
	if err != nil {
		return nil, err
	}
	for _, invoice := range items {
		age := now.Sub(invoice.GeneratedAt)
		severity, ok := cfg.SeverityFor(age)
		if !ok {
			continue
		}
		result = append(result, domain.OverdueInvoice{
			Invoice:  invoice,
			Age:      age,
			AgeHours: int64(age / time.Hour),
			Severity: severity,
		})
	}
	return result, nil
}
