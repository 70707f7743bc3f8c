package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/comptoir/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/comptoir/internal/observability/metrics"
	"github.com/smallbiznis/comptoir/internal/payment/domain"
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
	Invoices invoicedomain.Repository
	Authz    authorization.Service
	Audit    auditdomain.Recorder
	Clock    clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	invoices invoicedomain.Repository
	authz    authorization.Service
	audit    auditdomain.Recorder
	clock    clock.Clock
	metrics  *obsmetrics.POSMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		invoices: p.Invoices,
		authz:    p.Authz,
		audit:    p.Audit,
		clock:    p.Clock,
		metrics:  obsmetrics.POS(),
	}
}

func (s *Service) Record(ctx context.Context, actor identitydomain.Principal, req domain.RecordRequest) (*domain.RecordResult, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectPayment, authorization.ActionCreate); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !req.Method.Valid() {
		return nil, domain.ErrInvalidMethod
	}
	tenantID, err := authorization.TenantOf(actor)
	if err != nil {
		return nil, err
	}

	var result domain.RecordResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := s.invoices.FindByID(ctx, tx, func(db *gorm.DB) *gorm.DB { return db }, req.InvoiceID)
		if err != nil {
			return err
		}
		if before == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if err := authorization.RequireSameTenant(actor, before.TenantID); err != nil {
			return err
		}

		now := s.clock.Now()
		applied, err := s.invoices.ApplyPayment(ctx, tx, tenantID, req.InvoiceID, req.Amount, now)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrOverpayment
		}

		payment := domain.Payment{
			ID:        s.genID.Generate(),
			TenantID:  tenantID,
			InvoiceID: req.InvoiceID,
			Amount:    req.Amount,
			Method:    req.Method,
			Reference: trimmed(req.Reference),
			ActorID:   actor.ID,
			CreatedAt: now,
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return db.TranslateConstraint(err)
		}

		after, err := s.invoices.FindByID(ctx, tx, func(db *gorm.DB) *gorm.DB { return db }, req.InvoiceID)
		if err != nil {
			return err
		}
		if after == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &tenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Created(auditdomain.EntityPayment),
			Entity:   auditdomain.EntityPayment,
			EntityID: payment.ID.String(),
			After:    payment,
		}); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &tenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Updated(auditdomain.EntityInvoice),
			Entity:   auditdomain.EntityInvoice,
			EntityID: after.ID.String(),
			Before:   before,
			After:    after,
			Metadata: map[string]any{"payment_id": payment.ID.String()},
		}); err != nil {
			return err
		}

		result = domain.RecordResult{Payment: payment, Invoice: *after}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePayment(string(req.Method), req.Amount)
	s.log.Info("payment recorded",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("invoice_id", result.Invoice.ID.String()),
		zap.Int64("amount", req.Amount),
		zap.String("status", string(result.Invoice.Status)),
	)
	return &result, nil
}

func (s *Service) List(ctx context.Context, actor identitydomain.Principal, invoiceID snowflake.ID) ([]domain.Payment, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectPayment) {
		return []domain.Payment{}, nil
	}
	items, err := s.repo.ListByInvoice(ctx, s.db, authorization.Scope(actor), invoiceID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Payment{}
	}
	return items, nil
}

func trimmed(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
