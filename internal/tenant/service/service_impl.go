package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	obsmetrics "github.com/smallbiznis/comptoir/internal/observability/metrics"
	"github.com/smallbiznis/comptoir/internal/tenant/domain"
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
	Authz    authorization.Service
	Audit    auditdomain.Service
	Identity identitydomain.Service
	Clock    clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	authz    authorization.Service
	audit    auditdomain.Service
	identity identitydomain.Service
	clock    clock.Clock
	metrics  *obsmetrics.POSMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tenant.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		authz:    p.Authz,
		audit:    p.Audit,
		identity: p.Identity,
		clock:    p.Clock,
		metrics:  obsmetrics.POS(),
	}
}

func (s *Service) Create(ctx context.Context, actor identitydomain.Principal, req domain.CreateRequest) (*domain.Tenant, error) {
	if err := s.requireAdmin(ctx, actor, authorization.ActionCreate); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if slug.Make(name) == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	start := now
	if req.Start != nil && !req.Start.IsZero() {
		start = req.Start.UTC()
	}
	tenant := domain.Tenant{
		ID:                 s.genID.Generate(),
		Name:               name,
		Slug:               slug.Make(name),
		SubscriptionStatus: domain.StatusActive,
		Active:             true,
		SubscriptionStart:  start,
		SubscriptionEnd:    domain.AddMonths(start, domain.SubscriptionTerm),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &tenant); err != nil {
			return db.UniqueAs(err, "name", "slug_taken")
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &tenant.ID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.ActionEstablishmentCreated,
			Entity:   auditdomain.EntityTenant,
			EntityID: tenant.ID.String(),
			After:    tenant,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug),
		zap.Time("subscription_end", tenant.SubscriptionEnd),
	)
	return &tenant, nil
}

func (s *Service) Get(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*domain.Tenant, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectTenant) || !authorization.CanSee(actor, id) {
		return nil, domain.ErrTenantNotFound
	}
	tenant, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}
	return tenant, nil
}

func (s *Service) List(ctx context.Context, actor identitydomain.Principal) ([]domain.Tenant, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectTenant) {
		return []domain.Tenant{}, nil
	}
	items, err := s.repo.List(ctx, s.db, authorization.ScopeColumn(actor, "id"))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Tenant{}
	}
	return items, nil
}

func (s *Service) Update(ctx context.Context, actor identitydomain.Principal, id snowflake.ID, req domain.UpdateRequest) (*domain.Tenant, error) {
	if err := s.requireAdmin(ctx, actor, authorization.ActionUpdate); err != nil {
		return nil, err
	}
	before, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name == nil {
		return before, nil
	}
	name := strings.TrimSpace(*req.Name)
	if slug.Make(name) == "" {
		return nil, domain.ErrInvalidName
	}

	var after *domain.Tenant
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateName(ctx, tx, id, name, slug.Make(name), s.clock.Now()); err != nil {
			return db.UniqueAs(err, "name", "slug_taken")
		}
		after, err = s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &id,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Updated(auditdomain.EntityTenant),
			Entity:   auditdomain.EntityTenant,
			EntityID: id.String(),
			Before:   before,
			After:    after,
		})
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (s *Service) Delete(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) error {
	if err := s.requireAdmin(ctx, actor, authorization.ActionDelete); err != nil {
		return err
	}
	before, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	dependents, err := s.repo.CountDependents(ctx, s.db, id)
	if err != nil {
		return err
	}
	if dependents > 0 {
		return domain.ErrHasDependents
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return db.TranslateConstraint(err)
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Deleted(auditdomain.EntityTenant),
			Entity:   auditdomain.EntityTenant,
			EntityID: id.String(),
			Before:   before,
		})
	})
}

func (s *Service) ConfirmPayment(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*domain.Tenant, error) {
	if err := s.requireAdmin(ctx, actor, authorization.ActionTenantConfirmPayment); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, auditdomain.ActionPaymentConfirmed, nil, func(t *domain.Tenant, now time.Time) error {
		t.SubscriptionEnd = domain.AddMonths(t.SubscriptionEnd, domain.SubscriptionTerm)
		t.SubscriptionStatus = domain.StatusActive
		t.Active = true
		t.SuspensionReason = nil
		t.LastPaymentAt = &now
		confirmedBy := actor.ID
		t.LastPaymentConfirmedBy = &confirmedBy
		return nil
	})
}

func (s *Service) Suspend(ctx context.Context, actor identitydomain.Principal, id snowflake.ID, reason string) (*domain.Tenant, error) {
	if err := s.requireAdmin(ctx, actor, authorization.ActionTenantSuspend); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	metadata := map[string]any{"reason": reason}
	return s.transition(ctx, actor, id, auditdomain.ActionEstablishmentSuspended, metadata, func(t *domain.Tenant, now time.Time) error {
		t.SubscriptionStatus = domain.StatusSuspended
		t.Active = false
		if reason != "" {
			t.SuspensionReason = &reason
		} else {
			t.SuspensionReason = nil
		}
		return nil
	})
}

func (s *Service) Reactivate(ctx context.Context, actor identitydomain.Principal, id snowflake.ID) (*domain.Tenant, error) {
	if err := s.requireAdmin(ctx, actor, authorization.ActionTenantReactivate); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, auditdomain.ActionEstablishmentReactivated, nil, func(t *domain.Tenant, now time.Time) error {
		if t.SubscriptionStatus != domain.StatusSuspended {
			return domain.ErrNotSuspended
		}
		if !t.SubscriptionEnd.After(now) {
			return domain.ErrCannotReactivate
		}
		t.SubscriptionStatus = domain.StatusActive
		t.Active = true
		t.SuspensionReason = nil
		return nil
	})
}

// transition applies one lifecycle change under a row re-read inside the
// transaction, then drops cached principals of the tenant.
func (s *Service) transition(
	ctx context.Context,
	actor identitydomain.Principal,
	id snowflake.ID,
	action string,
	metadata map[string]any,
	apply func(t *domain.Tenant, now time.Time) error,
) (*domain.Tenant, error) {
	var after domain.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if before == nil {
			return domain.ErrTenantNotFound
		}

		now := s.clock.Now()
		after = *before
		if err := apply(&after, now); err != nil {
			return err
		}
		after.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, &after); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &id,
			ActorID:  actor.ActorID(),
			Action:   action,
			Entity:   auditdomain.EntityTenant,
			EntityID: id.String(),
			Before:   before,
			After:    after,
			Metadata: metadata,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.log.Info("tenant status changed",
		zap.String("tenant_id", id.String()),
		zap.String("action", action),
		zap.String("status", string(after.SubscriptionStatus)),
		zap.Time("subscription_end", after.SubscriptionEnd),
		zap.String("actor_id", actor.LogActor()),
	)
	return &after, nil
}

func (s *Service) ExpireOverdue(ctx context.Context) (domain.ExpireResult, error) {
	now := s.clock.Now()
	candidates, err := s.repo.ListOverdue(ctx, s.db, now)
	if err != nil {
		return domain.ExpireResult{}, err
	}

	result := domain.ExpireResult{Results: make([]domain.ExpireOutcome, 0, len(candidates))}
	expired := 0
	for _, tenant := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := domain.ExpireOutcome{
			TenantID:        tenant.ID,
			Name:            tenant.Name,
			SubscriptionEnd: tenant.SubscriptionEnd,
		}
		result.Processed++

		changed, err := s.expireOne(ctx, tenant, now)
		if err != nil {
			result.Failed++
			outcome.Error = err.Error()
			result.Results = append(result.Results, outcome)
			s.log.Error("tenant expiration failed",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err),
			)
			tenantID := tenant.ID
			s.audit.RecordBestEffort(ctx, auditdomain.Entry{
				TenantID: &tenantID,
				Action:   auditdomain.ActionExpirationError,
				Entity:   auditdomain.EntityTenant,
				EntityID: tenant.ID.String(),
				Metadata: map[string]any{"name": tenant.Name, "error": err.Error()},
			})
			continue
		}

		result.Succeeded++
		outcome.Expired = changed
		result.Results = append(result.Results, outcome)
		if changed {
			expired++
			s.invalidate(ctx, tenant.ID)
		}
	}

	s.metrics.AddTenantsExpired(expired)
	s.log.Info("tenant expiration run finished",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("expired", expired),
	)
	return result, nil
}

func (s *Service) expireOne(ctx context.Context, tenant domain.Tenant, now time.Time) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.ExpireIfOverdue(ctx, tx, tenant.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		changed = true
		tenantID := tenant.ID
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: &tenantID,
			Action:   auditdomain.ActionSubscriptionExpired,
			Entity:   auditdomain.EntityTenant,
			EntityID: tenant.ID.String(),
			Metadata: map[string]any{
				"name":             tenant.Name,
				"subscription_end": tenant.SubscriptionEnd.UTC().Format(time.RFC3339),
				"expired_at":       now.UTC().Format(time.RFC3339),
			},
		})
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// requireAdmin gates lifecycle operations to active platform admins.
func (s *Service) requireAdmin(ctx context.Context, actor identitydomain.Principal, action string) error {
	if !actor.IsAdmin() || !actor.Active {
		return authorization.ErrForbidden
	}
	return s.authz.Authorize(ctx, actor, authorization.ObjectTenant, action)
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	tenant, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}
	return tenant, nil
}

func (s *Service) invalidate(ctx context.Context, tenantID snowflake.ID) {
	if s.identity == nil {
		return
	}
	if err := s.identity.InvalidateTenant(ctx, tenantID); err != nil {
		s.log.Warn("failed to invalidate principal cache",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	}
}
