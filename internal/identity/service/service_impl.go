package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	"github.com/smallbiznis/comptoir/internal/identity/cache"
	"github.com/smallbiznis/comptoir/internal/identity/domain"
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
	Audit auditdomain.Recorder
	Cache cache.PrincipalCache
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	authz authorization.Service
	audit auditdomain.Recorder
	cache cache.PrincipalCache
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("identity.service"),
		genID: p.GenID,
		repo:  p.Repo,
		authz: p.Authz,
		audit: p.Audit,
		cache: p.Cache,
		clock: p.Clock,
	}
}

func (s *Service) Resolve(ctx context.Context, principalID snowflake.ID) (domain.Principal, error) {
	if principalID == 0 {
		return domain.Principal{}, domainerr.ErrUnauthenticated
	}
	if cached, ok := s.cache.Get(ctx, principalID); ok {
		return cached, nil
	}

	resolved, err := s.repo.Resolve(ctx, s.db, principalID)
	if err != nil {
		return domain.Principal{}, err
	}
	if resolved == nil {
		return domain.Principal{}, domainerr.ErrUnauthenticated
	}
	if !resolved.Active {
		return domain.Principal{}, domainerr.ErrInactiveAccount
	}
	if resolved.Role != domain.RoleAdmin {
		if resolved.TenantID == nil || resolved.TenantActive == nil || !*resolved.TenantActive {
			return domain.Principal{}, domainerr.ErrInactiveAccount
		}
	}

	principal := resolved.Principal()
	s.cache.Set(ctx, principal)
	return principal, nil
}

func (s *Service) RecordLogin(ctx context.Context, principalID snowflake.ID) (domain.Principal, error) {
	principal, err := s.Resolve(ctx, principalID)
	if err != nil {
		return domain.Principal{}, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.TouchLogin(ctx, tx, principal.ID, now); err != nil {
			return err
		}
		if !principal.IsAdmin() {
			return nil
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			ActorID:  principal.ActorID(),
			Action:   auditdomain.ActionAdminLogin,
			Entity:   auditdomain.EntityPrincipal,
			EntityID: principal.ID.String(),
			Metadata: map[string]any{"logged_in_at": now},
		})
	})
	if err != nil {
		return domain.Principal{}, err
	}
	return principal, nil
}

func (s *Service) Create(ctx context.Context, actor domain.Principal, req domain.CreateRequest) (*domain.Account, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectPrincipal, authorization.ActionCreate); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	tenantID, err := s.createTenant(actor, req)
	if err != nil {
		return nil, err
	}
	if tenantID != nil {
		exists, err := s.repo.TenantExists(ctx, s.db, *tenantID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrTenantNotFound
		}
	}

	id := req.ID
	if id == 0 {
		id = s.genID.Generate()
	} else {
		existing, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, domain.ErrIDTaken
		}
	}
	now := s.clock.Now()
	account := &domain.Account{
		ID:          id,
		TenantID:    tenantID,
		Role:        req.Role,
		DisplayName: name,
		Email:       normalizeEmail(req.Email),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, account); err != nil {
			if account.Email != nil {
				return db.UniqueAs(err, "email", domain.ErrEmailTaken.Rule)
			}
			return db.TranslateConstraint(err)
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: account.TenantID,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Created(auditdomain.EntityPrincipal),
			Entity:   auditdomain.EntityPrincipal,
			EntityID: account.ID.String(),
			After:    account,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("principal created",
		zap.String("principal_id", account.ID.String()),
		zap.String("role", string(account.Role)),
		zap.String("actor_id", actor.LogActor()),
	)
	return account, nil
}

// createTenant applies the role/tenant invariant to a new account.
func (s *Service) createTenant(actor domain.Principal, req domain.CreateRequest) (*snowflake.ID, error) {
	if req.Role == domain.RoleAdmin {
		if !actor.IsAdmin() {
			return nil, domainerr.ErrForbidden
		}
		if req.TenantID != nil && *req.TenantID != 0 {
			return nil, domain.ErrAdminWithTenant
		}
		return nil, nil
	}

	if actor.IsAdmin() {
		if req.TenantID == nil || *req.TenantID == 0 {
			return nil, domain.ErrTenantRequired
		}
		id := *req.TenantID
		return &id, nil
	}

	// Owners staff their own tenant and cannot mint peers.
	if req.Role == domain.RoleOwner {
		return nil, domainerr.ErrForbidden
	}
	own, err := authorization.TenantOf(actor)
	if err != nil {
		return nil, err
	}
	if req.TenantID != nil && *req.TenantID != 0 && *req.TenantID != own {
		return nil, domainerr.ErrForbidden
	}
	return &own, nil
}

func (s *Service) Update(ctx context.Context, actor domain.Principal, id snowflake.ID, req domain.UpdateRequest) (*domain.Account, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectPrincipal, authorization.ActionUpdate); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, domain.ErrInvalidID
	}

	current, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrPrincipalNotFound
	}
	if !actor.IsAdmin() {
		if current.TenantID == nil {
			return nil, domainerr.ErrForbidden
		}
		if err := authorization.RequireSameTenant(actor, *current.TenantID); err != nil {
			return nil, err
		}
	}

	before := *current
	next := *current

	if req.TenantID != nil {
		var target *snowflake.ID
		if *req.TenantID != 0 {
			value := *req.TenantID
			target = &value
		}
		if !sameTenant(current.TenantID, target) {
			if id == actor.ID {
				return nil, domain.ErrOwnTenantChange
			}
			if !actor.IsAdmin() {
				return nil, domainerr.ErrForbidden
			}
			if target != nil {
				exists, err := s.repo.TenantExists(ctx, s.db, *target)
				if err != nil {
					return nil, err
				}
				if !exists {
					return nil, domain.ErrTenantNotFound
				}
			}
			next.TenantID = target
		}
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, domain.ErrInvalidRole
		}
		if !actor.IsAdmin() && (*req.Role == domain.RoleAdmin || *req.Role == domain.RoleOwner) && *req.Role != current.Role {
			return nil, domainerr.ErrForbidden
		}
		next.Role = *req.Role
	}
	if !actor.IsAdmin() && current.Role == domain.RoleOwner && id != actor.ID {
		return nil, domainerr.ErrForbidden
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		next.DisplayName = name
	}
	if req.Active != nil {
		next.Active = *req.Active
	}

	if next.Role == domain.RoleAdmin && next.TenantID != nil {
		return nil, domain.ErrAdminWithTenant
	}
	if next.Role != domain.RoleAdmin && next.TenantID == nil {
		return nil, domain.ErrTenantRequired
	}

	next.UpdatedAt = s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, &next); err != nil {
			return db.TranslateConstraint(err)
		}
		auditTenant := next.TenantID
		if auditTenant == nil {
			auditTenant = before.TenantID
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID: auditTenant,
			ActorID:  actor.ActorID(),
			Action:   auditdomain.Updated(auditdomain.EntityPrincipal),
			Entity:   auditdomain.EntityPrincipal,
			EntityID: next.ID.String(),
			Before:   before,
			After:    next,
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.Delete(ctx, next.ID)
	return &next, nil
}

func (s *Service) Get(ctx context.Context, actor domain.Principal, id snowflake.ID) (*domain.Account, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	if id != actor.ID && !s.authz.CanRead(ctx, actor, authorization.ObjectPrincipal) {
		return nil, domain.ErrPrincipalNotFound
	}

	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrPrincipalNotFound
	}
	if account.ID != actor.ID && !actor.IsAdmin() {
		if account.TenantID == nil || !authorization.CanSee(actor, *account.TenantID) {
			return nil, domain.ErrPrincipalNotFound
		}
	}
	return account, nil
}

func (s *Service) List(ctx context.Context, actor domain.Principal) ([]domain.Account, error) {
	if !s.authz.CanRead(ctx, actor, authorization.ObjectPrincipal) {
		return []domain.Account{}, nil
	}
	items, err := s.repo.List(ctx, s.db, authorization.Scope(actor))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Account{}
	}
	return items, nil
}

func (s *Service) InvalidateTenant(ctx context.Context, tenantID snowflake.ID) error {
	ids, err := s.repo.IDsByTenant(ctx, s.db, tenantID)
	if err != nil {
		return err
	}
	s.cache.Delete(ctx, ids...)
	return nil
}

func sameTenant(a, b *snowflake.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func normalizeEmail(value string) *string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
