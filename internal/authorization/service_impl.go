package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	obsmetrics "github.com/smallbiznis/comptoir/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	metrics  *obsmetrics.POSMetrics
}

// NewEnforcer builds an enforcer whose policies live in the casbin_rule table.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer with the default policies and no
// persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		metrics:  obsmetrics.POS(),
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, p identitydomain.Principal, object string, action string) error {
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)
	if object == "" || action == "" {
		return ErrInvalidObject
	}
	if !p.Active {
		return ErrInactive
	}

	_, hasTenant := p.CurrentTenant()
	if !p.IsAdmin() && !hasTenant {
		s.denied(p, object, action, "missing_tenant")
		return ErrNoTenant
	}
	if IsTenantScoped(object) && action != ActionRead && !hasTenant {
		s.denied(p, object, action, "tenant_context_required")
		return ErrNoTenant
	}

	allowed, err := s.enforcer.Enforce(subject(p.Role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.denied(p, object, action, "policy")
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) CanRead(ctx context.Context, p identitydomain.Principal, object string) bool {
	return s.Authorize(ctx, p, object, ActionRead) == nil
}

func (s *ServiceImpl) denied(p identitydomain.Principal, object, action, reason string) {
	s.metrics.IncAuthorizationDenied(object, action)
	s.log.Debug("authorization denied",
		zap.String("principal_id", p.LogActor()),
		zap.String("role", string(p.Role)),
		zap.String("tenant_id", p.LogTenant()),
		zap.String("object", object),
		zap.String("action", action),
		zap.String("reason", reason),
	)
}
