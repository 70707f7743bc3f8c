package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func principal(role identitydomain.Role, tenant int64) identitydomain.Principal {
	p := identitydomain.Principal{ID: snowflake.ID(100), Role: role, Active: true}
	if tenant != 0 {
		id := snowflake.ID(tenant)
		p.TenantID = &id
	}
	return p
}

func TestRoleMatrix(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role    identitydomain.Role
		object  string
		action  string
		allowed bool
	}{
		{identitydomain.RoleServer, ObjectOrder, ActionCreate, true},
		{identitydomain.RoleCounter, ObjectOrder, ActionCreate, false},
		{identitydomain.RoleManager, ObjectOrder, ActionCreate, false},
		{identitydomain.RoleServer, ObjectOrder, ActionOrderValidate, false},
		{identitydomain.RoleCounter, ObjectOrder, ActionOrderValidate, true},
		{identitydomain.RoleManager, ObjectOrder, ActionOrderValidate, true},
		{identitydomain.RoleOwner, ObjectOrder, ActionOrderValidate, true},
		{identitydomain.RoleServer, ObjectOrder, ActionDelete, true},
		{identitydomain.RoleOwner, ObjectOrder, ActionDelete, false},

		{identitydomain.RoleServer, ObjectProduct, ActionCreate, false},
		{identitydomain.RoleCounter, ObjectProduct, ActionUpdate, false},
		{identitydomain.RoleManager, ObjectProduct, ActionCreate, true},
		{identitydomain.RoleOwner, ObjectProduct, ActionDelete, true},
		{identitydomain.RoleServer, ObjectProduct, ActionRead, true},

		{identitydomain.RoleCounter, ObjectSupply, ActionCreate, false},
		{identitydomain.RoleManager, ObjectSupply, ActionCreate, true},
		{identitydomain.RoleOwner, ObjectSupply, ActionDelete, true},

		{identitydomain.RoleServer, ObjectPayment, ActionCreate, false},
		{identitydomain.RoleCounter, ObjectPayment, ActionCreate, true},
		{identitydomain.RoleCounter, ObjectInvoice, ActionCreate, true},
		{identitydomain.RoleOwner, ObjectInvoice, ActionUpdate, true},

		{identitydomain.RoleManager, ObjectAuditLog, ActionRead, false},
		{identitydomain.RoleOwner, ObjectAuditLog, ActionRead, true},

		{identitydomain.RoleServer, ObjectReport, ActionRead, false},
		{identitydomain.RoleCounter, ObjectReport, ActionRead, false},
		{identitydomain.RoleManager, ObjectReport, ActionRead, true},
		{identitydomain.RoleOwner, ObjectReport, ActionRead, true},

		{identitydomain.RoleOwner, ObjectTenant, ActionTenantConfirmPayment, false},
		{identitydomain.RoleOwner, ObjectPrincipal, ActionCreate, true},
		{identitydomain.RoleManager, ObjectPrincipal, ActionCreate, false},
	}

	for _, tc := range cases {
		err := svc.Authorize(ctx, principal(tc.role, 1), tc.object, tc.action)
		if tc.allowed {
			assert.NoError(t, err, "%s %s %s", tc.role, tc.object, tc.action)
		} else {
			assert.ErrorIs(t, err, domainerr.ErrForbidden, "%s %s %s", tc.role, tc.object, tc.action)
		}
	}
}

func TestAdminCannotMutateTenantScopedObjects(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := principal(identitydomain.RoleAdmin, 0)

	for _, object := range []string{ObjectOrder, ObjectProduct, ObjectSupply, ObjectStock, ObjectPayment} {
		err := svc.Authorize(ctx, admin, object, ActionCreate)
		assert.ErrorIs(t, err, ErrNoTenant, object)
		assert.True(t, svc.CanRead(ctx, admin, object), object)
	}

	assert.NoError(t, svc.Authorize(ctx, admin, ObjectTenant, ActionTenantConfirmPayment))
	assert.NoError(t, svc.Authorize(ctx, admin, ObjectTenant, ActionTenantSuspend))
	assert.NoError(t, svc.Authorize(ctx, admin, ObjectAuditLog, ActionRead))
}

func TestNonAdminWithoutTenantIsRejected(t *testing.T) {
	svc := newTestService(t)
	err := svc.Authorize(context.Background(), principal(identitydomain.RoleOwner, 0), ObjectProduct, ActionRead)
	assert.ErrorIs(t, err, domainerr.ErrForbidden)
}

func TestInactivePrincipalIsRejected(t *testing.T) {
	svc := newTestService(t)
	p := principal(identitydomain.RoleOwner, 1)
	p.Active = false
	err := svc.Authorize(context.Background(), p, ObjectProduct, ActionRead)
	assert.ErrorIs(t, err, domainerr.ErrInactiveAccount)
}

func TestRequireSameTenant(t *testing.T) {
	p := principal(identitydomain.RoleManager, 1)
	assert.NoError(t, RequireSameTenant(p, 1))
	assert.ErrorIs(t, RequireSameTenant(p, 2), domainerr.ErrForbidden)
	assert.ErrorIs(t, RequireSameTenant(principal(identitydomain.RoleAdmin, 0), 1), domainerr.ErrForbidden)

	assert.True(t, CanSee(principal(identitydomain.RoleAdmin, 0), 2))
	assert.False(t, CanSee(p, 2))
}
