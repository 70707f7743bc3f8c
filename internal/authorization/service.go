package authorization

import (
	"context"

	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
)

const (
	ObjectProduct   = "product"
	ObjectStock     = "stock"
	ObjectOrder     = "order"
	ObjectSupply    = "supply"
	ObjectInvoice   = "invoice"
	ObjectPayment   = "payment"
	ObjectAuditLog  = "audit_log"
	ObjectTable     = "table"
	ObjectPrincipal = "principal"
	ObjectTenant    = "tenant"
	ObjectReport    = "report"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionRead   = "read"

	ActionOrderValidate = "validate"
	ActionOrderCancel   = "cancel"

	ActionTenantConfirmPayment = "confirm_payment"
	ActionTenantSuspend        = "suspend"
	ActionTenantReactivate     = "reactivate"
)

var (
	ErrForbidden     = domainerr.ErrForbidden
	ErrNoTenant      = domainerr.Wrap(domainerr.ErrForbidden, "tenant_context_required")
	ErrInvalidObject = domainerr.Wrap(domainerr.ErrForbidden, "invalid_object")
	ErrInactive      = domainerr.ErrInactiveAccount
)

// Service gates every operation on (role, object, action).
type Service interface {
	// Authorize returns ErrForbidden when p may not perform action on object.
	// Mutations of tenant-scoped objects require a tenant context, which
	// admins never have.
	Authorize(ctx context.Context, p identitydomain.Principal, object, action string) error
	// CanRead reports whether p may read object at all. Read paths use it to
	// return an empty result instead of an error.
	CanRead(ctx context.Context, p identitydomain.Principal, object string) bool
}

// tenantScoped lists objects whose rows carry a tenant_id.
var tenantScoped = map[string]bool{
	ObjectProduct:  true,
	ObjectStock:    true,
	ObjectOrder:    true,
	ObjectSupply:   true,
	ObjectInvoice:  true,
	ObjectPayment:  true,
	ObjectAuditLog: true,
	ObjectTable:    true,
	ObjectReport:   true,
}

func IsTenantScoped(object string) bool {
	return tenantScoped[object]
}
