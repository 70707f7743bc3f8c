package authorization

import (
	"github.com/casbin/casbin/v2"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
)

func subject(role identitydomain.Role) string {
	return "role:" + string(role)
}

// roleHierarchy: a manager can do everything a counter can, an owner
// everything a manager can.
var roleHierarchy = [][]string{
	{subject(identitydomain.RoleManager), subject(identitydomain.RoleCounter)},
	{subject(identitydomain.RoleOwner), subject(identitydomain.RoleManager)},
}

func defaultPolicies() [][]string {
	server := subject(identitydomain.RoleServer)
	counter := subject(identitydomain.RoleCounter)
	manager := subject(identitydomain.RoleManager)
	owner := subject(identitydomain.RoleOwner)
	admin := subject(identitydomain.RoleAdmin)

	return [][]string{
		// Wait staff: own orders and table status.
		{server, ObjectProduct, ActionRead},
		{server, ObjectStock, ActionRead},
		{server, ObjectOrder, ActionCreate},
		{server, ObjectOrder, ActionRead},
		{server, ObjectOrder, ActionUpdate},
		{server, ObjectOrder, ActionOrderCancel},
		{server, ObjectOrder, ActionDelete},
		{server, ObjectSupply, ActionRead},
		{server, ObjectInvoice, ActionRead},
		{server, ObjectPayment, ActionRead},
		{server, ObjectTable, ActionRead},
		{server, ObjectTable, ActionUpdate},
		{server, ObjectTenant, ActionRead},

		// Counter: validation and collection.
		{counter, ObjectProduct, ActionRead},
		{counter, ObjectStock, ActionRead},
		{counter, ObjectOrder, ActionRead},
		{counter, ObjectOrder, ActionOrderValidate},
		{counter, ObjectSupply, ActionRead},
		{counter, ObjectInvoice, ActionCreate},
		{counter, ObjectInvoice, ActionUpdate},
		{counter, ObjectInvoice, ActionRead},
		{counter, ObjectPayment, ActionCreate},
		{counter, ObjectPayment, ActionUpdate},
		{counter, ObjectPayment, ActionRead},
		{counter, ObjectTable, ActionRead},
		{counter, ObjectTable, ActionUpdate},
		{counter, ObjectTenant, ActionRead},

		// Manager: catalogue, stock and supplies.
		{manager, ObjectProduct, ActionCreate},
		{manager, ObjectProduct, ActionUpdate},
		{manager, ObjectProduct, ActionDelete},
		{manager, ObjectStock, ActionCreate},
		{manager, ObjectStock, ActionUpdate},
		{manager, ObjectStock, ActionDelete},
		{manager, ObjectOrder, ActionUpdate},
		{manager, ObjectOrder, ActionOrderCancel},
		{manager, ObjectSupply, ActionCreate},
		{manager, ObjectSupply, ActionUpdate},
		{manager, ObjectSupply, ActionDelete},
		{manager, ObjectTable, ActionCreate},
		{manager, ObjectTable, ActionDelete},
		{manager, ObjectPrincipal, ActionRead},
		{manager, ObjectReport, ActionRead},

		// Owner: staff accounts and the audit trail.
		{owner, ObjectAuditLog, ActionRead},
		{owner, ObjectPrincipal, ActionCreate},
		{owner, ObjectPrincipal, ActionUpdate},

		// Platform admin: cross-tenant reads and the tenant lifecycle.
		{admin, ObjectProduct, ActionRead},
		{admin, ObjectStock, ActionRead},
		{admin, ObjectOrder, ActionRead},
		{admin, ObjectSupply, ActionRead},
		{admin, ObjectInvoice, ActionRead},
		{admin, ObjectPayment, ActionRead},
		{admin, ObjectTable, ActionRead},
		{admin, ObjectAuditLog, ActionRead},
		{admin, ObjectReport, ActionRead},
		{admin, ObjectPrincipal, ActionCreate},
		{admin, ObjectPrincipal, ActionUpdate},
		{admin, ObjectPrincipal, ActionRead},
		{admin, ObjectTenant, ActionCreate},
		{admin, ObjectTenant, ActionUpdate},
		{admin, ObjectTenant, ActionDelete},
		{admin, ObjectTenant, ActionRead},
		{admin, ObjectTenant, ActionTenantConfirmPayment},
		{admin, ObjectTenant, ActionTenantSuspend},
		{admin, ObjectTenant, ActionTenantReactivate},
	}
}

// seedPolicies adds missing policies and role links; existing rows are kept.
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	for _, rule := range defaultPolicies() {
		params := toParams(rule)
		has, err := enforcer.HasPolicy(params...)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(params...); err != nil {
			return err
		}
	}
	for _, link := range roleHierarchy {
		params := toParams(link)
		has, err := enforcer.HasGroupingPolicy(params...)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(params...); err != nil {
			return err
		}
	}
	return nil
}

func toParams(rule []string) []interface{} {
	params := make([]interface{}, 0, len(rule))
	for _, value := range rule {
		params = append(params, value)
	}
	return params
}
