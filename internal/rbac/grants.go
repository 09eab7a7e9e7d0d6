package rbac

import (
	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/permissions"
)

// roleGrants is the fixed permission set of each role's group.
var roleGrants = map[models.Role][]string{
	models.RoleOwner: {
		permissions.EntityView, permissions.EntityCreate, permissions.EntityEdit, permissions.EntityDelete,
		permissions.MemberView, permissions.MemberManage, permissions.InvitationManage,
		permissions.TenantView, permissions.TenantManage,
	},
	models.RoleAdmin: {
		permissions.EntityView, permissions.EntityCreate, permissions.EntityEdit, permissions.EntityDelete,
		permissions.MemberView, permissions.MemberManage, permissions.InvitationManage,
		permissions.TenantView,
	},
	models.RoleManager: {
		permissions.EntityView, permissions.EntityCreate, permissions.EntityEdit,
		permissions.MemberView,
		permissions.TenantView,
	},
	models.RoleMember: {
		permissions.EntityViewOwn, permissions.EntityEditOwn,
		permissions.TenantView,
	},
	models.RoleGuest: {
		permissions.EntityView,
		permissions.TenantView,
	},
}

// GrantsFor returns a copy of the permission set granted to role.
func GrantsFor(role models.Role) []string {
	return append([]string(nil), roleGrants[role]...)
}

// GroupName is the stable name of the (tenant, role) permission group.
func GroupName(tenantID string, role models.Role) string {
	return "tenant:" + tenantID + ":" + string(role)
}
