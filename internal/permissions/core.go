package permissions

// Permission identifiers checked by handlers and granted to role groups.
const (
	EntityViewOwn = "entity.view_own"
	EntityView    = "entity.view"
	EntityCreate  = "entity.create"
	EntityEditOwn = "entity.edit_own"
	EntityEdit    = "entity.edit"
	EntityDelete  = "entity.delete"

	MemberView       = "member.view"
	MemberManage     = "member.manage"
	InvitationManage = "invitation.manage"

	TenantView   = "tenant.view"
	TenantManage = "tenant.manage"
)

func init() {
	perms := []*Permission{
		{ID: EntityViewOwn, Module: "entity", Description: "View records you created"},
		{ID: EntityView, Module: "entity", Implies: []string{EntityViewOwn}, Description: "View all tenant records"},
		{ID: EntityCreate, Module: "entity", DependsOn: []string{EntityViewOwn}, Description: "Create tenant records"},
		{ID: EntityEditOwn, Module: "entity", DependsOn: []string{EntityViewOwn}, Description: "Edit records you created"},
		{ID: EntityEdit, Module: "entity", DependsOn: []string{EntityView}, Implies: []string{EntityEditOwn}, Description: "Edit all tenant records"},
		{ID: EntityDelete, Module: "entity", DependsOn: []string{EntityView}, Description: "Delete tenant records"},

		{ID: MemberView, Module: "members", Description: "View organization members"},
		{ID: MemberManage, Module: "members", DependsOn: []string{MemberView}, Description: "Change member roles and remove members"},
		{ID: InvitationManage, Module: "members", DependsOn: []string{MemberView}, Description: "Issue, resend and revoke invitations"},

		{ID: TenantView, Module: "tenant", Description: "View organization settings"},
		{ID: TenantManage, Module: "tenant", DependsOn: []string{TenantView}, Description: "Manage organization settings and domains"},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
}
