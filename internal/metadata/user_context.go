package metadata

// Roles recognized by the rule endpoints.
const (
	RoleAdmin      = "admin"
	RoleRulesAdmin = "rules_admin"
)

// UserContext is the authenticated caller, set by the auth middleware.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

func (u *UserContext) HasRole(role string) bool {
	return contains(u.Roles, role)
}

// CanManageRules reports whether the caller may create and edit rules.
func (u *UserContext) CanManageRules() bool {
	return u.HasRole(RoleAdmin) || u.HasRole(RoleRulesAdmin)
}
