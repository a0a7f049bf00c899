package rbac

// Principal is an authenticated user with its role resolved. It is built once
// per request at the authentication boundary and passed explicitly; handlers
// never reach into ambient state for identity.
type Principal struct {
	UserID      string        `json:"user_id"`
	Email       string        `json:"email"`
	RoleName    string        `json:"role"`
	EntityID    string        `json:"entity_id,omitempty"`
	EntityType  string        `json:"entity_type,omitempty"`
	Active      bool          `json:"active"`
	Permissions PermissionSet `json:"permissions"`
}

// Authorize decides whether the principal may execute (module, action).
// Ordered, first match wins: super_admin role, all-access sentinel, explicit
// module/action grant. Deny is a regular return value, never an error.
func Authorize(p Principal, module, action string) bool {
	if p.RoleName == RoleSuperAdmin {
		return true
	}
	return p.Permissions.Allows(module, action)
}

// Visibility is the row filter a principal's role implies. Stores apply it as
// SQL predicates so restricted principals never see aggregate counts either.
type Visibility struct {
	// PartnerEntityID restricts distributions, campaigns and sites to rows
	// owned by this entity when non-empty.
	PartnerEntityID string
	// ClientEntityID restricts campaigns to this client when non-empty.
	ClientEntityID string
}

// VisibilityFor derives the row filter from the principal's role.
func VisibilityFor(p Principal) Visibility {
	switch p.RoleName {
	case RolePartner:
		return Visibility{PartnerEntityID: p.EntityID}
	case RoleClient:
		return Visibility{ClientEntityID: p.EntityID}
	default:
		return Visibility{}
	}
}

// Unrestricted reports whether the filter passes every row.
func (v Visibility) Unrestricted() bool {
	return v.PartnerEntityID == "" && v.ClientEntityID == ""
}
