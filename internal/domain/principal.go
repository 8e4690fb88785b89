package domain

// Role is the authorization tier of a principal.
type Role int

const (
	RoleAnonymous Role = iota
	RoleUser
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}

// RoleFor maps the stored admin flag to a role.
func RoleFor(isAdmin bool) Role {
	if isAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// ParseRole is the inverse of Role.String. Unknown values map to RoleAnonymous.
func ParseRole(s string) Role {
	switch s {
	case "user":
		return RoleUser
	case "admin":
		return RoleAdmin
	default:
		return RoleAnonymous
	}
}

// Principal is the per-request session context: who is calling and with which role.
// The zero value is the anonymous principal.
type Principal struct {
	UserID   int
	Username string
	Role     Role
}

// Anonymous returns the principal used for requests without a session.
func Anonymous() Principal {
	return Principal{}
}

// Console is the principal used by the local admin console. It is never
// issued through a session.
func Console() Principal {
	return Principal{Username: "console", Role: RoleAdmin}
}

// Authenticated reports whether the principal came from a successful login.
func (p Principal) Authenticated() bool {
	return p.Role != RoleAnonymous
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
