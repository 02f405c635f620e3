package rbac

// Role names carried in ops API tokens.
const (
	RoleOwner = "owner"
	RoleStaff = "staff"
	// RoleSupport is platform support staff; it passes every role check but
	// stays bound to the business in its token.
	RoleSupport = "support"
)

func IsSupport(role string) bool { return role == RoleSupport }
