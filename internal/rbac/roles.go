package rbac

// Role names. Keep these stable; they are part of the token contract with
// the identity service.
const (
	RolePartner    = "partner"     // authenticated B2B caller
	RoleAdmin      = "admin"       // site staff operating the admin surface
	RoleSuperAdmin = "super_admin" // unrestricted
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
