package constants

const (
	Guest      = "guest"
	UserRole   = "user"
	Investor   = "investor"
	Staff      = "staff"
	Admin      = "admin"
	Superadmin = "superadmin"
)

// ValidRoles is the set of allowed DB enum values for user role.
var ValidRoles = []string{Guest, UserRole, Investor, Staff, Admin, Superadmin}

// IsValidRole returns true if role is one of the allowed enum values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
