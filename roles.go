package auth

// Role is a café platform role. The set is closed: anything outside the
// constants below is not a role.
type Role string

const (
	// RoleUser is a signed-in customer or staff member without extra rights
	RoleUser Role = "user"
	// RoleBarista works a location's counter
	RoleBarista Role = "barista"
	// RoleManager runs one or more locations
	RoleManager Role = "manager"
	// RoleOwner owns a café tenant
	RoleOwner Role = "owner"
	// RoleAdmin operates the platform
	RoleAdmin Role = "admin"
)

var roleHierarchy = map[Role]int{
	RoleUser:    0,
	RoleBarista: 1,
	RoleManager: 2,
	RoleOwner:   3,
	RoleAdmin:   4,
}

// IsRole reports whether v is exactly one of the five role strings.
// Non-string values, including nil and Role-typed values of unknown
// strings, yield false. Matching is case sensitive.
func IsRole(v any) bool {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case Role:
		s = string(t)
	default:
		return false
	}
	_, ok := roleHierarchy[Role(s)]
	return ok
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

func (r Role) String() string {
	return string(r)
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleUser,
		RoleBarista,
		RoleManager,
		RoleOwner,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
