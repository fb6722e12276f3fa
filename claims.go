package auth

// ClaimsSource names where on the identity record a role claim was read.
type ClaimsSource int

const (
	// ClaimsSourceUser is user-level metadata. Depending on the provider
	// configuration the user may be able to edit it.
	ClaimsSourceUser ClaimsSource = iota + 1
	// ClaimsSourceApp is application-level metadata, written server side.
	ClaimsSourceApp
)

func (s ClaimsSource) String() string {
	switch s {
	case ClaimsSourceUser:
		return "user_metadata"
	case ClaimsSourceApp:
		return "app_metadata"
	default:
		return "unknown"
	}
}

// RoleClaim is the raw role value found at one claims location.
type RoleClaim struct {
	Source  ClaimsSource
	Value   string
	Present bool
}

// Role returns the claim as a Role when it names one of the known roles.
func (c RoleClaim) Role() (Role, bool) {
	if !c.Present {
		return "", false
	}
	return ParseRole(c.Value)
}

func (c RoleClaim) isAdmin() bool {
	role, ok := c.Role()
	return ok && role == RoleAdmin
}

// ResolveRole derives the effective role from both claim locations.
//
// Admin is granted when either location says admin. Otherwise the
// user-level claim wins when valid and the app-level claim is the fallback.
// The OR rule trusts user metadata for admin; see DESIGN.md before relying on it.
func ResolveRole(user, app RoleClaim) (Role, bool) {
	if user.isAdmin() || app.isAdmin() {
		return RoleAdmin, true
	}

	if role, ok := user.Role(); ok {
		return role, true
	}

	if role, ok := app.Role(); ok {
		return role, true
	}

	return "", false
}

// IsAdminClaims reports whether either claim location marks the user admin.
func IsAdminClaims(user, app RoleClaim) bool {
	role, ok := ResolveRole(user, app)
	return ok && role == RoleAdmin
}

func roleClaimFrom(source ClaimsSource, metadata map[string]any) RoleClaim {
	claim := RoleClaim{Source: source}
	if metadata == nil {
		return claim
	}

	raw, exists := metadata["role"]
	if !exists {
		return claim
	}

	if value, ok := raw.(string); ok {
		claim.Value = value
		claim.Present = true
	}

	return claim
}
