package auth

import (
	"net/url"
	"strings"
)

// DecisionKind is the outcome of a guard evaluation.
type DecisionKind int

const (
	DecisionLoading DecisionKind = iota
	DecisionAllow
	DecisionRedirect
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAllow:
		return "allow"
	case DecisionRedirect:
		return "redirect"
	default:
		return "loading"
	}
}

// RedirectReason explains a redirect decision.
type RedirectReason string

const (
	ReasonUnauthenticated RedirectReason = "unauthenticated"
	ReasonForbidden       RedirectReason = "forbidden"
	ReasonMissingContext  RedirectReason = "missing_context"
)

// ReturnToParam is the query parameter carrying the originally requested path.
const ReturnToParam = "returnTo"

// AccessDecision is computed per navigation and never stored.
type AccessDecision struct {
	Kind     DecisionKind
	Target   string
	Reason   RedirectReason
	ReturnTo string
	Message  string
}

func (d AccessDecision) Allowed() bool {
	return d.Kind == DecisionAllow
}

// Location is the redirect URL, with ReturnTo appended as a query
// parameter when set.
func (d AccessDecision) Location() string {
	if d.Kind != DecisionRedirect {
		return ""
	}
	if d.ReturnTo == "" {
		return d.Target
	}

	sep := "?"
	if strings.Contains(d.Target, "?") {
		sep = "&"
	}
	return d.Target + sep + ReturnToParam + "=" + url.QueryEscape(d.ReturnTo)
}

// GuardPolicy describes one guarded branch of the route tree.
type GuardPolicy struct {
	Name string
	// LoginPath receives unauthenticated users.
	LoginPath string
	// DeniedPath receives authenticated users missing RequiredRole.
	DeniedPath string
	// OnboardingPath receives users missing the contextual scope.
	OnboardingPath string
	// RequiredRole is the minimum role, empty for any signed-in user.
	RequiredRole Role
	// RequireContext demands a selected operating location.
	RequireContext bool
	// LoadingMessage is shown while the session is being resolved.
	LoadingMessage string
}

// GuardInput is what a guard knows at navigation time.
type GuardInput struct {
	Loading       bool
	Session       *Session
	Role          Role
	HasContext    bool
	RequestedPath string
}

// AdminGuard protects the platform admin area.
func AdminGuard(cfg Config) GuardPolicy {
	return GuardPolicy{
		Name:           "admin",
		LoginPath:      cfg.GetAdminLoginPath(),
		DeniedPath:     cfg.GetDashboardPath(),
		RequiredRole:   RoleAdmin,
		LoadingMessage: "Checking admin access...",
	}
}

// ProtectedGuard protects pages for any signed-in user.
func ProtectedGuard(cfg Config) GuardPolicy {
	return GuardPolicy{
		Name:           "protected",
		LoginPath:      cfg.GetLoginPath(),
		DeniedPath:     cfg.GetDashboardPath(),
		LoadingMessage: "Loading...",
	}
}

// LocationGuard protects pages that act on a selected café location.
func LocationGuard(cfg Config) GuardPolicy {
	return GuardPolicy{
		Name:           "location",
		LoginPath:      cfg.GetLoginPath(),
		DeniedPath:     cfg.GetDashboardPath(),
		OnboardingPath: cfg.GetOnboardingPath(),
		RequireContext: true,
		LoadingMessage: "Loading your location...",
	}
}

// Evaluate runs the guard state machine:
//
//	loading -> unauthenticated | authenticated-wrong-context | authenticated-ok
//
// Loading never yields Allow and never reads as unauthenticated.
// Misconfigured policies resolve to a redirect, never a panic.
func Evaluate(policy GuardPolicy, in GuardInput) AccessDecision {
	if in.Loading {
		return AccessDecision{Kind: DecisionLoading, Message: policy.LoadingMessage}
	}

	if !in.Session.Valid() {
		return AccessDecision{
			Kind:     DecisionRedirect,
			Target:   fallbackPath(policy.LoginPath, "/login"),
			Reason:   ReasonUnauthenticated,
			ReturnTo: in.RequestedPath,
		}
	}

	if policy.RequiredRole != "" && !roleSatisfies(policy.RequiredRole, in) {
		return AccessDecision{
			Kind:   DecisionRedirect,
			Target: fallbackPath(policy.DeniedPath, "/"),
			Reason: ReasonForbidden,
		}
	}

	if policy.RequireContext && !in.HasContext {
		return AccessDecision{
			Kind:     DecisionRedirect,
			Target:   fallbackPath(policy.OnboardingPath, fallbackPath(policy.DeniedPath, "/")),
			Reason:   ReasonMissingContext,
			ReturnTo: in.RequestedPath,
		}
	}

	return AccessDecision{Kind: DecisionAllow}
}

func roleSatisfies(required Role, in GuardInput) bool {
	if required == RoleAdmin {
		// either claim location may grant admin
		if in.Session.User.IsAdmin() {
			return true
		}
	}

	role := in.Role
	if role == "" {
		var ok bool
		if role, ok = in.Session.Role(); !ok {
			return false
		}
	}
	return role.IsAtLeast(required)
}

func fallbackPath(path, def string) string {
	if path == "" {
		return def
	}
	return path
}
