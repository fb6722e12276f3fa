package auth

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeNoSession        = "AUTH_NO_SESSION"
	TextCodeProviderRequired = "AUTH_PROVIDER_REQUIRED"
	TextCodeSignInFailed     = "AUTH_SIGN_IN_FAILED"
	TextCodeSignOutFailed    = "AUTH_SIGN_OUT_FAILED"
	TextCodeRefreshFailed    = "AUTH_REFRESH_FAILED"
	TextCodeInvalidConfig    = "AUTH_INVALID_CONFIG"
	TextCodeInvalidProfile   = "AUTH_INVALID_PROFILE"
	TextCodeInvalidSession   = "AUTH_INVALID_SESSION"
	TextCodeSessionExpired   = "AUTH_SESSION_EXPIRED"
	TextCodeVerifierRequired = "AUTH_VERIFIER_REQUIRED"
)

// ErrNoSession is returned when an operation needs a current session and none is stored.
var ErrNoSession = errors.New("no active session", errors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(errors.CodeUnauthorized)

// ErrProviderRequired is returned when a dispatcher or authenticator is built without an identity provider.
var ErrProviderRequired = errors.New("identity provider is required", errors.CategoryBadInput).
	WithTextCode(TextCodeProviderRequired).
	WithCode(errors.CodeBadRequest)

// ErrSignInFailed wraps provider failures during sign-in.
var ErrSignInFailed = errors.New("sign in failed", errors.CategoryAuth).
	WithTextCode(TextCodeSignInFailed).
	WithCode(errors.CodeUnauthorized)

// ErrSignOutFailed wraps provider failures during sign-out.
var ErrSignOutFailed = errors.New("sign out failed", errors.CategoryOperation).
	WithTextCode(TextCodeSignOutFailed).
	WithCode(errors.CodeInternal)

// ErrRefreshFailed wraps provider failures during token refresh.
var ErrRefreshFailed = errors.New("session refresh failed", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshFailed).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidConfig is returned when options fail validation.
var ErrInvalidConfig = errors.New("invalid auth configuration", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidConfig).
	WithCode(errors.CodeBadRequest)

// ErrInvalidProfile is returned when a profile record cannot be persisted as-is.
var ErrInvalidProfile = errors.New("invalid profile", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidProfile).
	WithCode(errors.CodeBadRequest)

// ErrInvalidSession is returned when a stored access token fails verification.
var ErrInvalidSession = errors.New("invalid session token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidSession).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired is returned when a stored access token is past its exp claim.
var ErrSessionExpired = errors.New("session expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrVerifierRequired is returned when an authenticator has no way to verify
// access tokens.
var ErrVerifierRequired = errors.New("session verifier or jwt secret is required", errors.CategoryBadInput).
	WithTextCode(TextCodeVerifierRequired).
	WithCode(errors.CodeBadRequest)

// IsSessionExpired reports whether err carries the expired session text code.
func IsSessionExpired(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == TextCodeSessionExpired
}

// wrapProviderError clones base so callers can match on its text code while
// the provider failure stays reachable through Source.
func wrapProviderError(base *errors.Error, operation string, err error) error {
	if base == nil {
		return err
	}

	meta := map[string]any{}
	if operation != "" {
		meta["operation"] = operation
	}
	if err != nil {
		meta["error"] = err.Error()
	}

	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if err != nil {
		clone.Source = err
	}
	clone.WithMetadata(meta)

	return clone
}
