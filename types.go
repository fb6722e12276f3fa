package auth

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSessionCookieName() string
	GetContextCookieName() string
	GetCookieMaxAge() int
	GetCookieSecureMode() string
	// GetCookieHost is the public host the cookie domain is derived from.
	// Empty falls back to the request host.
	GetCookieHost() string
	// GetTrustForwardedHeaders enables X-Forwarded-Host and
	// X-Forwarded-Proto. Only set it behind a proxy that overwrites them.
	GetTrustForwardedHeaders() bool
	// GetJWTSecret is the provider's HS256 signing secret used to verify
	// access tokens read from cookies.
	GetJWTSecret() string
	GetStorageKeyPrefix() string
	GetLoginPath() string
	GetAdminLoginPath() string
	GetDashboardPath() string
	GetOnboardingPath() string
	GetFlowType() string
}

// EventSource is the identity provider's auth-state stream. Subscribe must
// return a handle that detaches handler from the stream.
type EventSource interface {
	Subscribe(handler func(AuthEvent)) (unsubscribe func())
}

// IdentityProvider is the external BaaS auth service. Failures are returned
// as values; this layer never retries.
type IdentityProvider interface {
	EventSource
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, session *Session) error
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
