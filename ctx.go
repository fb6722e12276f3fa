package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSession stores the session in the given context.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session stored by WithSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	session, ok := ctx.Value(sessionCtxKey).(*Session)
	return session, ok && session.Valid()
}

// RoleFromContext resolves the effective role of the session in ctx.
func RoleFromContext(ctx context.Context) (Role, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return "", false
	}
	return session.Role()
}

// HasRole reports whether the session in ctx holds at least min.
// Admin is checked against both claim locations.
func HasRole(ctx context.Context, min Role) bool {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return false
	}
	return roleSatisfies(min, GuardInput{Session: session})
}

// SessionFromLocals returns the session stored by the guard middleware.
func SessionFromLocals(c router.Context) (*Session, bool) {
	session, ok := c.Locals(SessionLocalsKey).(*Session)
	return session, ok && session != nil
}

// HasRoleFromRouter is HasRole for a guarded router request.
func HasRoleFromRouter(c router.Context, min Role) bool {
	session, ok := SessionFromLocals(c)
	if !ok {
		return false
	}
	return roleSatisfies(min, GuardInput{Session: session})
}
