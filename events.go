package auth

import "time"

// AuthEventKind enumerates the provider's auth-state notifications.
type AuthEventKind string

const (
	EventInitialSession   AuthEventKind = "INITIAL_SESSION"
	EventSignedIn         AuthEventKind = "SIGNED_IN"
	EventSignedOut        AuthEventKind = "SIGNED_OUT"
	EventTokenRefreshed   AuthEventKind = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEventKind = "USER_UPDATED"
	EventPasswordRecovery AuthEventKind = "PASSWORD_RECOVERY"
)

// AuthEvent is one notification from the provider. Session is the session
// valid when the event fired, nil for sign-out. Seq is assigned by the
// Dispatcher and increases in delivery order.
type AuthEvent struct {
	Kind       AuthEventKind
	Session    *Session
	Seq        uint64
	OccurredAt time.Time
}

// HasSession reports whether the event carries a usable session.
func (e AuthEvent) HasSession() bool {
	return e.Session.Valid()
}
