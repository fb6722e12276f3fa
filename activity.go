package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignedIn       ActivityEventType = "auth.signed_in"
	ActivityEventSignedOut      ActivityEventType = "auth.signed_out"
	ActivityEventTokenRefreshed ActivityEventType = "auth.token_refreshed"
	ActivityEventUserUpdated    ActivityEventType = "auth.user_updated"
	ActivityEventRecovery       ActivityEventType = "auth.password_recovery"
	ActivityEventProfileSynced  ActivityEventType = "auth.profile_synced"
)

// ActivityEvent captures audit-friendly information about an auth event.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Role       Role
	Seq        uint64
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

var activityTypes = map[AuthEventKind]ActivityEventType{
	EventSignedIn:         ActivityEventSignedIn,
	EventSignedOut:        ActivityEventSignedOut,
	EventTokenRefreshed:   ActivityEventTokenRefreshed,
	EventUserUpdated:      ActivityEventUserUpdated,
	EventPasswordRecovery: ActivityEventRecovery,
}

// ActivityListener forwards auth events to sink. Sink failures are logged,
// never returned, so auditing can not affect the auth flow.
func ActivityListener(sink ActivitySink, logger Logger) Listener {
	sink = normalizeActivitySink(sink)
	if logger == nil {
		logger = defLogger{}
	}

	return ListenerFunc(func(ctx context.Context, event AuthEvent) error {
		eventType, ok := activityTypes[event.Kind]
		if !ok {
			return nil
		}

		activity := ActivityEvent{
			EventType:  eventType,
			Seq:        event.Seq,
			OccurredAt: event.OccurredAt,
			Metadata:   map[string]any{"kind": string(event.Kind)},
		}
		if event.HasSession() {
			activity.UserID = event.Session.User.ID
			if role, ok := event.Session.Role(); ok {
				activity.Role = role
			}
			userClaim, appClaim := event.Session.User.RoleClaims()
			activity.Metadata["user_role_claim"] = userClaim.Value
			activity.Metadata["app_role_claim"] = appClaim.Value
		}

		if err := sink.Record(ctx, activity); err != nil {
			logger.Warn("activity sink error on %s: %v", event.Kind, err)
		}
		return nil
	})
}
