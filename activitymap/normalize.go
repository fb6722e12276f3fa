// Package activitymap turns auth activity into a flat record for audit
// logs and downstream consumers.
package activitymap

import (
	"context"
	"strconv"
	"strings"
	"time"

	auth "github.com/tupahub/go-auth"
)

const (
	// MetadataKeyRole stores the effective role at the time of the event.
	MetadataKeyRole = "role"
	// MetadataKeySeq stores the dispatcher sequence number.
	MetadataKeySeq = "seq"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "profile"
	defaultActorID    = "anonymous"
)

// Record is a transport-agnostic activity shape.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
	objectID      func(auth.ActivityEvent) string
}

// Normalize converts an auth.ActivityEvent into a Record.
func Normalize(event auth.ActivityEvent, opts ...Option) Record {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	objectID := strings.TrimSpace(event.UserID)
	if o.objectID != nil {
		objectID = strings.TrimSpace(o.objectID(event))
	}

	return Record{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.UserID), o.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   objectID,
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt,
	}
}

// Sink returns an auth.ActivitySink that normalizes every event and hands
// it to publish.
func Sink(publish func(ctx context.Context, record Record) error, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		if publish == nil {
			return nil
		}
		return publish(ctx, Normalize(event, opts...))
	})
}

// WithChannel sets the channel for records.
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType sets the object type for records.
func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object id extraction.
func WithObjectIDResolver(resolver func(auth.ActivityEvent) string) Option {
	return func(o *options) {
		o.objectID = resolver
	}
}

// WithActorFallback sets the actor id used when the event has no user.
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

func metadata(event auth.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+2)
	for key, value := range event.Metadata {
		out[key] = value
	}

	if event.Role != "" {
		if _, exists := out[MetadataKeyRole]; !exists {
			out[MetadataKeyRole] = event.Role.String()
		}
	}
	if event.Seq != 0 {
		out[MetadataKeySeq] = strconv.FormatUint(event.Seq, 10)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
