package activitymap

import (
	"context"
	"strings"
	"time"

	authclient "github.com/goliatone/go-authclient"
)

const (
	// MetadataKeyEmail stores the email of the account the event refers to.
	MetadataKeyEmail = "email"
	// MetadataKeyOutcome stores "success" or "failure".
	MetadataKeyOutcome = "outcome"
)

const (
	defaultChannel    = "authclient"
	defaultObjectType = "session"
	defaultActorID    = "anonymous"
)

var failureEvents = map[authclient.ActivityEventType]bool{
	authclient.ActivityEventLoginFailure:   true,
	authclient.ActivityEventRefreshFailure: true,
	authclient.ActivityEventForcedLogout:   true,
}

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(authclient.ActivityEvent) string
	now              func() time.Time
}

// Normalize converts an authclient.ActivityEvent into a generic normalized shape.
func Normalize(event authclient.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.UserID), options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// NewSink returns an ActivitySink that hands every normalized record to emit.
func NewSink(emit func(context.Context, Normalized) error, opts ...Option) authclient.ActivitySink {
	return authclient.ActivitySinkFunc(func(ctx context.Context, event authclient.ActivityEvent) error {
		if emit == nil {
			return nil
		}
		return emit(ctx, Normalize(event, opts...))
	})
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(authclient.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used for events without a user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

// WithClock sets the clock used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func resolveObjectID(event authclient.ActivityEvent, resolver func(authclient.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.UserID)
}

func normalizeMetadata(event authclient.ActivityEvent) map[string]any {
	metadata := make(map[string]any, len(event.Metadata)+2)
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	if email := strings.TrimSpace(event.Email); email != "" {
		if _, exists := metadata[MetadataKeyEmail]; !exists {
			metadata[MetadataKeyEmail] = email
		}
	}

	outcome := "success"
	if failureEvents[event.EventType] {
		outcome = "failure"
	}
	metadata[MetadataKeyOutcome] = outcome
	return metadata
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
