package activitymap

import (
	"context"
	"log/slog"
	"strings"
	"time"

	auth "github.com/goliatone/go-authcore"
)

const (
	// MetadataKeyOutcome is set to success or failure from the event type.
	MetadataKeyOutcome = "outcome"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "account"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
// Identifiers are redacted unless WithRawIdentifiers is used.
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
	rawIdentifiers   bool
	objectIDResolver func(auth.ActivityEvent) string
}

// Normalize converts an auth.ActivityEvent into a generic normalized shape.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	identifier := strings.TrimSpace(event.Identifier)
	if identifier != "" && !options.rawIdentifiers {
		identifier = auth.RedactIdentifier(identifier)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    firstNonEmpty(identifier, options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   resolveObjectID(event, identifier, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
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
func WithObjectIDResolver(resolver func(auth.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used for anonymous events.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithRawIdentifiers keeps identifiers as recorded. Only for sinks that
// are allowed to store personal data.
func WithRawIdentifiers() Option {
	return func(opts *normalizeOptions) {
		opts.rawIdentifiers = true
	}
}

// SlogSink is an auth.ActivitySink writing one structured record per event
type SlogSink struct {
	logger *slog.Logger
	opts   []Option
}

var _ auth.ActivitySink = (*SlogSink)(nil)

func NewSlogSink(logger *slog.Logger, opts ...Option) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger, opts: opts}
}

// Record implements auth.ActivitySink.
func (s *SlogSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	n := Normalize(event, s.opts...)

	attrs := []slog.Attr{
		slog.String("actor_id", n.ActorID),
		slog.String("verb", n.Verb),
		slog.String("object_type", n.ObjectType),
		slog.String("channel", n.Channel),
		slog.Time("occurred_at", n.OccurredAt),
	}
	if n.ObjectID != "" {
		attrs = append(attrs, slog.String("object_id", n.ObjectID))
	}
	if len(n.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", n.Metadata))
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "activity", attrs...)
	return nil
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(event auth.ActivityEvent, identifier string, resolver func(auth.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return identifier
}

func normalizeMetadata(event auth.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	if outcome := outcomeOf(event.EventType); outcome != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyOutcome]; !exists {
			metadata[MetadataKeyOutcome] = outcome
		}
	}

	return metadata
}

func outcomeOf(eventType auth.ActivityEventType) string {
	switch eventType {
	case auth.ActivityEventLoginFailure, auth.ActivityEventPasswordResetFailure:
		return "failure"
	case auth.ActivityEventLoginSuccess, auth.ActivityEventPasswordResetSuccess, auth.ActivityEventSignup:
		return "success"
	default:
		return ""
	}
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
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
