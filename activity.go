package auth

import (
	"context"
	"errors"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignup               ActivityEventType = "auth.signup"
	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventPasswordResetRequest ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetSuccess ActivityEventType = "auth.password.reset"
	ActivityEventPasswordResetFailure ActivityEventType = "auth.password.reset_failed"
	ActivityEventLogout               ActivityEventType = "auth.logout"
)

// ActivityEvent captures audit-friendly information about an action.
// Identifier is empty when the account is unknown or anonymous.
type ActivityEvent struct {
	EventType  ActivityEventType
	Identifier string
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

// MultiActivitySink fans an event out to every sink and joins their errors
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogActivitySink writes events to a Logger with redacted identifiers
type LogActivitySink struct {
	Logger Logger
}

// Record implements ActivitySink.
func (s LogActivitySink) Record(_ context.Context, event ActivityEvent) error {
	who := "anonymous"
	if event.Identifier != "" {
		who = RedactIdentifier(event.Identifier)
	}
	normalizeLogger(s.Logger).Info("activity %s by %s", event.EventType, who)
	return nil
}

type activityRecorder struct {
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

// record is best effort, a failing sink never fails the operation
func (r activityRecorder) record(ctx context.Context, eventType ActivityEventType, identifier string, metadata map[string]any) {
	now := time.Now
	if r.now != nil {
		now = r.now
	}

	event := ActivityEvent{
		EventType:  eventType,
		Identifier: identifier,
		Metadata:   metadata,
		OccurredAt: now().UTC(),
	}

	if err := normalizeActivitySink(r.sink).Record(ctx, event); err != nil {
		normalizeLogger(r.logger).Warn("activity sink error during %s: %v", eventType, err)
	}
}
