package guardian

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountCreated         ActivityEventType = "account.created"
	ActivityEventAccountLocked          ActivityEventType = "account.locked"
	ActivityEventAccountUnlocked        ActivityEventType = "account.unlocked"
	ActivityEventPasswordResetRequired  ActivityEventType = "account.password.reset_required"
	ActivityEventPasswordResetRequested ActivityEventType = "account.password.reset_requested"
	ActivityEventPasswordReset          ActivityEventType = "account.password.reset"
	ActivityEventEmailConfirmed         ActivityEventType = "account.email.confirmed"
	ActivityEventAccountDeleted         ActivityEventType = "account.deleted"
	ActivityEventLoginSuccess           ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure           ActivityEventType = "auth.login.failure"
	ActivityEventLogout                 ActivityEventType = "auth.logout"
)

// ActorRef identifies who triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// SystemActor is used for actions not triggered by a caller
var SystemActor = ActorRef{ID: "system", Type: "system"}

// ActorFromClaims returns the actor for an authenticated caller
func ActorFromClaims(claims *Claims) ActorRef {
	if claims == nil {
		return ActorRef{Type: "anonymous"}
	}
	return ActorRef{ID: claims.Subject, Type: "account"}
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	AccountID  string
	FromState  AccountState
	ToState    AccountState
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

// recordActivity stamps and records event; failures are logged, never returned
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now().UTC()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed to record event", "event", event.EventType, "error", err)
	}
}
