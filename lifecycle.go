package guardian

import (
	"context"
	"errors"
	"time"
)

// AccountState is the login gating state of an account
type AccountState string

const (
	AccountStateActive                   AccountState = "active"
	AccountStateLocked                   AccountState = "locked"
	AccountStatePasswordResetRequired    AccountState = "password_reset_required"
	AccountStatePendingEmailConfirmation AccountState = "pending_email_confirmation"
)

var errRequireNewPasswordUnsupported = errors.New("credential store does not support require new password")

// StateOf reports the gating state of account without checking a password.
// Locked wins over a pending reset, which wins over a pending confirmation.
func StateOf(account *Account) AccountState {
	switch {
	case account == nil:
		return ""
	case account.Locked:
		return AccountStateLocked
	case account.RequireNewPassword:
		return AccountStatePasswordResetRequired
	case account.AwaitingEmailConfirmation():
		return AccountStatePendingEmailConfirmation
	default:
		return AccountStateActive
	}
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor     ActorRef
	AccountID string
	To        AccountState
	Meta      TransitionMetadata
}

// TransitionHook is executed before or after a transition. A before hook
// error aborts the transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single administrative transition.
type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the store update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the store update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// LifecycleGuard gates session creation on account state and performs the
// administrative lock transitions.
type LifecycleGuard struct {
	store        CredentialStore
	hasher       PasswordHasher
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

// LifecycleGuardOption customizes guard construction.
type LifecycleGuardOption func(*LifecycleGuard)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleGuardOption {
	return func(g *LifecycleGuard) {
		if clock != nil {
			g.now = clock
		}
	}
}

// WithLifecycleActivitySink sets the sink used to publish transitions.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleGuardOption {
	return func(g *LifecycleGuard) {
		g.activitySink = normalizeActivitySink(sink)
	}
}

// WithLifecycleLogger overrides the guard logger.
func WithLifecycleLogger(logger Logger) LifecycleGuardOption {
	return func(g *LifecycleGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewLifecycleGuard returns a guard backed by store
func NewLifecycleGuard(store CredentialStore, hasher PasswordHasher, opts ...LifecycleGuardOption) *LifecycleGuard {
	g := &LifecycleGuard{
		store:        store,
		hasher:       hasher,
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       newDefLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Evaluate decides whether password opens a session for account. The
// password is checked before any state so that state specific errors are
// only ever shown to callers holding the right password. A nil account
// still hashes password and fails with InvalidCredentials.
func (g *LifecycleGuard) Evaluate(account *Account, password string) (AccountState, error) {
	var digest string
	if account != nil {
		digest = account.PasswordHash
	}
	if !passwordMatches(g.hasher, password, digest) || account == nil {
		return "", NewInvalidCredentialsError()
	}

	switch StateOf(account) {
	case AccountStateLocked:
		return AccountStateLocked, NewAccountLockedError()
	case AccountStatePasswordResetRequired:
		return AccountStatePasswordResetRequired, NewPasswordResetRequiredError()
	case AccountStatePendingEmailConfirmation:
		return AccountStatePendingEmailConfirmation, NewEmailUnconfirmedError()
	}
	return AccountStateActive, nil
}

// Lock locks account id. Locking a locked account is a Conflict.
func (g *LifecycleGuard) Lock(ctx context.Context, actor ActorRef, id string, opts ...TransitionOption) error {
	return g.transition(ctx, actor, id, AccountStateLocked, ActivityEventAccountLocked, g.store.Lock, opts...)
}

// Unlock unlocks account id. Unlocking an unlocked account is a Conflict.
func (g *LifecycleGuard) Unlock(ctx context.Context, actor ActorRef, id string, opts ...TransitionOption) error {
	return g.transition(ctx, actor, id, AccountStateActive, ActivityEventAccountUnlocked, g.store.Unlock, opts...)
}

// RequireNewPassword forces account id through a password reset before its
// next login.
func (g *LifecycleGuard) RequireNewPassword(ctx context.Context, actor ActorRef, id string, opts ...TransitionOption) error {
	requirer, ok := g.store.(interface {
		RequireNewPassword(ctx context.Context, id string) (bool, error)
	})
	if !ok {
		return NewInternalError(errRequireNewPasswordUnsupported, "unable to require new password")
	}
	return g.transition(ctx, actor, id, AccountStatePasswordResetRequired, ActivityEventPasswordResetRequired, requirer.RequireNewPassword, opts...)
}

func (g *LifecycleGuard) transition(
	ctx context.Context,
	actor ActorRef,
	id string,
	target AccountState,
	eventType ActivityEventType,
	apply func(ctx context.Context, id string) (bool, error),
	opts ...TransitionOption,
) error {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	tc := TransitionContext{
		Actor:     actor,
		AccountID: id,
		To:        target,
		Meta:      options.metadata,
	}

	if err := runTransitionHooks(ctx, options.beforeHooks, tc); err != nil {
		return err
	}

	if _, err := apply(ctx, id); err != nil {
		g.logger.Info("lifecycle transition rejected", "account_id", id, "target", target, "error", err)
		return err
	}

	if err := runTransitionHooks(ctx, options.afterHooks, tc); err != nil {
		return err
	}

	metadata := map[string]any{}
	if tc.Meta.Reason != "" {
		metadata["reason"] = tc.Meta.Reason
	}
	for k, v := range tc.Meta.Metadata {
		metadata[k] = v
	}

	recordActivity(ctx, g.activitySink, g.logger, g.now, ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: id,
		ToState:   target,
		Metadata:  metadata,
	})
	return nil
}

func runTransitionHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if err := hook(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}
