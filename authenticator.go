package guardian

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// LoginMessage is the login payload
type LoginMessage struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

func (m LoginMessage) Type() string { return "session.login" }

func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Identity, validation.Required, validation.Length(2, 254)),
		validation.Field(&m.Password, validation.Required),
	)
}

// Session is the outcome of a successful login
type Session struct {
	Token   string
	Claims  *Claims
	Account *Account
}

// Authenticator opens and closes sessions
type Authenticator struct {
	store        CredentialStore
	guard        *LifecycleGuard
	issuer       TokenIssuer
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
	phoneRegion  string
}

// AuthenticatorOption customizes an Authenticator
type AuthenticatorOption func(*Authenticator)

// WithAuthenticatorActivitySink configures the sink for login events
func WithAuthenticatorActivitySink(sink ActivitySink) AuthenticatorOption {
	return func(a *Authenticator) {
		a.activitySink = normalizeActivitySink(sink)
	}
}

// WithAuthenticatorLogger overrides the authenticator logger
func WithAuthenticatorLogger(logger Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAuthenticatorClock injects a custom clock (useful for tests)
func WithAuthenticatorClock(clock func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if clock != nil {
			a.now = clock
		}
	}
}

// WithAuthenticatorPhoneRegion sets the region used to read mobile identities
func WithAuthenticatorPhoneRegion(region string) AuthenticatorOption {
	return func(a *Authenticator) {
		if region != "" {
			a.phoneRegion = region
		}
	}
}

// NewAuthenticator wires the store, the lifecycle guard and the token issuer
func NewAuthenticator(store CredentialStore, guard *LifecycleGuard, issuer TokenIssuer, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		store:        store,
		guard:        guard,
		issuer:       issuer,
		activitySink: noopActivitySink{},
		logger:       newDefLogger(),
		now:          time.Now,
		phoneRegion:  DefaultPhoneRegion,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Login checks the credentials and account state and issues a credential.
// Unknown identities fail exactly like wrong passwords.
func (a *Authenticator) Login(ctx context.Context, msg LoginMessage) (*Session, error) {
	if err := ctxErr(ctx, "login"); err != nil {
		return nil, err
	}

	msg.Identity = strings.TrimSpace(msg.Identity)
	if err := msg.Validate(); err != nil {
		return nil, asValidationError(err, "invalid login payload")
	}

	account, err := findByIdentity(ctx, a.store, msg.Identity, a.phoneRegion)
	if err != nil {
		if IsKind(err, KindNotFound) {
			// unknown identities cost one hash, same as a wrong password
			_, err = a.guard.Evaluate(nil, msg.Password)
			a.loginFailed(ctx, "", msg.Identity, "", err)
			return nil, err
		}
		a.logger.Error("login account lookup failed", "error", err)
		return nil, err
	}

	state, err := a.guard.Evaluate(account, msg.Password)
	if err != nil {
		a.loginFailed(ctx, account.ID, msg.Identity, state, err)
		return nil, err
	}

	token, claims, err := a.issuer.Issue(IdentityOf(account))
	if err != nil {
		a.logger.Error("login failed to issue credential", "account_id", account.ID, "error", err)
		a.loginFailed(ctx, account.ID, msg.Identity, state, err)
		return nil, err
	}

	if tracker, ok := a.store.(interface {
		TrackLogin(ctx context.Context, id string) error
	}); ok {
		if err := tracker.TrackLogin(ctx, account.ID); err != nil {
			a.logger.Warn("failed to track successful login", "account_id", account.ID, "error", err)
		}
	}

	recordActivity(ctx, a.activitySink, a.logger, a.now, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorFromClaims(claims),
		AccountID: account.ID,
		Metadata:  map[string]any{"jti": claims.ID},
	})

	return &Session{Token: token, Claims: claims, Account: account}, nil
}

// SignIn logs in and remembers the new credential on the request identity
// so the authorizer writes it to the response.
func (a *Authenticator) SignIn(ctx context.Context, msg LoginMessage) (*Session, error) {
	session, err := a.Login(ctx, msg)
	if err != nil {
		return nil, err
	}
	if err := Remember(ctx, session.Token, session.Claims); err != nil {
		return nil, err
	}
	return session, nil
}

// Logout forgets the request identity; the authorizer clears the credential
func (a *Authenticator) Logout(ctx context.Context) error {
	claims, _ := ClaimsFromContext(ctx)
	if err := Forget(ctx); err != nil {
		return err
	}
	if claims != nil {
		recordActivity(ctx, a.activitySink, a.logger, a.now, ActivityEvent{
			EventType: ActivityEventLogout,
			Actor:     ActorFromClaims(claims),
			AccountID: claims.Subject,
			Metadata:  map[string]any{"jti": claims.ID},
		})
	}
	return nil
}

func (a *Authenticator) loginFailed(ctx context.Context, accountID, identity string, state AccountState, err error) {
	recordActivity(ctx, a.activitySink, a.logger, a.now, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{Type: "anonymous"},
		AccountID: accountID,
		FromState: state,
		Metadata: map[string]any{
			"identity": identity,
			"reason":   string(KindOf(err)),
		},
	})
}
