package guardian

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const defaultOperationTimeout = 10 * time.Second

// AccountService runs the account level commands: registration, availability,
// confirmation, password reset and deletion.
type AccountService struct {
	store            AccountStore
	hasher           PasswordHasher
	codes            OneTimeCodes
	notifier         CodeNotifier
	activitySink     ActivitySink
	logger           Logger
	now              func() time.Time
	phoneRegion      string
	requireConfirm   bool
	deterministicIDs bool
	operationTimeout time.Duration
}

// AccountServiceOption customizes an AccountService
type AccountServiceOption func(*AccountService)

// WithOneTimeCodes enables email confirmation and password reset codes
func WithOneTimeCodes(codes OneTimeCodes, notifier CodeNotifier) AccountServiceOption {
	return func(s *AccountService) {
		s.codes = codes
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithEmailConfirmation makes new accounts with an email wait for confirmation
func WithEmailConfirmation(required bool) AccountServiceOption {
	return func(s *AccountService) {
		s.requireConfirm = required
	}
}

// WithDeterministicIDs derives account ids from the primary identity
func WithDeterministicIDs(enabled bool) AccountServiceOption {
	return func(s *AccountService) {
		s.deterministicIDs = enabled
	}
}

// WithPhoneRegion sets the region used to parse mobiles without a prefix
func WithPhoneRegion(region string) AccountServiceOption {
	return func(s *AccountService) {
		if region != "" {
			s.phoneRegion = region
		}
	}
}

// WithAccountActivitySink sets the sink used to publish account events
func WithAccountActivitySink(sink ActivitySink) AccountServiceOption {
	return func(s *AccountService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithAccountLogger overrides the service logger
func WithAccountLogger(logger Logger) AccountServiceOption {
	return func(s *AccountService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAccountClock injects a custom clock (useful for tests)
func WithAccountClock(clock func() time.Time) AccountServiceOption {
	return func(s *AccountService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewAccountService returns a service over store
func NewAccountService(store AccountStore, hasher PasswordHasher, opts ...AccountServiceOption) *AccountService {
	s := &AccountService{
		store:            store,
		hasher:           hasher,
		activitySink:     noopActivitySink{},
		logger:           newDefLogger(),
		now:              time.Now,
		phoneRegion:      DefaultPhoneRegion,
		operationTimeout: defaultOperationTimeout,
	}
	s.notifier = loggingNotifier(s)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// AvailabilityMessage asks whether an identity is free to register
type AvailabilityMessage struct {
	Identity string `json:"identity"`
}

func (m AvailabilityMessage) Type() string { return "account.availability" }

func (m AvailabilityMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Identity, validation.Required, validation.Length(3, 254)),
	)
}

// Available reports whether no live account uses the identity
func (s *AccountService) Available(ctx context.Context, msg AvailabilityMessage) (bool, error) {
	msg.Identity = strings.TrimSpace(msg.Identity)
	if err := msg.Validate(); err != nil {
		return false, asValidationError(err, "invalid availability request")
	}

	_, err := s.findLive(ctx, msg.Identity)
	switch {
	case err == nil:
		return false, nil
	case IsKind(err, KindNotFound):
		return true, nil
	default:
		return false, err
	}
}

// Find returns the live account matching identity
func (s *AccountService) Find(ctx context.Context, identity string) (*Account, error) {
	return s.findLive(ctx, strings.TrimSpace(identity))
}

// FindByID returns the live account with id
func (s *AccountService) FindByID(ctx context.Context, id string) (*Account, error) {
	return s.store.FindByID(ctx, id)
}

// Delete soft deletes account id, or removes it when hard is set
func (s *AccountService) Delete(ctx context.Context, actor ActorRef, id string, hard bool) error {
	if err := ctxErr(ctx, "account deletion"); err != nil {
		return err
	}
	if _, err := s.store.Delete(ctx, id, hard); err != nil {
		return err
	}
	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventAccountDeleted,
		Actor:     actor,
		AccountID: id,
		Metadata:  map[string]any{"hard": hard},
	})
	return nil
}

// findLive looks identity up as given (emails lower cased) and, failing
// that, as a normalized mobile number.
func (s *AccountService) findLive(ctx context.Context, identity string) (*Account, error) {
	return findByIdentity(ctx, s.store, identity, s.phoneRegion)
}

func findByIdentity(ctx context.Context, store CredentialStore, identity, region string) (*Account, error) {
	identity = normalizeIdentity(identity)
	account, err := store.FindByIdentity(ctx, identity)
	if err == nil || !IsKind(err, KindNotFound) {
		return account, err
	}
	if mobile, ok := mobileCandidate(identity, region); ok {
		return store.FindByIdentity(ctx, mobile)
	}
	return nil, err
}

func (s *AccountService) issueCode(ctx context.Context, account *Account, purpose string) error {
	if s.codes == nil {
		return nil
	}
	code, err := s.codes.Issue(ctx, purpose, account.ID)
	if err != nil {
		return NewInternalError(err, "failed to issue one-time code")
	}
	if err := s.notifier.Notify(ctx, account, purpose, code); err != nil {
		s.logger.Error("code notifier failed", "account_id", account.ID, "purpose", purpose, "error", err)
		return NewInternalError(err, "failed to deliver one-time code")
	}
	return nil
}

func (s *AccountService) verifyCode(ctx context.Context, account *Account, purpose, code string) error {
	if s.codes == nil {
		return NewInternalError(nil, "one-time codes are not configured")
	}
	ok, err := s.codes.Verify(ctx, purpose, account.ID, code)
	if err != nil {
		return NewInternalError(err, "failed to verify one-time code")
	}
	if !ok {
		return NewValidationError("invalid or expired code", map[string]string{"code": "invalid or expired code"})
	}
	return nil
}

func loggingNotifier(s *AccountService) CodeNotifier {
	return CodeNotifierFunc(func(_ context.Context, account *Account, purpose, _ string) error {
		s.logger.Info("one-time code issued without a notifier", "account_id", account.ID, "purpose", purpose)
		return nil
	})
}

func ctxErr(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during "+operation)
	default:
		return nil
	}
}

// normalizeIdentity trims identity and lower cases it when it is email
// shaped. Emails are stored lower case and usernames cannot contain '@'.
func normalizeIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if strings.Contains(identity, "@") {
		return strings.ToLower(identity)
	}
	return identity
}
