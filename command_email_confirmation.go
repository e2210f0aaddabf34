package guardian

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// ConfirmEmailMessage confirms the email of an account with a code
type ConfirmEmailMessage struct {
	Identity string `json:"identity"`
	Code     string `json:"code"`
}

func (m ConfirmEmailMessage) Type() string { return "account.email.confirm" }

func (m ConfirmEmailMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Identity, validation.Required, validation.Length(2, 254)),
		validation.Field(&m.Code, validation.Required),
	)
}

// ConfirmEmail verifies the confirmation code and clears the pending email
func (s *AccountService) ConfirmEmail(ctx context.Context, msg ConfirmEmailMessage) error {
	if err := ctxErr(ctx, "email confirmation"); err != nil {
		return err
	}

	msg.Identity = strings.TrimSpace(msg.Identity)
	msg.Code = strings.TrimSpace(msg.Code)
	if err := msg.Validate(); err != nil {
		return asValidationError(err, "invalid confirmation payload")
	}

	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	account, err := s.findLive(ctx, msg.Identity)
	if err != nil {
		return err
	}
	if !account.AwaitingEmailConfirmation() {
		return NewConflictError("the email is already confirmed")
	}

	if err := s.verifyCode(ctx, account, CodePurposeEmailConfirmation, msg.Code); err != nil {
		return err
	}

	if _, err := s.store.ConfirmEmail(ctx, account.ID); err != nil {
		return err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventEmailConfirmed,
		Actor:     ActorRef{ID: account.ID, Type: "account"},
		AccountID: account.ID,
		FromState: AccountStatePendingEmailConfirmation,
	})
	return nil
}

// ResendConfirmation notifies the confirmation code again. An unexpired code
// is reused.
func (s *AccountService) ResendConfirmation(ctx context.Context, identity string) error {
	account, err := s.findLive(ctx, strings.TrimSpace(identity))
	if err != nil {
		if IsKind(err, KindNotFound) {
			return nil
		}
		return err
	}
	if !account.AwaitingEmailConfirmation() {
		return nil
	}
	return s.issueCode(ctx, account, CodePurposeEmailConfirmation)
}
