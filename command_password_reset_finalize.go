package guardian

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// FinalizePasswordResetMessage sets a new password using a reset code
type FinalizePasswordResetMessage struct {
	Identity        string `json:"identity"`
	Code            string `json:"code"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (m FinalizePasswordResetMessage) Type() string { return "account.password_reset.finalize" }

func (m FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Identity, validation.Required, validation.Length(2, 254)),
		validation.Field(&m.Code, validation.Required),
		validation.Field(&m.Password, passwordRules...),
		validation.Field(&m.ConfirmPassword, validation.Required, matchesPassword(m.Password)),
	)
}

// ResetPassword checks the reset code and replaces the password. It also
// clears a pending require-new-password flag.
func (s *AccountService) ResetPassword(ctx context.Context, msg FinalizePasswordResetMessage) error {
	if err := ctxErr(ctx, "password reset finalization"); err != nil {
		return err
	}

	msg.Identity = strings.TrimSpace(msg.Identity)
	msg.Code = strings.TrimSpace(msg.Code)
	if err := msg.Validate(); err != nil {
		return asValidationError(err, "invalid password reset payload")
	}

	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	account, err := s.findLive(ctx, msg.Identity)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return NewValidationError("invalid or expired code", map[string]string{"code": "invalid or expired code"})
		}
		return err
	}

	if err := s.verifyCode(ctx, account, CodePurposePasswordReset, msg.Code); err != nil {
		return err
	}

	if _, err := s.store.SetPassword(ctx, account.ID, s.hasher.Hash(msg.Password)); err != nil {
		return err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Actor:     ActorRef{ID: account.ID, Type: "account"},
		AccountID: account.ID,
	})
	return nil
}
