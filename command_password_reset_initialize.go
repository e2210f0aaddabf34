package guardian

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// InitializePasswordResetMessage starts a reset for an identity
type InitializePasswordResetMessage struct {
	Identity string `json:"identity"`
}

func (m InitializePasswordResetMessage) Type() string { return "account.password_reset.initialize" }

func (m InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Identity, validation.Required, validation.Length(2, 254)),
	)
}

// RequestPasswordReset issues a reset code for the account matching the
// identity. Unknown identities succeed silently.
func (s *AccountService) RequestPasswordReset(ctx context.Context, msg InitializePasswordResetMessage) error {
	if err := ctxErr(ctx, "password reset initialization"); err != nil {
		return err
	}

	msg.Identity = strings.TrimSpace(msg.Identity)
	if err := msg.Validate(); err != nil {
		return asValidationError(err, "invalid password reset request")
	}

	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	account, err := s.findLive(ctx, msg.Identity)
	if err != nil {
		if IsKind(err, KindNotFound) {
			s.logger.Debug("password reset requested for unknown identity")
			return nil
		}
		return err
	}

	if err := s.issueCode(ctx, account, CodePurposePasswordReset); err != nil {
		return err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		Actor:     ActorRef{ID: account.ID, Type: "account"},
		AccountID: account.ID,
	})
	return nil
}
