package guardian

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// RegisterAccountMessage is the signup payload
type RegisterAccountMessage struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Mobile          string `json:"mobile"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (m RegisterAccountMessage) Type() string { return "account.register" }

func (m RegisterAccountMessage) Validate() error {
	err := validation.ValidateStruct(&m,
		validation.Field(&m.Email, is.Email, validation.Length(3, 254)),
		validation.Field(&m.Username, usernameRules...),
		validation.Field(&m.Mobile, validation.Length(4, 32)),
		validation.Field(&m.Password, passwordRules...),
		validation.Field(&m.ConfirmPassword, validation.Required, matchesPassword(m.Password)),
	)
	if err != nil {
		return err
	}
	if m.Email == "" && m.Username == "" && m.Mobile == "" {
		return validation.Errors{"identity": errors.New(MsgMissingIdentity)}
	}
	return nil
}

func (m RegisterAccountMessage) normalized() RegisterAccountMessage {
	m.Email = normalizeIdentity(m.Email)
	m.Username = strings.TrimSpace(m.Username)
	m.Mobile = strings.TrimSpace(m.Mobile)
	return m
}

// Register validates msg, hashes the password and creates the account
func (s *AccountService) Register(ctx context.Context, msg RegisterAccountMessage) (*Account, error) {
	if err := ctxErr(ctx, "account registration"); err != nil {
		return nil, err
	}

	msg = msg.normalized()
	if err := msg.Validate(); err != nil {
		return nil, asValidationError(err, "invalid account payload")
	}

	if msg.Mobile != "" {
		mobile, err := NormalizeMobile(msg.Mobile, s.phoneRegion)
		if err != nil {
			return nil, NewValidationError("invalid account payload", map[string]string{"mobile": err.Error()})
		}
		msg.Mobile = mobile
	}

	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	cmd := CreateAccountCommand{
		ID:           s.newAccountID(msg),
		Email:        msg.Email,
		Username:     msg.Username,
		Mobile:       msg.Mobile,
		PasswordHash: s.hasher.Hash(msg.Password),
	}
	if s.requireConfirm && msg.Email != "" {
		cmd.UnconfirmedEmail = msg.Email
	}

	account, err := s.store.Create(ctx, cmd)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventAccountCreated,
		Actor:     ActorRef{ID: account.ID, Type: "account"},
		AccountID: account.ID,
		ToState:   StateOf(account),
	})

	if account.AwaitingEmailConfirmation() {
		if err := s.issueCode(ctx, account, CodePurposeEmailConfirmation); err != nil {
			s.logger.Warn("account created but confirmation code not issued", "account_id", account.ID, "error", err)
		}
	}

	return account, nil
}

func (s *AccountService) newAccountID(msg RegisterAccountMessage) string {
	if s.deterministicIDs {
		seed := firstNonEmpty(msg.Email, msg.Username, msg.Mobile)
		if id, err := hashid.NewUUID(seed); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
