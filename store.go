package guardian

import "context"

// CreateAccountCommand carries a validated, hashed account ready to persist
type CreateAccountCommand struct {
	ID               string
	Email            string
	Username         string
	Mobile           string
	PasswordHash     string
	UnconfirmedEmail string
}

// CredentialStore is the capability set the auth pipeline consumes. Every
// lookup and update excludes soft deleted accounts.
type CredentialStore interface {
	// FindByIdentity matches identity against email, username or mobile
	FindByIdentity(ctx context.Context, identity string) (*Account, error)
	// Create fails with Conflict when any identity is already taken
	Create(ctx context.Context, cmd CreateAccountCommand) (*Account, error)
	// Lock fails with Conflict when the account is already locked
	Lock(ctx context.Context, id string) (bool, error)
	// Unlock fails with Conflict when the account is not locked
	Unlock(ctx context.Context, id string) (bool, error)
	// Delete soft deletes a live account. With hard set it removes the
	// record, including one that was already soft deleted.
	Delete(ctx context.Context, id string, hard bool) (bool, error)
}

// AccountStore extends CredentialStore with the maintenance operations used
// by registration, password reset and login tracking.
type AccountStore interface {
	CredentialStore
	FindByID(ctx context.Context, id string) (*Account, error)
	RequireNewPassword(ctx context.Context, id string) (bool, error)
	// SetPassword also clears RequireNewPassword
	SetPassword(ctx context.Context, id, passwordHash string) (bool, error)
	ConfirmEmail(ctx context.Context, id string) (bool, error)
	TrackLogin(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// NewAccountFromCommand builds the record every store persists for cmd
func NewAccountFromCommand(cmd CreateAccountCommand) *Account {
	return &Account{
		ID:               cmd.ID,
		Email:            cmd.Email,
		Username:         cmd.Username,
		Mobile:           cmd.Mobile,
		PasswordHash:     cmd.PasswordHash,
		UnconfirmedEmail: cmd.UnconfirmedEmail,
	}
}
