package guardian

import (
	"time"

	"github.com/uptrace/bun"
)

// Account is the durable identity record. At least one of Email, Username or
// Mobile is set. Locked and RequireNewPassword are independent and both gate
// login.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acct" bson:"-" json:"-"`

	ID                 string     `bun:"id,pk" bson:"_id" json:"id"`
	Email              string     `bun:"email,nullzero,unique" bson:"email,omitempty" json:"email,omitempty"`
	Username           string     `bun:"username,nullzero,unique" bson:"username,omitempty" json:"username,omitempty"`
	Mobile             string     `bun:"mobile,nullzero,unique" bson:"mobile,omitempty" json:"mobile,omitempty"`
	PasswordHash       string     `bun:"password_hash,notnull" bson:"password_hash" json:"-"`
	Locked             bool       `bun:"locked,notnull,default:false" bson:"locked" json:"locked"`
	RequireNewPassword bool       `bun:"require_new_password,notnull,default:false" bson:"require_new_password" json:"require_new_password"`
	UnconfirmedEmail   string     `bun:"unconfirmed_email,nullzero" bson:"unconfirmed_email,omitempty" json:"unconfirmed_email,omitempty"`
	LockedAt           *time.Time `bun:"locked_at,nullzero" bson:"locked_at,omitempty" json:"locked_at,omitempty"`
	PasswordChangedAt  *time.Time `bun:"password_changed_at,nullzero" bson:"password_changed_at,omitempty" json:"password_changed_at,omitempty"`
	LastLoginAt        *time.Time `bun:"last_login_at,nullzero" bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" bson:"updated_at" json:"updated_at"`
	DeletedAt          *time.Time `bun:"deleted_at,soft_delete,nullzero" bson:"deleted_at,omitempty" json:"-"`
}

// AccountIdentity adapts an account to the Identity interface
type AccountIdentity struct {
	account *Account
}

// IdentityOf returns the Identity view of account
func IdentityOf(account *Account) Identity {
	return AccountIdentity{account: account}
}

func (a AccountIdentity) ID() string       { return a.account.ID }
func (a AccountIdentity) Email() string    { return a.account.Email }
func (a AccountIdentity) Username() string { return a.account.Username }
func (a AccountIdentity) Mobile() string   { return a.account.Mobile }

// HasIdentity reports whether at least one login identity is set
func (a *Account) HasIdentity() bool {
	return a.Email != "" || a.Username != "" || a.Mobile != ""
}

// IsDeleted reports whether the account was soft deleted
func (a *Account) IsDeleted() bool {
	return a.DeletedAt != nil
}

// AwaitingEmailConfirmation reports whether the current email is unconfirmed
func (a *Account) AwaitingEmailConfirmation() bool {
	return a.UnconfirmedEmail != "" && a.UnconfirmedEmail == a.Email
}

// AccountView is the public projection of an account
type AccountView struct {
	ID       string       `json:"id"`
	Email    string       `json:"email,omitempty"`
	Username string       `json:"username,omitempty"`
	Mobile   string       `json:"mobile,omitempty"`
	State    AccountState `json:"state"`
	Created  time.Time    `json:"created_at"`
}

// View returns the public projection of a
func (a *Account) View() AccountView {
	return AccountView{
		ID:       a.ID,
		Email:    a.Email,
		Username: a.Username,
		Mobile:   a.Mobile,
		State:    StateOf(a),
		Created:  a.CreatedAt,
	}
}
