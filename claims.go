package guardian

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed credential carried by a request. It is never mutated
// after issuance; logging out discards it.
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
}

// SubjectID returns the account id the claims were issued for
func (c *Claims) SubjectID() string {
	if c == nil {
		return ""
	}
	return c.RegisteredClaims.Subject
}

// TokenID returns the unique token id (jti)
func (c *Claims) TokenID() string {
	if c == nil {
		return ""
	}
	return c.RegisteredClaims.ID
}

// Expires returns the expiry time, zero if unset
func (c *Claims) Expires() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued returns the issued-at time, zero if unset
func (c *Claims) Issued() time.Time {
	if c == nil || c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// Claim identity attributes accepted by HasIdentity
const (
	IdentityAttrID       = "id"
	IdentityAttrEmail    = "email"
	IdentityAttrUsername = "username"
	IdentityAttrMobile   = "mobile"
)

// HasIdentity reports whether the claims carry value in attribute attr.
// Emails compare case-insensitively. Unknown attributes never match.
func (c *Claims) HasIdentity(attr, value string) bool {
	if c == nil || value == "" {
		return false
	}
	switch attr {
	case IdentityAttrID:
		return value == c.Subject
	case IdentityAttrEmail:
		return strings.EqualFold(value, c.Email)
	case IdentityAttrUsername:
		return value == c.Username
	case IdentityAttrMobile:
		return value == c.Mobile
	}
	return false
}

// Equal compares two claims field by field at second resolution
func (c *Claims) Equal(other *Claims) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Subject == other.Subject &&
		c.Issuer == other.Issuer &&
		c.ID == other.ID &&
		c.Email == other.Email &&
		c.Username == other.Username &&
		c.Mobile == other.Mobile &&
		c.Expires().Unix() == other.Expires().Unix() &&
		c.Issued().Unix() == other.Issued().Unix()
}
