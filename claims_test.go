package guardian_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-guardian"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func newClaims() *guardian.Claims {
	return &guardian.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acct-1",
			Issuer:    "guardian-test",
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(fixedNow),
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
		},
		Email:    "alice@example.com",
		Username: "alice",
		Mobile:   "+12015550123",
	}
}

func TestClaimsAccessors(t *testing.T) {
	c := newClaims()
	assert.Equal(t, "acct-1", c.SubjectID())
	assert.Equal(t, "jti-1", c.TokenID())
	assert.Equal(t, fixedNow, c.Issued())
	assert.Equal(t, fixedNow.Add(time.Hour), c.Expires())

	var empty *guardian.Claims
	assert.Empty(t, empty.SubjectID())
	assert.Empty(t, empty.TokenID())
	assert.True(t, empty.Expires().IsZero())
	assert.True(t, (&guardian.Claims{}).Issued().IsZero())
}

func TestClaimsHasIdentity(t *testing.T) {
	c := newClaims()
	tests := []struct {
		attr  string
		value string
		want  bool
	}{
		{guardian.IdentityAttrID, "acct-1", true},
		{guardian.IdentityAttrEmail, "alice@example.com", true},
		{guardian.IdentityAttrEmail, "Alice@Example.com", true},
		{guardian.IdentityAttrUsername, "alice", true},
		{guardian.IdentityAttrMobile, "+12015550123", true},
		{guardian.IdentityAttrUsername, "alice@example.com", false},
		{guardian.IdentityAttrID, "alice", false},
		{guardian.IdentityAttrEmail, "acct-1", false},
		{"role", "alice", false},
		{guardian.IdentityAttrID, "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.HasIdentity(tt.attr, tt.value), "%s:%s", tt.attr, tt.value)
	}

	var empty *guardian.Claims
	assert.False(t, empty.HasIdentity(guardian.IdentityAttrID, "acct-1"))
}

func TestClaimsEqual(t *testing.T) {
	a, b := newClaims(), newClaims()
	assert.True(t, a.Equal(b))

	b.ExpiresAt = jwt.NewNumericDate(fixedNow.Add(time.Hour + 300*time.Millisecond))
	assert.True(t, a.Equal(b), "sub second differences are ignored")

	b.ID = "jti-2"
	assert.False(t, a.Equal(b))

	var empty *guardian.Claims
	assert.False(t, a.Equal(empty))
	assert.True(t, empty.Equal(nil))
}
