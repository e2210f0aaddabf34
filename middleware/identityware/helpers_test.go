package identityware_test

import (
	"net/http"
	"testing"
	"time"

	guardian "github.com/goliatone/go-guardian"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	cookieName string
}

func (c testConfig) GetSigningKey() string     { return "identityware-test-key-0123456789" }
func (c testConfig) GetTokenIssuer() string    { return "guardian-test" }
func (c testConfig) GetTokenExpiration() int   { return 1 }
func (c testConfig) GetTokenLookup() string    { return "" }
func (c testConfig) GetAuthScheme() string     { return "" }
func (c testConfig) GetCookieName() string     { return c.cookieName }
func (c testConfig) GetCookiePath() string     { return "/" }
func (c testConfig) GetCookieDomain() string   { return "" }
func (c testConfig) GetCookieSecure() bool     { return false }
func (c testConfig) GetCookieSameSite() string { return "lax" }
func (c testConfig) GetCookieMaxAge() int      { return 3600 }
func (c testConfig) GetResponseHeader() string { return "" }

type pipeline struct {
	codec      *guardian.TokenCodec
	authorizer *guardian.Authorizer
}

func newPipeline(cookieName string, opts ...guardian.AuthorizerOption) *pipeline {
	cfg := testConfig{cookieName: cookieName}
	codec := guardian.NewTokenCodec(cfg)
	return &pipeline{
		codec: codec,
		authorizer: guardian.NewAuthorizer(
			guardian.NewIdentityExtractor(codec, guardian.DefaultTokenLookup(guardian.DefaultCookieName), ""),
			guardian.NewCredentialWriter(cfg),
			opts...,
		),
	}
}

type account struct{ id string }

func (a account) ID() string       { return a.id }
func (a account) Email() string    { return "" }
func (a account) Username() string { return "alice" }
func (a account) Mobile() string   { return "" }

func (p *pipeline) issue(t *testing.T) (string, *guardian.Claims) {
	t.Helper()
	token, claims, err := p.codec.Issue(account{id: "acct-1"})
	require.NoError(t, err)
	return token, claims
}

// expiredToken is signed with the right key but expired an hour ago
func (p *pipeline) expiredToken(t *testing.T) string {
	t.Helper()
	past := guardian.NewTokenCodec(testConfig{}, guardian.WithTokenClock(func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	}))
	token, _, err := past.Issue(account{id: "acct-1"})
	require.NoError(t, err)
	return token
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
