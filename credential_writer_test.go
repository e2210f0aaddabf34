package guardian_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-guardian"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialWriter_WritesCookie(t *testing.T) {
	cfg := newTestConfig()
	cfg.cookieDomain = "example.com"
	cfg.cookieSecure = true
	cfg.cookieSameSite = "strict"

	writer := guardian.NewCredentialWriter(cfg)
	transport := newFakeTransport()

	identity := guardian.NewRequestIdentity(nil, "")
	identity.Remember("signed-token", &guardian.Claims{})
	require.NoError(t, writer.Write(transport, identity))

	require.Len(t, transport.setCookies, 1)
	cookie := transport.setCookies[0]
	assert.Equal(t, "guardian-id", cookie.Name)
	assert.Equal(t, "signed-token", cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, "example.com", cookie.Domain)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.True(t, cookie.Expires.After(time.Now()))
	assert.Empty(t, transport.setHeaders)
}

func TestCredentialWriter_RemovalCookie(t *testing.T) {
	writer := guardian.NewCredentialWriter(newTestConfig())
	transport := newFakeTransport()

	identity := guardian.NewRequestIdentity(&guardian.Claims{}, "old")
	identity.Forget()
	require.NoError(t, writer.Write(transport, identity))

	require.Len(t, transport.setCookies, 1)
	cookie := transport.setCookies[0]
	assert.Equal(t, "guardian-id", cookie.Name)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
	assert.True(t, cookie.Expires.Before(time.Now()))
}

func TestCredentialWriter_ResponseHeader(t *testing.T) {
	cfg := newTestConfig()
	cfg.responseHeader = "X-Auth-Token"
	writer := guardian.NewCredentialWriter(cfg)

	transport := newFakeTransport()
	identity := guardian.NewRequestIdentity(nil, "")
	identity.Remember("signed-token", &guardian.Claims{})
	require.NoError(t, writer.Write(transport, identity))
	assert.Equal(t, "Bearer signed-token", transport.setHeaders["X-Auth-Token"])

	transport = newFakeTransport()
	identity.Forget()
	require.NoError(t, writer.Write(transport, identity))
	assert.Empty(t, transport.setHeaders)
}

func TestCredentialWriter_InvalidCookieLeavesResponseUntouched(t *testing.T) {
	cfg := newTestConfig()
	cfg.cookieName = "bad name;"
	cfg.responseHeader = "X-Auth-Token"
	writer := guardian.NewCredentialWriter(cfg)

	transport := newFakeTransport()
	identity := guardian.NewRequestIdentity(nil, "")
	identity.Remember("signed-token", &guardian.Claims{})

	err := writer.Write(transport, identity)
	require.Error(t, err)
	assert.True(t, guardian.IsKind(err, guardian.KindCredentialWrite))
	assert.Empty(t, transport.setCookies)
	assert.Empty(t, transport.setHeaders)
}

func TestSameSiteString(t *testing.T) {
	assert.Equal(t, "Strict", guardian.SameSiteString(http.SameSiteStrictMode))
	assert.Equal(t, "Lax", guardian.SameSiteString(http.SameSiteLaxMode))
	assert.Equal(t, "None", guardian.SameSiteString(http.SameSiteNoneMode))
	assert.Empty(t, guardian.SameSiteString(http.SameSiteDefaultMode))
}
