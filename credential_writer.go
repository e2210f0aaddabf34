package guardian

import (
	"net/http"
	"strings"
	"time"
)

// Transport is what an HTTP framework adapter exposes to the authorizer:
// read access to the inbound credential carriers and a hook to mutate the
// outbound response before it is finalized.
type Transport interface {
	TokenSource
	SetCookie(cookie *http.Cookie)
	SetHeader(name, value string)
}

// CredentialWriter renders a request identity onto the outbound response
type CredentialWriter struct {
	cookieName     string
	cookiePath     string
	cookieDomain   string
	cookieSecure   bool
	cookieSameSite http.SameSite
	cookieMaxAge   time.Duration
	responseHeader string
	authScheme     string
	now            func() time.Time
}

// NewCredentialWriter builds the cookie policy from cfg
func NewCredentialWriter(cfg Config) *CredentialWriter {
	name := cfg.GetCookieName()
	if name == "" {
		name = DefaultCookieName
	}
	path := cfg.GetCookiePath()
	if path == "" {
		path = "/"
	}
	scheme := cfg.GetAuthScheme()
	if scheme == "" {
		scheme = DefaultAuthScheme
	}
	return &CredentialWriter{
		cookieName:     name,
		cookiePath:     path,
		cookieDomain:   cfg.GetCookieDomain(),
		cookieSecure:   cfg.GetCookieSecure(),
		cookieSameSite: parseSameSite(cfg.GetCookieSameSite()),
		cookieMaxAge:   time.Duration(cfg.GetCookieMaxAge()) * time.Second,
		responseHeader: cfg.GetResponseHeader(),
		authScheme:     scheme,
		now:            time.Now,
	}
}

// CookieName returns the name of the credential cookie
func (w *CredentialWriter) CookieName() string {
	return w.cookieName
}

// Write sets the credential cookie for an authenticated identity and clears
// it otherwise. The cookie is validated before anything reaches the transport
// so a failure leaves the response untouched.
func (w *CredentialWriter) Write(t Transport, identity *RequestIdentity) error {
	var cookie *http.Cookie
	authenticated := identity.Authenticated()
	if authenticated {
		cookie = w.credentialCookie(identity.Token())
	} else {
		cookie = w.removalCookie()
	}

	if err := cookie.Valid(); err != nil {
		return NewCredentialWriteError(err)
	}

	t.SetCookie(cookie)
	if authenticated && w.responseHeader != "" {
		t.SetHeader(w.responseHeader, w.authScheme+" "+identity.Token())
	}
	return nil
}

func (w *CredentialWriter) credentialCookie(token string) *http.Cookie {
	cookie := w.baseCookie()
	cookie.Value = token
	if w.cookieMaxAge > 0 {
		cookie.MaxAge = int(w.cookieMaxAge / time.Second)
		cookie.Expires = w.now().Add(w.cookieMaxAge).UTC()
	}
	return cookie
}

func (w *CredentialWriter) removalCookie() *http.Cookie {
	cookie := w.baseCookie()
	cookie.MaxAge = -1
	cookie.Expires = w.now().Add(-time.Hour * (24 * 365)).UTC()
	return cookie
}

func (w *CredentialWriter) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     w.cookieName,
		Path:     w.cookiePath,
		Domain:   w.cookieDomain,
		Secure:   w.cookieSecure,
		HttpOnly: true,
		SameSite: w.cookieSameSite,
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// SameSiteString renders a SameSite mode the way frameworks expect it
func SameSiteString(mode http.SameSite) string {
	switch mode {
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	case http.SameSiteLaxMode:
		return "Lax"
	default:
		return ""
	}
}
