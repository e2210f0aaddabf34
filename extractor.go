package guardian

import (
	"errors"
	"strings"
)

const (
	DefaultAuthScheme  = "Bearer"
	DefaultHeaderName  = "Authorization"
	DefaultCookieName  = "guardian-id"
	lookupSourceCookie = "cookie"
	lookupSourceHeader = "header"
)

var errMalformedAuthHeader = errors.New("missing or malformed authorization header")

// TokenSource gives read access to the inbound request credential carriers
type TokenSource interface {
	Cookie(name string) string
	Header(name string) string
}

// tokenExtractor reports whether a candidate was present and, if so, the raw
// token or why it is malformed.
type tokenExtractor func(src TokenSource) (token string, present bool, err error)

// IdentityExtractor resolves the single candidate token of a request into
// Claims. It never writes to the transport.
type IdentityExtractor struct {
	verifier   TokenVerifier
	extractors []tokenExtractor
}

// NewIdentityExtractor builds an extractor from a lookup definition such as
// "cookie:guardian-id,header:Authorization". Sources are tried in order and
// the first one present wins.
func NewIdentityExtractor(verifier TokenVerifier, tokenLookup, authScheme string) *IdentityExtractor {
	if authScheme == "" {
		authScheme = DefaultAuthScheme
	}
	if tokenLookup == "" {
		tokenLookup = DefaultTokenLookup(DefaultCookieName)
	}
	return &IdentityExtractor{
		verifier:   verifier,
		extractors: parseTokenLookup(tokenLookup, authScheme),
	}
}

// DefaultTokenLookup returns the cookie-then-header lookup for cookieName
func DefaultTokenLookup(cookieName string) string {
	return lookupSourceCookie + ":" + cookieName + "," + lookupSourceHeader + ":" + DefaultHeaderName
}

// Extract returns nil claims and a nil error when the request carries no
// candidate token. A candidate that fails verification is an error.
func (e *IdentityExtractor) Extract(src TokenSource) (*Claims, string, error) {
	for _, extract := range e.extractors {
		token, present, err := extract(src)
		if !present {
			continue
		}
		if err != nil {
			return nil, "", NewDecodingError(err)
		}
		claims, err := e.verifier.Verify(token)
		if err != nil {
			return nil, "", err
		}
		return claims, token, nil
	}
	return nil, "", nil
}

func parseTokenLookup(tokenLookup, authScheme string) []tokenExtractor {
	extractors := make([]tokenExtractor, 0, 2)
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if name == "" {
			continue
		}
		switch source {
		case lookupSourceCookie:
			extractors = append(extractors, tokenFromCookie(name))
		case lookupSourceHeader:
			extractors = append(extractors, tokenFromHeader(name, strings.TrimSpace(authScheme)))
		}
	}
	return extractors
}

func tokenFromCookie(name string) tokenExtractor {
	return func(src TokenSource) (string, bool, error) {
		token := strings.TrimSpace(src.Cookie(name))
		return token, token != "", nil
	}
}

func tokenFromHeader(header, authScheme string) tokenExtractor {
	return func(src TokenSource) (string, bool, error) {
		value := strings.TrimSpace(src.Header(header))
		if value == "" {
			return "", false, nil
		}
		l := len(authScheme)
		if len(value) > l+1 && strings.EqualFold(value[:l], authScheme) && value[l] == ' ' {
			return strings.TrimSpace(value[l:]), true, nil
		}
		return "", true, errMalformedAuthHeader
	}
}
