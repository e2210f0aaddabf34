package guardian

import (
	"context"
	"errors"
)

var requestIdentityCtxKey = &contextKey{"request_identity"}

type contextKey struct {
	name string
}

var errNoRequestIdentity = errors.New("request identity missing from context, is the authorizer mounted?")

// RequestIdentity is the per request holder for the resolved credential. The
// authorizer creates one per request and alone decides what reaches the
// transport; handlers read it or replace it through Remember and Forget.
type RequestIdentity struct {
	claims  *Claims
	token   string
	changed bool
}

// NewRequestIdentity returns an unchanged identity holding the extracted claims
func NewRequestIdentity(claims *Claims, token string) *RequestIdentity {
	return &RequestIdentity{claims: claims, token: token}
}

// Claims returns the current claims, if any
func (r *RequestIdentity) Claims() (*Claims, bool) {
	if r == nil || r.claims == nil {
		return nil, false
	}
	return r.claims, true
}

// Token returns the raw token backing the current claims
func (r *RequestIdentity) Token() string {
	if r == nil {
		return ""
	}
	return r.token
}

// Authenticated reports whether a credential is attached
func (r *RequestIdentity) Authenticated() bool {
	_, ok := r.Claims()
	return ok
}

// Changed reports whether the handler replaced the identity
func (r *RequestIdentity) Changed() bool {
	return r != nil && r.changed
}

// Remember replaces the identity with a freshly issued credential
func (r *RequestIdentity) Remember(token string, claims *Claims) {
	r.token = token
	r.claims = claims
	r.changed = true
}

// Forget drops the identity; the authorizer clears the transport credential
func (r *RequestIdentity) Forget() {
	r.token = ""
	r.claims = nil
	r.changed = true
}

// WithRequestIdentity attaches identity to ctx
func WithRequestIdentity(ctx context.Context, identity *RequestIdentity) context.Context {
	return context.WithValue(ctx, requestIdentityCtxKey, identity)
}

// RequestIdentityFromContext finds the request identity in ctx
func RequestIdentityFromContext(ctx context.Context) (*RequestIdentity, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(requestIdentityCtxKey).(*RequestIdentity)
	return raw, ok && raw != nil
}

// ClaimsFromContext returns the claims of the request identity in ctx
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	identity, ok := RequestIdentityFromContext(ctx)
	if !ok {
		return nil, false
	}
	return identity.Claims()
}

// RequireClaims returns an Unauthorized error for anonymous requests
func RequireClaims(ctx context.Context) (*Claims, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, NewUnauthorizedError(nil)
	}
	return claims, nil
}

// Remember stores a new credential on the request identity in ctx
func Remember(ctx context.Context, token string, claims *Claims) error {
	identity, ok := RequestIdentityFromContext(ctx)
	if !ok {
		return NewInternalError(errNoRequestIdentity, "unable to remember identity")
	}
	identity.Remember(token, claims)
	return nil
}

// Forget clears the request identity in ctx
func Forget(ctx context.Context) error {
	identity, ok := RequestIdentityFromContext(ctx)
	if !ok {
		return NewInternalError(errNoRequestIdentity, "unable to forget identity")
	}
	identity.Forget()
	return nil
}
