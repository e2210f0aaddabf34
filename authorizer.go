package guardian

import (
	"context"
)

// NextFunc runs the wrapped handler with the identity-bearing context
type NextFunc func(ctx context.Context) error

// Authorizer is the framework independent request pipeline: extract the
// identity, dispatch, then reconcile any identity change onto the response.
// It holds no per request state and is safe for concurrent use.
type Authorizer struct {
	extractor *IdentityExtractor
	writer    *CredentialWriter
	logger    Logger
	softFail  bool
}

// AuthorizerOption customizes an Authorizer
type AuthorizerOption func(*Authorizer)

// WithAuthorizerLogger overrides the authorizer logger
func WithAuthorizerLogger(logger Logger) AuthorizerOption {
	return func(a *Authorizer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithSoftFail lets requests with an invalid credential proceed anonymously
// instead of being rejected. Protected routes still reject them.
func WithSoftFail(enabled bool) AuthorizerOption {
	return func(a *Authorizer) {
		a.softFail = enabled
	}
}

// NewAuthorizer wires an extractor and a credential writer
func NewAuthorizer(extractor *IdentityExtractor, writer *CredentialWriter, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		extractor: extractor,
		writer:    writer,
		logger:    newDefLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// CookieName exposes the credential cookie name to adapters
func (a *Authorizer) CookieName() string {
	return a.writer.CookieName()
}

// Handle runs one request through the pipeline. Handler errors are returned
// unchanged and the identity is not reconciled. A failure to write a changed
// credential replaces an otherwise successful outcome.
func (a *Authorizer) Handle(ctx context.Context, t Transport, next NextFunc) error {
	claims, token, err := a.extractor.Extract(t)
	if err != nil {
		if !a.softFail {
			a.logger.Info("authorizer rejected request credential", "error", err)
			return NewUnauthorizedError(err)
		}
		a.logger.Info("authorizer ignoring invalid credential, proceeding anonymously", "error", err)
		claims, token = nil, ""
	}

	identity := NewRequestIdentity(claims, token)
	if err := next(WithRequestIdentity(ctx, identity)); err != nil {
		return err
	}

	if !identity.Changed() {
		return nil
	}

	if err := a.writer.Write(t, identity); err != nil {
		a.logger.Error("authorizer failed to write credential", "error", err)
		return err
	}
	return nil
}
