package guardian

import (
	"context"
	"log/slog"
)

// Logger is the logging surface used across the package. Arguments after the
// message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes carried into an issued credential
type Identity interface {
	ID() string
	Email() string
	Username() string
	Mobile() string
}

// Config holds the read-only settings consumed by the token codec, the
// extractor and the credential writer. It is built once at process start.
type Config interface {
	GetSigningKey() string
	GetTokenIssuer() string
	// GetTokenExpiration returns the token TTL in hours
	GetTokenExpiration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetCookieName() string
	GetCookiePath() string
	GetCookieDomain() string
	GetCookieSecure() bool
	GetCookieSameSite() string
	// GetCookieMaxAge returns the cookie lifetime in seconds
	GetCookieMaxAge() int
	// GetResponseHeader names an optional header that mirrors a newly
	// remembered token. Empty disables it.
	GetResponseHeader() string
}

// TokenIssuer signs credentials for an identity
type TokenIssuer interface {
	Issue(identity Identity) (string, *Claims, error)
}

// TokenVerifier decodes and validates credentials
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// OneTimeCodes issues and consumes short lived numeric codes scoped to a
// purpose and an account.
type OneTimeCodes interface {
	Issue(ctx context.Context, purpose, accountID string) (string, error)
	Verify(ctx context.Context, purpose, accountID, code string) (bool, error)
}

// CodeNotifier delivers one-time codes to account holders
type CodeNotifier interface {
	Notify(ctx context.Context, account *Account, purpose, code string) error
}

// CodeNotifierFunc adapts a function to CodeNotifier
type CodeNotifierFunc func(ctx context.Context, account *Account, purpose, code string) error

// Notify implements CodeNotifier.
func (f CodeNotifierFunc) Notify(ctx context.Context, account *Account, purpose, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, account, purpose, code)
}

const (
	CodePurposeEmailConfirmation = "email_confirmation"
	CodePurposePasswordReset     = "password_reset"
)

type defLogger struct {
	l *slog.Logger
}

func newDefLogger() defLogger {
	return defLogger{l: slog.Default().With("component", "guardian")}
}

func (d defLogger) logger() *slog.Logger {
	if d.l == nil {
		return slog.Default().With("component", "guardian")
	}
	return d.l
}

func (d defLogger) Debug(msg string, args ...any) { d.logger().Debug(msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.logger().Info(msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.logger().Warn(msg, args...) }
func (d defLogger) Error(msg string, args ...any) { d.logger().Error(msg, args...) }

// NewSlogLogger adapts a *slog.Logger to Logger.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		return newDefLogger()
	}
	return defLogger{l: l}
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return newDefLogger()
	}
	return l
}
