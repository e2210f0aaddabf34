package guardian

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind identifies a failure class. It is carried as the TextCode of a
// *goerrors.Error.
type ErrorKind string

const (
	KindInvalidCredentials    ErrorKind = "INVALID_CREDENTIALS"
	KindAccountLocked         ErrorKind = "ACCOUNT_LOCKED"
	KindPasswordResetRequired ErrorKind = "PASSWORD_RESET_REQUIRED"
	KindEmailUnconfirmed      ErrorKind = "EMAIL_UNCONFIRMED"
	KindUnauthorized          ErrorKind = "UNAUTHORIZED"
	KindConflict              ErrorKind = "CONFLICT"
	KindNotFound              ErrorKind = "NOT_FOUND"
	KindEncoding              ErrorKind = "TOKEN_ENCODING_FAILED"
	KindDecoding              ErrorKind = "TOKEN_DECODING_FAILED"
	KindCredentialWrite       ErrorKind = "CREDENTIAL_WRITE_FAILED"
	KindValidation            ErrorKind = "VALIDATION_FAILED"
	KindRateLimited           ErrorKind = "RATE_LIMITED"
	KindInternal              ErrorKind = "INTERNAL"
)

const (
	MsgInvalidCredentials    = "your email, username or password is incorrect"
	MsgAccountLocked         = "your account has been locked out, please contact support"
	MsgPasswordResetRequired = "please request a new password change"
	MsgEmailUnconfirmed      = "please verify your account"
	MsgUnauthorized          = "access denied"
	MsgAlreadyLocked         = "the account is already locked"
	MsgNotLocked             = "the account is not locked"
	MsgIdentityTaken         = "an account with this identity already exists"
	MsgAccountNotFound       = "account not found"
	MsgMissingIdentity       = "email, mobile or username field must be provided"
	msgInternal              = "an unexpected error occurred"
)

func newKindError(kind ErrorKind, msg string, category goerrors.Category, code int) *goerrors.Error {
	return goerrors.New(msg, category).
		WithTextCode(string(kind)).
		WithCode(code)
}

func wrapKindError(err error, kind ErrorKind, msg string, category goerrors.Category, code int) *goerrors.Error {
	if err == nil {
		return newKindError(kind, msg, category, code)
	}
	return goerrors.Wrap(err, category, msg).
		WithTextCode(string(kind)).
		WithCode(code)
}

// NewInvalidCredentialsError is returned for any login whose password does not
// match, including logins for unknown identities.
func NewInvalidCredentialsError() *goerrors.Error {
	return newKindError(KindInvalidCredentials, MsgInvalidCredentials, goerrors.CategoryAuth, goerrors.CodeUnauthorized)
}

func NewAccountLockedError() *goerrors.Error {
	return newKindError(KindAccountLocked, MsgAccountLocked, goerrors.CategoryAuth, goerrors.CodeForbidden)
}

func NewPasswordResetRequiredError() *goerrors.Error {
	return newKindError(KindPasswordResetRequired, MsgPasswordResetRequired, goerrors.CategoryAuth, goerrors.CodeForbidden)
}

func NewEmailUnconfirmedError() *goerrors.Error {
	return newKindError(KindEmailUnconfirmed, MsgEmailUnconfirmed, goerrors.CategoryAuth, goerrors.CodeForbidden)
}

// NewUnauthorizedError wraps the cause, if any, so it stays visible in logs
func NewUnauthorizedError(cause error) *goerrors.Error {
	return wrapKindError(cause, KindUnauthorized, MsgUnauthorized, goerrors.CategoryAuth, goerrors.CodeUnauthorized)
}

func NewConflictError(msg string) *goerrors.Error {
	return newKindError(KindConflict, msg, goerrors.CategoryConflict, goerrors.CodeConflict)
}

func NewNotFoundError(id string) *goerrors.Error {
	return newKindError(KindNotFound, MsgAccountNotFound, goerrors.CategoryNotFound, goerrors.CodeNotFound).
		WithMetadata(map[string]any{"id": id})
}

func NewEncodingError(cause error) *goerrors.Error {
	return wrapKindError(cause, KindEncoding, "failed to encode token", goerrors.CategoryInternal, goerrors.CodeInternal)
}

func NewDecodingError(cause error) *goerrors.Error {
	return wrapKindError(cause, KindDecoding, "failed to decode token", goerrors.CategoryInternal, goerrors.CodeInternal)
}

func NewCredentialWriteError(cause error) *goerrors.Error {
	return wrapKindError(cause, KindCredentialWrite, "failed to write credential", goerrors.CategoryInternal, goerrors.CodeInternal)
}

// NewValidationError carries per field messages in the error metadata
func NewValidationError(msg string, fields map[string]string) *goerrors.Error {
	err := newKindError(KindValidation, msg, goerrors.CategoryValidation, http.StatusUnprocessableEntity)
	if len(fields) > 0 {
		meta := make(map[string]any, len(fields))
		for k, v := range fields {
			meta[k] = v
		}
		err = err.WithMetadata(map[string]any{"fields": meta})
	}
	return err
}

func NewRateLimitedError() *goerrors.Error {
	return newKindError(KindRateLimited, "too many attempts, try again later", goerrors.CategoryRateLimit, http.StatusTooManyRequests)
}

// NewInternalError wraps store and infrastructure failures
func NewInternalError(cause error, msg string) *goerrors.Error {
	return wrapKindError(cause, KindInternal, msg, goerrors.CategoryInternal, goerrors.CodeInternal)
}

// KindOf returns the ErrorKind carried by err, or KindInternal when err is
// not one of ours.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return ErrorKind(richErr.TextCode)
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCode maps an error to the HTTP status a transport should answer with.
// Decoding failures are internal by themselves. The extractor path wraps them
// as Unauthorized before they reach a transport.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show to a caller
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindInvalidCredentials:
		return MsgInvalidCredentials
	case KindUnauthorized:
		return MsgUnauthorized
	case KindInternal, KindEncoding, KindDecoding, KindCredentialWrite:
		return msgInternal
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Message
	}
	return msgInternal
}

// ValidationFields extracts the field messages attached by NewValidationError
func ValidationFields(err error) map[string]any {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return nil
	}
	fields, _ := richErr.Metadata["fields"].(map[string]any)
	return fields
}
