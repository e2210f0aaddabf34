package identityware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	guardian "github.com/goliatone/go-guardian"
)

// DefaultContextKey is the fiber Locals key holding the request identity
const DefaultContextKey = "identity"

// Config tunes the framework adapters
type Config struct {
	// Filter skips the middleware when it returns true
	Filter func(c *fiber.Ctx) bool
	// ErrorHandler renders pipeline errors. It defaults to a JSON body
	// built by RenderError.
	ErrorHandler func(c *fiber.Ctx, err error) error
	// ContextKey is the Locals key for the *guardian.RequestIdentity
	ContextKey string
	Logger     guardian.Logger
}

func defaultConfig(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.Logger == nil {
		cfg.Logger = guardian.NewSlogLogger(nil)
	}
	if cfg.ErrorHandler == nil {
		logger := cfg.Logger
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			return FiberErrorResponse(c, logger, err)
		}
	}
	return cfg
}

// FiberErrorResponse writes err as JSON, replacing anything the handler
// had already buffered.
func FiberErrorResponse(c *fiber.Ctx, logger guardian.Logger, err error) error {
	err = fromFiberError(err)
	logError(logger, err, c.OriginalURL())
	status, body := RenderError(err)
	c.Response().ResetBody()
	return c.Status(status).JSON(body)
}

// fromFiberError gives framework errors, such as unknown routes, the shared
// error shape
func fromFiberError(err error) error {
	var fe *fiber.Error
	if !errors.As(err, &fe) {
		return err
	}
	return goerrors.New(fe.Message, goerrors.CategoryBadInput).
		WithCode(fe.Code).
		WithTextCode(strings.ToUpper(strings.ReplaceAll(http.StatusText(fe.Code), " ", "_")))
}

// New runs every request through the authorizer. Handlers read the identity
// from c.UserContext() or from c.Locals(ContextKey).
func New(a *guardian.Authorizer, config ...Config) fiber.Handler {
	cfg := defaultConfig(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		err := a.Handle(c.UserContext(), fiberTransport{c: c}, func(ctx context.Context) error {
			c.SetUserContext(ctx)
			if identity, ok := guardian.RequestIdentityFromContext(ctx); ok {
				c.Locals(cfg.ContextKey, identity)
			}
			return c.Next()
		})
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}
		return nil
	}
}

// Protected rejects requests without an authenticated identity. Mount it
// after New.
func Protected(config ...Config) fiber.Handler {
	cfg := defaultConfig(config...)

	return func(c *fiber.Ctx) error {
		if _, err := guardian.RequireClaims(c.UserContext()); err != nil {
			return cfg.ErrorHandler(c, err)
		}
		return c.Next()
	}
}

// IdentityFromFiber returns the request identity stored by New
func IdentityFromFiber(c *fiber.Ctx) (*guardian.RequestIdentity, bool) {
	return guardian.RequestIdentityFromContext(c.UserContext())
}

type fiberTransport struct {
	c *fiber.Ctx
}

func (t fiberTransport) Cookie(name string) string {
	return t.c.Cookies(name)
}

func (t fiberTransport) Header(name string) string {
	return t.c.Get(name)
}

func (t fiberTransport) SetHeader(name, value string) {
	t.c.Set(name, value)
}

// SetCookie converts the cookie to fiber's shape. fasthttp drops a negative
// Max-Age, so removal relies on the past Expires date.
func (t fiberTransport) SetCookie(cookie *http.Cookie) {
	fc := &fiber.Cookie{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Path:     cookie.Path,
		Domain:   cookie.Domain,
		Expires:  cookie.Expires,
		Secure:   cookie.Secure,
		HTTPOnly: cookie.HttpOnly,
		SameSite: guardian.SameSiteString(cookie.SameSite),
	}
	if cookie.MaxAge > 0 {
		fc.MaxAge = cookie.MaxAge
	}
	t.c.Cookie(fc)
}
