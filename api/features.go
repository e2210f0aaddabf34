package api

import (
	"context"
	"html"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	guardian "github.com/goliatone/go-guardian"
)

const (
	FeatureSignup = "auth.signup"
	FeatureLogin  = "auth.login"
)

const textCodeForbidden = "FORBIDDEN"

// FeatureGate decides whether an optional route is served
type FeatureGate interface {
	Enabled(ctx context.Context, key string) (bool, error)
}

// StaticFeatures is a FeatureGate over a fixed map. Missing keys are
// enabled.
type StaticFeatures map[string]bool

func (f StaticFeatures) Enabled(_ context.Context, key string) (bool, error) {
	enabled, ok := f[key]
	return !ok || enabled, nil
}

// AdminPolicy decides whether an authenticated caller may administer
// accounts
type AdminPolicy interface {
	IsAdmin(claims *guardian.Claims) bool
}

// AdminPolicyFunc adapts a function to AdminPolicy
type AdminPolicyFunc func(claims *guardian.Claims) bool

func (f AdminPolicyFunc) IsAdmin(claims *guardian.Claims) bool { return f(claims) }

// errRouteHidden matches the error fiber raises for an unregistered route so
// a disabled feature cannot be told apart from a missing one
func errRouteHidden(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusNotFound, "Cannot "+c.Method()+" "+html.EscapeString(c.Path()))
}

func errForbidden() error {
	return goerrors.New("access denied", goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(textCodeForbidden)
}

func requireFeature(gate FeatureGate, key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if gate == nil {
			return c.Next()
		}
		enabled, err := gate.Enabled(c.UserContext(), key)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "feature gate check failed").
				WithCode(http.StatusServiceUnavailable).
				WithMetadata(map[string]any{"feature": key})
		}
		if !enabled {
			return errRouteHidden(c)
		}
		return c.Next()
	}
}

func requireAdmin(policy AdminPolicy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := guardian.RequireClaims(c.UserContext())
		if err != nil {
			return err
		}
		if policy == nil || !policy.IsAdmin(claims) {
			return errForbidden()
		}
		return c.Next()
	}
}
