package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	guardian "github.com/goliatone/go-guardian"
	"github.com/goliatone/go-guardian/middleware/identityware"
)

const limiterIdleTTL = 10 * time.Minute

// Routes holds the mount points of the controller
type Routes struct {
	Health   string
	Accounts string
	Session  string
	Me       string
	Admin    string
}

// Controller serves the JSON account and session endpoints. Mount it behind
// identityware.New so every handler sees the request identity.
type Controller struct {
	Accounts *guardian.AccountService
	Auth     *guardian.Authenticator
	Guard    *guardian.LifecycleGuard
	Store    guardian.AccountStore
	Features FeatureGate
	Admins   AdminPolicy
	Logger   guardian.Logger
	Routes   Routes
	Version  string

	loginLimiter *keyedLimiter
	resetLimiter *keyedLimiter
}

// ControllerOption customizes a Controller
type ControllerOption func(*Controller) *Controller

// WithFeatures sets the feature gate for signup and login
func WithFeatures(gate FeatureGate) ControllerOption {
	return func(c *Controller) *Controller {
		c.Features = gate
		return c
	}
}

// WithAdmins sets who may use the admin routes
func WithAdmins(policy AdminPolicy) ControllerOption {
	return func(c *Controller) *Controller {
		c.Admins = policy
		return c
	}
}

// WithLogger overrides the controller logger
func WithLogger(logger guardian.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithVersion sets the version reported by the health route
func WithVersion(version string) ControllerOption {
	return func(c *Controller) *Controller {
		c.Version = version
		return c
	}
}

// WithRateLimit throttles login and password reset requests per client IP.
// Zero disables throttling.
func WithRateLimit(perMinute int) ControllerOption {
	return func(c *Controller) *Controller {
		c.loginLimiter = newKeyedLimiter(perMinute, limiterIdleTTL)
		c.resetLimiter = newKeyedLimiter(perMinute, limiterIdleTTL)
		return c
	}
}

// NewController wires the services. It panics when a required one is
// missing.
func NewController(accounts *guardian.AccountService, auth *guardian.Authenticator, guard *guardian.LifecycleGuard, store guardian.AccountStore, opts ...ControllerOption) *Controller {
	c := &Controller{
		Accounts: accounts,
		Auth:     auth,
		Guard:    guard,
		Store:    store,
		Logger:   guardian.NewSlogLogger(nil),
		Routes: Routes{
			Health:   "/health",
			Accounts: "/api/v1/accounts",
			Session:  "/api/v1/session",
			Me:       "/api/v1/me",
			Admin:    "/api/v1/admin",
		},
		Version: "dev",
	}
	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.Accounts == nil || c.Auth == nil || c.Guard == nil || c.Store == nil {
		panic("api: controller requires account service, authenticator, lifecycle guard and store")
	}
	return c
}

// Register mounts the routes on r
func (c *Controller) Register(r fiber.Router) {
	r.Get(c.Routes.Health, c.Health)

	accounts := r.Group(c.Routes.Accounts)
	accounts.Post("/", requireFeature(c.Features, FeatureSignup), c.Signup)
	accounts.Get("/available", c.Available)
	accounts.Post("/confirm", c.ConfirmEmail)
	accounts.Post("/confirm/resend", limitByIP(c.resetLimiter), c.ResendConfirmation)
	accounts.Post("/password-reset", limitByIP(c.resetLimiter), c.RequestPasswordReset)
	accounts.Post("/password-reset/confirm", limitByIP(c.resetLimiter), c.ResetPassword)

	r.Post(c.Routes.Session, requireFeature(c.Features, FeatureLogin), limitByIP(c.loginLimiter), c.Login)
	r.Delete(c.Routes.Session, c.Logout)

	me := r.Group(c.Routes.Me, identityware.Protected())
	me.Get("/", c.Me)
	me.Delete("/", c.DeleteMe)

	admin := r.Group(c.Routes.Admin, requireAdmin(c.Admins))
	admin.Post("/accounts/:id/lock", c.LockAccount)
	admin.Post("/accounts/:id/unlock", c.UnlockAccount)
	admin.Post("/accounts/:id/require-password-reset", c.RequirePasswordReset)
	admin.Delete("/accounts/:id", c.DeleteAccount)
}

const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"
)

func (c *Controller) Health(ctx *fiber.Ctx) error {
	if err := c.Store.Ping(ctx.UserContext()); err != nil {
		c.Logger.Error("health check failed", "error", err)
		return ctx.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"status":          statusUnavailable,
			"version":         c.Version,
			"database_status": statusUnavailable,
		})
	}
	return ctx.JSON(fiber.Map{
		"status":          statusOK,
		"version":         c.Version,
		"database_status": statusOK,
	})
}

func (c *Controller) Signup(ctx *fiber.Ctx) error {
	var msg guardian.RegisterAccountMessage
	if err := bind(ctx, &msg); err != nil {
		return err
	}
	account, err := c.Accounts.Register(ctx.UserContext(), msg)
	if err != nil {
		return err
	}
	return ctx.Status(http.StatusCreated).JSON(account.View())
}

func (c *Controller) Available(ctx *fiber.Ctx) error {
	msg := guardian.AvailabilityMessage{Identity: ctx.Query("identity")}
	available, err := c.Accounts.Available(ctx.UserContext(), msg)
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{"identity": msg.Identity, "available": available})
}

func (c *Controller) ConfirmEmail(ctx *fiber.Ctx) error {
	var msg guardian.ConfirmEmailMessage
	if err := bind(ctx, &msg); err != nil {
		return err
	}
	if err := c.Accounts.ConfirmEmail(ctx.UserContext(), msg); err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{"confirmed": true})
}

type identityRequest struct {
	Identity string `json:"identity"`
}

// ResendConfirmation answers 202 whether or not the identity exists or is
// awaiting confirmation.
func (c *Controller) ResendConfirmation(ctx *fiber.Ctx) error {
	var req identityRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	if err := c.Accounts.ResendConfirmation(ctx.UserContext(), req.Identity); err != nil {
		c.Logger.Error("confirmation resend failed", "error", err)
	}
	return ctx.SendStatus(http.StatusAccepted)
}

// RequestPasswordReset always answers 202 for a well formed request so
// callers cannot learn which identities exist.
func (c *Controller) RequestPasswordReset(ctx *fiber.Ctx) error {
	var msg guardian.InitializePasswordResetMessage
	if err := bind(ctx, &msg); err != nil {
		return err
	}
	if err := c.Accounts.RequestPasswordReset(ctx.UserContext(), msg); err != nil {
		if guardian.IsKind(err, guardian.KindValidation) {
			return err
		}
		c.Logger.Error("password reset request failed", "error", err)
	}
	return ctx.SendStatus(http.StatusAccepted)
}

func (c *Controller) ResetPassword(ctx *fiber.Ctx) error {
	var msg guardian.FinalizePasswordResetMessage
	if err := bind(ctx, &msg); err != nil {
		return err
	}
	if err := c.Accounts.ResetPassword(ctx.UserContext(), msg); err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{"reset": true})
}

func (c *Controller) Login(ctx *fiber.Ctx) error {
	var msg guardian.LoginMessage
	if err := bind(ctx, &msg); err != nil {
		return err
	}
	session, err := c.Auth.SignIn(ctx.UserContext(), msg)
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{
		"token":      session.Token,
		"expires_at": session.Claims.Expires(),
		"account":    session.Account.View(),
	})
}

func (c *Controller) Logout(ctx *fiber.Ctx) error {
	if err := c.Auth.Logout(ctx.UserContext()); err != nil {
		return err
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (c *Controller) Me(ctx *fiber.Ctx) error {
	claims, err := guardian.RequireClaims(ctx.UserContext())
	if err != nil {
		return err
	}
	account, err := c.Store.FindByID(ctx.UserContext(), claims.SubjectID())
	if err != nil {
		if guardian.IsKind(err, guardian.KindNotFound) {
			return guardian.NewUnauthorizedError(err)
		}
		return err
	}
	return ctx.JSON(fiber.Map{
		"account":    account.View(),
		"expires_at": claims.Expires(),
	})
}

// DeleteMe soft deletes the caller and ends the session
func (c *Controller) DeleteMe(ctx *fiber.Ctx) error {
	claims, err := guardian.RequireClaims(ctx.UserContext())
	if err != nil {
		return err
	}
	if err := c.Accounts.Delete(ctx.UserContext(), guardian.ActorFromClaims(claims), claims.SubjectID(), false); err != nil {
		return err
	}
	if err := c.Auth.Logout(ctx.UserContext()); err != nil {
		return err
	}
	return ctx.SendStatus(http.StatusNoContent)
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

func (c *Controller) LockAccount(ctx *fiber.Ctx) error {
	return c.transition(ctx, c.Guard.Lock)
}

func (c *Controller) UnlockAccount(ctx *fiber.Ctx) error {
	return c.transition(ctx, c.Guard.Unlock)
}

func (c *Controller) RequirePasswordReset(ctx *fiber.Ctx) error {
	return c.transition(ctx, c.Guard.RequireNewPassword)
}

func (c *Controller) DeleteAccount(ctx *fiber.Ctx) error {
	claims, err := guardian.RequireClaims(ctx.UserContext())
	if err != nil {
		return err
	}
	hard := ctx.QueryBool("hard", false)
	if err := c.Accounts.Delete(ctx.UserContext(), guardian.ActorFromClaims(claims), ctx.Params("id"), hard); err != nil {
		return err
	}
	return ctx.SendStatus(http.StatusNoContent)
}

type transitionFunc func(ctx context.Context, actor guardian.ActorRef, id string, opts ...guardian.TransitionOption) error

func (c *Controller) transition(ctx *fiber.Ctx, apply transitionFunc) error {
	claims, err := guardian.RequireClaims(ctx.UserContext())
	if err != nil {
		return err
	}

	var req transitionRequest
	if len(ctx.Body()) > 0 {
		if err := bind(ctx, &req); err != nil {
			return err
		}
	}

	id := ctx.Params("id")
	if err := apply(ctx.UserContext(), guardian.ActorFromClaims(claims), id, guardian.WithTransitionReason(req.Reason)); err != nil {
		return err
	}

	account, err := c.Store.FindByID(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(account.View())
}

func bind(ctx *fiber.Ctx, out any) error {
	if err := ctx.BodyParser(out); err != nil {
		return guardian.NewValidationError("invalid request body", map[string]string{"body": err.Error()})
	}
	return nil
}

// ErrorHandler is the fiber app error handler. Errors raised outside the
// identity middleware get the same envelope as pipeline errors.
func ErrorHandler(logger guardian.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return identityware.FiberErrorResponse(c, logger, err)
	}
}
