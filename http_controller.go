package auth

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
)

// SessionService is what the HTTP layer needs from Auther
type SessionService interface {
	Signup(ctx context.Context, identifier, secret string) (*IssuedToken, error)
	Login(ctx context.Context, identifier, secret string) (*IssuedToken, error)
	ForgotPassword(ctx context.Context, identifier string) error
	ResetPassword(ctx context.Context, rawToken, newSecret string) error
	Logout(ctx context.Context, claims AuthClaims) error
	ValidateToken(ctx context.Context, claims AuthClaims) (TokenIdentity, error)
}

var _ SessionService = (*Auther)(nil)

const (
	MessageResetRequested = "if the account exists a password reset link has been sent"
	MessageResetDone      = "password updated successfully"
	MessageLoggedOut      = "logged out"
)

type AuthControllerRoutes struct {
	Signup         string
	Login          string
	ForgotPassword string
	ResetPassword  string
	Logout         string
	ValidateToken  string
}

type AuthController struct {
	Logger       Logger
	Auther       SessionService
	RouteAuth    *RouteAuthenticator
	Routes       *AuthControllerRoutes
	RateLimiter  fiber.Handler
	ErrorHandler func(c *fiber.Ctx, err error) error
}

type AuthControllerOption func(*AuthController) *AuthController

// WithSessionService sets the service backing the handlers
func WithSessionService(s SessionService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = s
		return c
	}
}

// WithRouteAuthenticator sets the middleware factory for protected routes
func WithRouteAuthenticator(a *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.RouteAuth = a
		return c
	}
}

// WithControllerLogger sets the controller logger
func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(l)
		return c
	}
}

// WithRateLimiter guards login, forgot password and reset password. The
// same handler runs on all three routes, so a limiter keyed by client
// alone shares one budget between them.
func WithRateLimiter(h fiber.Handler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.RateLimiter = h
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Signup:         "/signup",
			Login:          "/login",
			ForgotPassword: "/forgot-password",
			ResetPassword:  "/reset-password/:token",
			Logout:         "/logout",
			ValidateToken:  "/validate-token",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing SessionService in auth controller...")
	}

	if c.RouteAuth == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = func(ctx *fiber.Ctx, err error) error {
			return WriteError(ctx, err, c.Logger)
		}
	}

	return c
}

// RegisterAuthRoutes mounts the auth endpoints on r
func RegisterAuthRoutes(r fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	limit := controller.RateLimiter
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}

	r.Post(controller.Routes.Signup, controller.Signup).Name("auth.signup")
	r.Post(controller.Routes.Login, limit, controller.Login).Name("auth.login")
	r.Post(controller.Routes.ForgotPassword, limit, controller.ForgotPassword).Name("auth.forgot-password")
	r.Post(controller.Routes.ResetPassword, limit, controller.ResetPassword).Name("auth.reset-password")
	r.Post(controller.Routes.Logout, controller.RouteAuth.Optional(), controller.Logout).Name("auth.logout")
	r.Get(controller.Routes.ValidateToken, controller.RouteAuth.Mandatory(), controller.ValidateToken).Name("auth.validate-token")

	return controller
}

// CredentialsRequest is the signup and login payload
type CredentialsRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r CredentialsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// ForgotPasswordRequest holds the identifier to reset
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

// ResetPasswordRequest holds the new secret; the token travels in the path
type ResetPasswordRequest struct {
	Password string `json:"password" form:"password"`
}

// MessageResponse is the generic acknowledgement body
type MessageResponse struct {
	Message string `json:"message"`
}

func (a *AuthController) Signup(ctx *fiber.Ctx) error {
	payload := new(CredentialsRequest)
	if err := a.bind(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	token, err := a.Auther.Signup(ctx.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(token)
}

func (a *AuthController) Login(ctx *fiber.Ctx) error {
	payload := new(CredentialsRequest)
	if err := a.bind(ctx, payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	token, err := a.Auther.Login(ctx.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(token)
}

func (a *AuthController) ForgotPassword(ctx *fiber.Ctx) error {
	payload := new(ForgotPasswordRequest)
	if err := ctx.BodyParser(payload); err != nil {
		return a.ErrorHandler(ctx, withCause(ErrInvalidInput, err))
	}

	if err := a.Auther.ForgotPassword(ctx.UserContext(), payload.Email); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(MessageResponse{Message: MessageResetRequested})
}

func (a *AuthController) ResetPassword(ctx *fiber.Ctx) error {
	payload := new(ResetPasswordRequest)
	if err := ctx.BodyParser(payload); err != nil {
		return a.ErrorHandler(ctx, withCause(ErrInvalidInput, err))
	}

	if err := a.Auther.ResetPassword(ctx.UserContext(), ctx.Params("token"), payload.Password); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(MessageResponse{Message: MessageResetDone})
}

// Logout succeeds with or without a valid token. The token itself is not
// revoked and keeps verifying until it expires.
func (a *AuthController) Logout(ctx *fiber.Ctx) error {
	claims, _ := GetFiberClaims(ctx, a.RouteAuth.ContextKey())

	if err := a.Auther.Logout(ctx.UserContext(), claims); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(MessageResponse{Message: MessageLoggedOut})
}

func (a *AuthController) ValidateToken(ctx *fiber.Ctx) error {
	claims, ok := GetFiberClaims(ctx, a.RouteAuth.ContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrUnauthorized)
	}

	identity, err := a.Auther.ValidateToken(ctx.UserContext(), claims)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(identity)
}

type validatable interface {
	Validate() error
}

func (a *AuthController) bind(ctx *fiber.Ctx, payload validatable) error {
	if err := ctx.BodyParser(payload); err != nil {
		return withCause(ErrInvalidInput, err)
	}
	if err := payload.Validate(); err != nil {
		return NewInvalidInputError(err)
	}
	return nil
}
