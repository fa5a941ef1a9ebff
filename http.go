package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-authcore/middleware/jwtware"
)

// RouteAuthenticator builds the two access control middlewares from one
// validator and one configuration.
type RouteAuthenticator struct {
	validator    TokenValidator
	cfg          Config
	listeners    []ValidationListener
	Logger       Logger
	ErrorHandler fiber.ErrorHandler
}

// NewHTTPAuthenticator returns a RouteAuthenticator over validator
func NewHTTPAuthenticator(validator TokenValidator, cfg Config) *RouteAuthenticator {
	a := &RouteAuthenticator{
		validator: validator,
		cfg:       cfg,
		Logger:    defLogger{},
	}
	a.ErrorHandler = a.defaultErrHandler
	return a
}

// WithLogger sets the logger
func (a *RouteAuthenticator) WithLogger(l Logger) *RouteAuthenticator {
	a.Logger = normalizeLogger(l)
	return a
}

// Mandatory rejects requests without a valid token with 401
func (a *RouteAuthenticator) Mandatory() fiber.Handler {
	return jwtware.New(a.jwtConfig(false))
}

// Optional authenticates when it can and otherwise proceeds anonymous
func (a *RouteAuthenticator) Optional() fiber.Handler {
	return jwtware.New(a.jwtConfig(true))
}

// ContextKey is the Locals key where claims are stored
func (a *RouteAuthenticator) ContextKey() string {
	if key := a.cfg.GetContextKey(); key != "" {
		return key
	}
	return DefaultContextKey
}

func (a *RouteAuthenticator) jwtConfig(optional bool) jwtware.Config {
	cfg := jwtware.Config{
		TokenValidator: jwtware.TokenValidatorFunc(func(token string) (jwtware.AuthClaims, error) {
			claims, err := a.validator.Validate(token)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		ErrorHandler:     a.MakeClientRouteAuthErrorHandler(optional),
		AnonymousHandler: a.anonymous,
		Optional:         optional,
		ContextKey:       a.ContextKey(),
		TokenLookup:      a.cfg.GetTokenLookup(),
		AuthScheme:       a.cfg.GetAuthScheme(),
		ContextEnricher:  ContextEnricherAdapter,
	}
	RegisterValidationListeners(&cfg, a.listeners...)
	return cfg
}

// MakeClientRouteAuthErrorHandler translates every token failure into
// ErrUnauthorized; optional routes log and continue instead.
func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if optional {
			return a.anonymous(c, err)
		}

		a.Logger.Debug("authentication rejected on %s: %v", c.Path(), err)
		return a.ErrorHandler(c, ErrUnauthorized)
	}
}

func (a *RouteAuthenticator) anonymous(c *fiber.Ctx, err error) error {
	if err != nil {
		a.Logger.Debug("optional auth failed on %s, proceeding anonymous: %v", c.Path(), err)
	}
	return c.Next()
}

func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	return WriteError(c, err, a.Logger)
}

// WriteError writes the sanitized JSON error for err. Server side
// failures are logged with their full cause.
func WriteError(c *fiber.Ctx, err error, logger Logger) error {
	status, body := PublicError(err)
	if status >= fiber.StatusInternalServerError {
		normalizeLogger(logger).Error("request %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(body)
}
