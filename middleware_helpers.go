package auth

import (
	"context"

	"github.com/goliatone/go-authcore/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ValidationClaims is what a ValidationListener receives, assert it to AuthClaims
type ValidationClaims = jwtware.AuthClaims

// ContextEnricherAdapter stores verified claims in the standard context so
// handlers can read them with GetClaims.
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return c
	}
	return WithClaimsContext(c, authClaims)
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}

// WithValidationListeners runs listeners after a token verifies. An error
// rejects the token, so a denylist of token IDs can sit on top of
// stateless tokens without changing logout.
func (a *RouteAuthenticator) WithValidationListeners(listeners ...ValidationListener) *RouteAuthenticator {
	a.listeners = append(a.listeners, listeners...)
	return a
}
