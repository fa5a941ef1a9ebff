// Package auth provides account credential authentication: signup, login,
// password reset and stateless identity tokens, plus the fiber middleware
// and HTTP handlers that expose them.
//
// Identity tokens:
//   - TokenServiceImpl issues HS256 JWTs whose subject is the account
//     identifier. Verify fails with exactly one of ErrTokenMalformed,
//     ErrTokenForged or ErrTokenExpired. Over HTTP all three become
//     ErrUnauthorized.
//   - NewRotatingValidator accepts tokens signed with retired keys while a
//     signing key is rotated. Only the current key signs.
//
// Password reset:
//   - ResetTokenManager hands out 32 random bytes, hex encoded, and stores
//     only their SHA-256 digest. Issuing a token replaces any earlier one
//     for the same account and a token is redeemable exactly once.
//   - ForgotPassword answers the same way whether or not the account
//     exists.
//
// Logout:
//   - Tokens are stateless and nothing is kept server side, so Logout
//     cannot revoke a token. A token presented to logout keeps verifying
//     until its exp claim passes. Clients must drop the token; deployments
//     that need revocation should keep token lifetimes short or add a
//     denylist through jwtware.Config.ValidationListeners.
//
// Account enumeration:
//   - ForgotPassword bodies do not differ, but timing can. A known account
//     pays for a token write and a notifier call that an unknown one
//     skips, and a failing notifier turns a known account into a 500.
//     Deployments that care should deliver reset links from a queue and
//     rate limit the route.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther to describe
//     signup, login, logout and password reset events. Sinks run best-effort
//     (errors are logged) so you can forward to a metrics registry or a queue
//     without blocking authentication.
package auth
