package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options. It is read once at startup.
type Config interface {
	GetSigningKey() string
	GetPreviousSigningKeys() []string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenTTL() time.Duration
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetResetTTL() time.Duration
	GetResetLinkBaseURL() string
	GetPasswordMinLength() int
	GetPasswordMaxLength() int
	GetStoreTimeout() time.Duration
	GetNotifierTimeout() time.Duration
}

// CredentialStore persists accounts. Implementations must enforce
// identifier uniqueness and return ErrAccountExists on duplicates.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	Create(ctx context.Context, identifier, secretHash string) (*Account, error)
	UpdateSecret(ctx context.Context, identifier, secretHash string) error
}

// ResetTokenStore keeps at most one reset record per account.
type ResetTokenStore interface {
	// Replace stores record, discarding any earlier record for the same account.
	Replace(ctx context.Context, record *PasswordReset) error
	// Consume atomically marks the unconsumed, unexpired record with the
	// given hash as consumed and returns it. Misses return ErrResetTokenNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*PasswordReset, error)
	// DeleteExpired removes records that expired before now or were consumed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// ResetUnit scopes the token consumption and the secret update of one
// password reset. When fn returns an error the consumption is undone and
// the token can be redeemed again.
type ResetUnit interface {
	RunReset(ctx context.Context, fn func(ctx context.Context, resets ResetTokenStore, credentials CredentialStore) error) error
}

// ResetReleaser is implemented by reset stores that can return a consumed,
// unexpired record to the live state.
type ResetReleaser interface {
	Release(ctx context.Context, tokenHash string) error
}

// ResetNotifier delivers the out of band reset link
type ResetNotifier interface {
	SendResetLink(ctx context.Context, identifier, rawToken string) error
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// TokenService issues and verifies identity tokens
type TokenService interface {
	Issue(identifier string) (*IssuedToken, error)
	Verify(token string) (AuthClaims, error)
	Validate(token string) (AuthClaims, error)
}

// IssuedToken is the result of a successful signup or login
type IssuedToken struct {
	Token      string    `json:"token"`
	Identifier string    `json:"identifier"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// TokenIdentity is what a verified token asserts
type TokenIdentity struct {
	Identifier string    `json:"identifier"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
