package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// MinSigningKeyLength is the shortest HS256 secret accepted, in bytes
	MinSigningKeyLength = 32
	DefaultTokenTTL     = 24 * time.Hour
)

// ErrInvalidSigningKey is returned at construction for empty or short keys
var ErrInvalidSigningKey = goerrors.New(
	fmt.Sprintf("signing key must be at least %d bytes", MinSigningKeyLength),
	goerrors.CategoryValidation,
).WithTextCode("INVALID_SIGNING_KEY")

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

var _ TokenService = (*TokenServiceImpl)(nil)

// TokenServiceOption configures a TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithClock overrides the time source used for iat, exp and expiry checks
func WithClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithIssuer sets the iss claim and requires it on verification
func WithIssuer(issuer string) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.issuer = issuer
	}
}

// WithAudience sets the aud claim and requires it on verification
func WithAudience(audience ...string) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.audience = jwt.ClaimStrings(audience)
	}
}

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.logger = normalizeLogger(logger)
	}
}

// NewTokenService creates a new TokenService instance. The key is copied
// and cannot be changed afterwards.
func NewTokenService(signingKey []byte, ttl time.Duration, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	if len(signingKey) < MinSigningKeyLength {
		return nil, ErrInvalidSigningKey
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	key := make([]byte, len(signingKey))
	copy(key, signingKey)

	ts := &TokenServiceImpl{
		signingKey: key,
		ttl:        ttl,
		logger:     defLogger{},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(ts)
	}

	return ts, nil
}

// NewTokenServiceFromConfig builds the token service described by cfg
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	base := []TokenServiceOption{
		WithIssuer(cfg.GetIssuer()),
		WithAudience(cfg.GetAudience()...),
	}
	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetTokenTTL(), append(base, opts...)...)
}

// TTL returns the configured token lifetime
func (ts *TokenServiceImpl) TTL() time.Duration {
	return ts.ttl
}

// Issue creates a signed token asserting identifier
func (ts *TokenServiceImpl) Issue(identifier string) (*IssuedToken, error) {
	if identifier == "" {
		return nil, withCause(ErrInvalidInput, errors.New("empty token subject"))
	}

	now := ts.now().Truncate(time.Second)
	expiresAt := now.Add(ts.ttl)

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identifier,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	ensureTokenID(&claims.RegisteredClaims)

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return nil, err
	}

	return &IssuedToken{
		Token:      signed,
		Identifier: identifier,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}, nil
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Verify checks signature and expiry. It fails with exactly one of
// ErrTokenMalformed, ErrTokenForged or ErrTokenExpired.
func (ts *TokenServiceImpl) Verify(tokenString string) (AuthClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, ts.classify(err)
	}

	if !token.Valid || claims.Subject() == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// Validate satisfies TokenValidator
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	return ts.Verify(tokenString)
}

func (ts *TokenServiceImpl) classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return withCause(ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return withCause(ErrTokenExpired, err)
	default:
		// bad signature, unexpected alg, foreign issuer or audience
		ts.logger.Debug("token rejected: %v", err)
		return withCause(ErrTokenForged, err)
	}
}
