package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Auther is the session service: signup, login, password reset, logout
// and token validation on top of the stores and the token codec.
type Auther struct {
	store     CredentialStore
	resets    *ResetTokenManager
	unit      ResetUnit
	tokens    TokenService
	validator TokenValidator
	hasher    PasswordAuthenticator
	notifier  ResetNotifier
	policy    PasswordPolicy
	provider  *UserProvider
	cfg       Config
	activity  ActivitySink
	logger    Logger
	now       func() time.Time
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store CredentialStore, resetStore ResetTokenStore, tokens TokenService, cfg Config) *Auther {
	s := &Auther{
		store:     store,
		tokens:    tokens,
		validator: tokens,
		hasher:    NewBcryptHasher(0),
		policy: PasswordPolicy{
			MinLength: cfg.GetPasswordMinLength(),
			MaxLength: cfg.GetPasswordMaxLength(),
		},
		cfg:      cfg,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
	s.notifier = LogNotifier{BaseURL: cfg.GetResetLinkBaseURL(), Logger: s.logger}
	s.resets = NewResetTokenManager(resetStore, cfg.GetResetTTL())
	s.provider = NewUserProvider(store, s.hasher).WithTimeout(cfg.GetStoreTimeout())
	return s
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	s.provider.WithLogger(s.logger)
	if n, ok := s.notifier.(LogNotifier); ok {
		n.Logger = s.logger
		s.notifier = n
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithNotifier sets the reset link delivery collaborator
func (s *Auther) WithNotifier(n ResetNotifier) *Auther {
	if n != nil {
		s.notifier = n
	}
	return s
}

// WithHasher replaces the bcrypt hasher, mostly to lower the cost in tests
func (s *Auther) WithHasher(h PasswordAuthenticator) *Auther {
	if h != nil {
		s.hasher = h
		s.provider = NewUserProvider(s.store, h).
			WithTimeout(s.cfg.GetStoreTimeout()).
			WithLogger(s.logger)
	}
	return s
}

// WithTokenValidator sets the validator used for incoming tokens, e.g. a
// rotating validator that still accepts a retired key.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	if validator != nil {
		s.validator = validator
	}
	return s
}

// WithResetTokenManager replaces the reset token manager
func (s *Auther) WithResetTokenManager(m *ResetTokenManager) *Auther {
	if m != nil {
		s.resets = m
	}
	return s
}

// WithResetUnit makes password resets consume the token and update the
// secret in one unit of work, see repository.Manager.
func (s *Auther) WithResetUnit(unit ResetUnit) *Auther {
	s.unit = unit
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokens
}

// TokenValidator returns the validator used by middleware
func (s *Auther) TokenValidator() TokenValidator {
	return s.validator
}

// ResetTokens returns the reset token manager, e.g. to run the purger
func (s *Auther) ResetTokens() *ResetTokenManager {
	return s.resets
}

// Signup creates an account and returns a token for it
func (s *Auther) Signup(ctx context.Context, identifier, secret string) (*IssuedToken, error) {
	var account *Account

	handler := NewRegisterUserHandler(s.store, s.hasher).
		WithPolicy(s.policy).
		WithTimeout(s.cfg.GetStoreTimeout())

	err := handler.Execute(ctx, RegisterUserMessage{
		Identifier: identifier,
		Secret:     secret,
		OnResponse: func(a *Account) {
			account = a
		},
	})
	if err != nil {
		s.logger.Debug("signup rejected: %v", err)
		return nil, err
	}

	token, err := s.tokens.Issue(account.Identifier)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue token after signup")
	}

	s.record(ctx, ActivityEventSignup, account.Identifier, nil)

	return token, nil
}

// Login verifies the credentials and returns a fresh token
func (s *Auther) Login(ctx context.Context, identifier, secret string) (*IssuedToken, error) {
	account, err := s.provider.VerifyIdentity(ctx, identifier, secret)
	if err != nil {
		s.record(ctx, ActivityEventLoginFailure, "", map[string]any{
			"text_code": textCode(err),
		})
		return nil, err
	}

	token, err := s.tokens.Issue(account.Identifier)
	if err != nil {
		s.record(ctx, ActivityEventLoginFailure, account.Identifier, nil)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue token after login")
	}

	s.record(ctx, ActivityEventLoginSuccess, account.Identifier, nil)

	return token, nil
}

// ForgotPassword starts a reset. The result is the same whether or not
// identifier names an account.
func (s *Auther) ForgotPassword(ctx context.Context, identifier string) error {
	handler := NewInitializePasswordResetHandler(s.store, s.resets, s.notifier).
		WithTimeouts(s.cfg.GetStoreTimeout(), s.cfg.GetNotifierTimeout()).
		WithActivitySink(s.activity).
		WithLogger(s.logger)

	return handler.Execute(ctx, InitializePasswordResetMessage{Identifier: identifier})
}

// ResetPassword redeems rawToken and sets newSecret
func (s *Auther) ResetPassword(ctx context.Context, rawToken, newSecret string) error {
	handler := NewFinalizePasswordResetHandler(s.store, s.resets, s.hasher).
		WithResetUnit(s.unit).
		WithPolicy(s.policy).
		WithTimeout(s.cfg.GetStoreTimeout()).
		WithActivitySink(s.activity).
		WithLogger(s.logger)

	return handler.Execute(ctx, FinalizePasswordResetMessage{
		Token:  rawToken,
		Secret: newSecret,
	})
}

// Logout always succeeds. Tokens are stateless, so a token presented here
// stays valid until it expires; logout only tells the client to drop it.
func (s *Auther) Logout(ctx context.Context, claims AuthClaims) error {
	identifier := ""
	if claims != nil {
		identifier = claims.Subject()
	}
	s.record(ctx, ActivityEventLogout, identifier, nil)
	return nil
}

// ValidateToken returns what verified claims assert
func (s *Auther) ValidateToken(_ context.Context, claims AuthClaims) (TokenIdentity, error) {
	if claims == nil || claims.Subject() == "" {
		return TokenIdentity{}, ErrUnauthorized
	}
	return IdentityFromClaims(claims), nil
}

// SessionFromToken verifies a raw token. Every codec failure becomes
// ErrUnauthorized so callers cannot tell expired from forged.
func (s *Auther) SessionFromToken(token string) (AuthClaims, error) {
	claims, err := s.validator.Validate(token)
	if err != nil {
		s.logger.Debug("token verification failed: %v", err)
		return nil, ErrUnauthorized
	}
	return claims, nil
}

func (s *Auther) record(ctx context.Context, eventType ActivityEventType, identifier string, metadata map[string]any) {
	activityRecorder{sink: s.activity, logger: s.logger, now: s.now}.record(ctx, eventType, identifier, metadata)
}

func textCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}
