package auth

import (
	"context"
	"errors"
	"time"
)

// UserProvider verifies credentials against a CredentialStore
type UserProvider struct {
	store   CredentialStore
	hasher  PasswordAuthenticator
	dummy   string
	timeout time.Duration
	logger  Logger
}

// NewUserProvider will create a new UserProvider. It hashes a random
// secret up front; unknown accounts are compared against that hash so a
// miss costs the same as a wrong secret, the first one included.
func NewUserProvider(store CredentialStore, hasher PasswordAuthenticator) *UserProvider {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &UserProvider{
		store:   store,
		hasher:  hasher,
		dummy:   RandomPasswordHash(hasher),
		timeout: DefaultDependencyTimeout,
		logger:  defLogger{},
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = normalizeLogger(l)
	return u
}

// WithTimeout bounds the store lookup
func (u *UserProvider) WithTimeout(d time.Duration) *UserProvider {
	if d > 0 {
		u.timeout = d
	}
	return u
}

// VerifyIdentity will find the account and compare the secret. Unknown
// accounts and wrong secrets both return ErrInvalidCredentials, and both
// pay for one bcrypt comparison.
func (u *UserProvider) VerifyIdentity(ctx context.Context, identifier, secret string) (*Account, error) {
	identifier = NormalizeIdentifier(identifier)

	sctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	account, err := u.store.FindByIdentifier(sctx, identifier)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			_ = u.hasher.ComparePasswordAndHash(secret, u.dummy)
			return nil, ErrInvalidCredentials
		}
		return nil, NewDependencyError(err, "find account")
	}

	if err := u.hasher.ComparePasswordAndHash(secret, account.SecretHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			u.logger.Error("secret comparison failed for %s: %v", RedactIdentifier(identifier), err)
		}
		return nil, ErrInvalidCredentials
	}

	return account, nil
}
