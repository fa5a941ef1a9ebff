package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultDependencyTimeout bounds a single store or notifier call
const DefaultDependencyTimeout = 10 * time.Second

type RegisterUserMessage struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	OnResponse func(account *Account)
}

func (e RegisterUserMessage) Type() string { return "account.register" }

// RegisterUserHandler creates accounts
type RegisterUserHandler struct {
	store   CredentialStore
	hasher  PasswordAuthenticator
	policy  PasswordPolicy
	timeout time.Duration
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(store CredentialStore, hasher PasswordAuthenticator) *RegisterUserHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &RegisterUserHandler{
		store:   store,
		hasher:  hasher,
		policy:  DefaultPasswordPolicy(),
		timeout: DefaultDependencyTimeout,
	}
}

// WithPolicy sets the secret strength policy
func (h *RegisterUserHandler) WithPolicy(p PasswordPolicy) *RegisterUserHandler {
	h.policy = p
	return h
}

// WithTimeout bounds each store call
func (h *RegisterUserHandler) WithTimeout(d time.Duration) *RegisterUserHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	identifier := NormalizeIdentifier(event.Identifier)
	if err := CheckIdentifier(identifier); err != nil {
		return err
	}

	if err := h.policy.Check(event.Secret); err != nil {
		return err
	}

	if err := h.ensureAvailable(ctx, identifier); err != nil {
		return err
	}

	hash, err := h.hasher.HashPassword(event.Secret)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash secret")
	}

	sctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	account, err := h.store.Create(sctx, identifier, hash)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return ErrAccountExists
		}
		return NewDependencyError(err, "create account")
	}

	if event.OnResponse != nil {
		event.OnResponse(account)
	}

	return nil
}

// ensureAvailable is a fast path that skips hashing for taken identifiers.
// Create stays authoritative for concurrent signups.
func (h *RegisterUserHandler) ensureAvailable(ctx context.Context, identifier string) error {
	sctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	_, err := h.store.FindByIdentifier(sctx, identifier)
	switch {
	case err == nil:
		return ErrAccountExists
	case errors.Is(err, ErrIdentityNotFound):
		return nil
	default:
		return NewDependencyError(err, "find account")
	}
}
