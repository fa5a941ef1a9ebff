package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

func (m FinalizePasswordResetMessage) Type() string { return "account.password_reset.finalize" }

// FinalizePasswordResetHandler redeems a reset token and replaces the secret
type FinalizePasswordResetHandler struct {
	store    CredentialStore
	resets   *ResetTokenManager
	hasher   PasswordAuthenticator
	unit     ResetUnit
	policy   PasswordPolicy
	timeout  time.Duration
	activity ActivitySink
	logger   Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(store CredentialStore, resets *ResetTokenManager, hasher PasswordAuthenticator) *FinalizePasswordResetHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &FinalizePasswordResetHandler{
		store:    store,
		resets:   resets,
		hasher:   hasher,
		policy:   DefaultPasswordPolicy(),
		timeout:  DefaultDependencyTimeout,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithPolicy sets the secret strength policy
func (h *FinalizePasswordResetHandler) WithPolicy(p PasswordPolicy) *FinalizePasswordResetHandler {
	h.policy = p
	return h
}

// WithResetUnit runs consumption and secret update in unit, e.g. a
// database transaction. Without one the token is released on failure.
func (h *FinalizePasswordResetHandler) WithResetUnit(unit ResetUnit) *FinalizePasswordResetHandler {
	h.unit = unit
	return h
}

// WithTimeout bounds each store call
func (h *FinalizePasswordResetHandler) WithTimeout(d time.Duration) *FinalizePasswordResetHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	// a weak secret must not burn the token
	if err := h.policy.Check(event.Secret); err != nil {
		return err
	}

	passwordHash, err := h.hasher.HashPassword(event.Secret)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new secret")
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var identifier string
	err = h.resetUnit().RunReset(ctx, func(ctx context.Context, resets ResetTokenStore, credentials CredentialStore) error {
		id, err := h.resets.ConsumeIn(ctx, resets, event.Token)
		if err != nil {
			return err
		}

		if err := credentials.UpdateSecret(ctx, id, passwordHash); err != nil {
			h.logger.Error("secret update failed for %s, reset token kept: %v", RedactIdentifier(id), err)
			if errors.Is(err, ErrIdentityNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return NewDependencyError(err, "update secret")
		}

		identifier = id
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrResetTokenNotFound):
		h.recordActivity(ctx, ActivityEventPasswordResetFailure, "")
		return ErrInvalidOrExpiredToken
	case errors.Is(err, ErrInvalidOrExpiredToken), errors.Is(err, ErrDependencyUnavailable):
		return err
	default:
		return NewDependencyError(err, "password reset")
	}

	h.recordActivity(ctx, ActivityEventPasswordResetSuccess, identifier)

	return nil
}

func (h *FinalizePasswordResetHandler) resetUnit() ResetUnit {
	if h.unit != nil {
		return h.unit
	}
	return h.resets.Unit(h.store)
}

func (h *FinalizePasswordResetHandler) recordActivity(ctx context.Context, eventType ActivityEventType, identifier string) {
	activityRecorder{sink: h.activity, logger: h.getLogger()}.record(ctx, eventType, identifier, nil)
}

func (h *FinalizePasswordResetHandler) getLogger() Logger {
	if h.logger != nil {
		return h.logger
	}
	return defLogger{}
}
