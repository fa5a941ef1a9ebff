package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// PasswordResetStep step on password reset
type PasswordResetStep = string

const (
	// ResetInit is the initial step
	ResetInit PasswordResetStep = "show-reset"
	// AccountVerification notification sent, or pretended to be
	AccountVerification PasswordResetStep = "email-sent"
	// ChangeFinalized secret changed
	ChangeFinalized PasswordResetStep = "password-changed"
)

type InitializePasswordResetMessage struct {
	Identifier string `json:"identifier"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "account.password_reset" }

// InitializePasswordResetResponse is identical for known and unknown
// accounts except for Issued, which never leaves the process.
type InitializePasswordResetResponse struct {
	Stage   string
	Success bool
	Issued  bool
}

// InitializePasswordResetHandler issues a reset token and sends the link
type InitializePasswordResetHandler struct {
	store           CredentialStore
	resets          *ResetTokenManager
	notifier        ResetNotifier
	storeTimeout    time.Duration
	notifierTimeout time.Duration
	activity        activityRecorder
	logger          Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(store CredentialStore, resets *ResetTokenManager, notifier ResetNotifier) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		store:           store,
		resets:          resets,
		notifier:        notifier,
		storeTimeout:    DefaultDependencyTimeout,
		notifierTimeout: DefaultDependencyTimeout,
		logger:          defLogger{},
	}
}

// WithTimeouts bounds store and notifier calls
func (h *InitializePasswordResetHandler) WithTimeouts(store, notifier time.Duration) *InitializePasswordResetHandler {
	if store > 0 {
		h.storeTimeout = store
	}
	if notifier > 0 {
		h.notifierTimeout = notifier
	}
	return h
}

// WithActivitySink sets the sink used to emit reset request events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity.sink = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
		h.activity.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{Stage: AccountVerification}
	identifier := NormalizeIdentifier(event.Identifier)

	// a malformed identifier cannot name an account, answer as if unknown
	if CheckIdentifier(identifier) == nil {
		issued, err := h.issue(ctx, identifier)
		if err != nil {
			return err
		}
		resp.Issued = issued
	}

	h.activity.record(ctx, ActivityEventPasswordResetRequest, "", map[string]any{
		"issued": resp.Issued,
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *InitializePasswordResetHandler) issue(ctx context.Context, identifier string) (bool, error) {
	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	account, err := h.store.FindByIdentifier(sctx, identifier)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			h.logger.Debug("password reset requested for unknown account %s", RedactIdentifier(identifier))
			return false, nil
		}
		return false, NewDependencyError(err, "find account")
	}

	raw, _, err := h.resets.Issue(sctx, account.Identifier)
	if err != nil {
		return false, err
	}

	nctx, ncancel := context.WithTimeout(ctx, h.notifierTimeout)
	defer ncancel()

	if err := h.notifier.SendResetLink(nctx, account.Identifier, raw); err != nil {
		h.logger.Error("reset link delivery failed for %s: %v", RedactIdentifier(account.Identifier), err)
		return false, NewDependencyError(err, "send reset link")
	}

	return true, nil
}
