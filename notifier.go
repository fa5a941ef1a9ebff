package auth

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// NotifierFunc adapts a function to the ResetNotifier interface.
type NotifierFunc func(ctx context.Context, identifier, rawToken string) error

// SendResetLink implements ResetNotifier.
func (f NotifierFunc) SendResetLink(ctx context.Context, identifier, rawToken string) error {
	if f == nil {
		return nil
	}
	return f(ctx, identifier, rawToken)
}

// LogNotifier writes the reset link to the logger instead of sending mail.
// Meant for local development only since the link grants a secret change.
type LogNotifier struct {
	BaseURL string
	Logger  Logger
}

// SendResetLink implements ResetNotifier.
func (n LogNotifier) SendResetLink(ctx context.Context, identifier, rawToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalizeLogger(n.Logger).Info(
		"password reset link for %s: %s",
		RedactIdentifier(identifier),
		ResetLink(n.BaseURL, rawToken),
	)
	return nil
}

// ResetLink joins base and token into the URL handed to the account holder
func ResetLink(base, rawToken string) string {
	if base == "" {
		base = "/reset-password"
	}
	return strings.TrimRight(base, "/") + "/" + rawToken
}

// RetryingNotifier retries a notifier with exponential backoff. Every
// failure is treated as transient; the caller bounds the total time with
// its context.
type RetryingNotifier struct {
	next       ResetNotifier
	base       time.Duration
	maxRetries uint64
	logger     Logger
}

// NewRetryingNotifier wraps next
func NewRetryingNotifier(next ResetNotifier, maxRetries uint64, base time.Duration, logger Logger) *RetryingNotifier {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return &RetryingNotifier{
		next:       next,
		base:       base,
		maxRetries: maxRetries,
		logger:     normalizeLogger(logger),
	}
}

// SendResetLink implements ResetNotifier.
func (n *RetryingNotifier) SendResetLink(ctx context.Context, identifier, rawToken string) error {
	backoff := retry.WithMaxRetries(n.maxRetries, retry.NewExponential(n.base))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := n.next.SendResetLink(ctx, identifier, rawToken); err != nil {
			n.logger.Warn("reset notification attempt %d failed: %v", attempt, err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
