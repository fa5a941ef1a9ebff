package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// ResetTokenBytes of randomness, hex encoded to 64 characters
	ResetTokenBytes = 32
	DefaultResetTTL = time.Hour
)

// ResetTokenManager issues and consumes single use reset tokens. Only the
// SHA-256 digest of a token is handed to the store.
type ResetTokenManager struct {
	store  ResetTokenStore
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
	logger Logger
}

// ResetTokenOption configures a ResetTokenManager
type ResetTokenOption func(*ResetTokenManager)

func WithResetClock(now func() time.Time) ResetTokenOption {
	return func(m *ResetTokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithResetRandom overrides the entropy source, tests only
func WithResetRandom(r io.Reader) ResetTokenOption {
	return func(m *ResetTokenManager) {
		if r != nil {
			m.random = r
		}
	}
}

func WithResetLogger(logger Logger) ResetTokenOption {
	return func(m *ResetTokenManager) {
		m.logger = normalizeLogger(logger)
	}
}

// NewResetTokenManager creates a manager over store
func NewResetTokenManager(store ResetTokenStore, ttl time.Duration, opts ...ResetTokenOption) *ResetTokenManager {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}

	m := &ResetTokenManager{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		random: rand.Reader,
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Issue creates a new reset token for identifier, replacing any earlier
// one. The raw token is returned once and never stored.
func (m *ResetTokenManager) Issue(ctx context.Context, identifier string) (string, time.Time, error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err := io.ReadFull(m.random, buf); err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate reset token")
	}

	raw := hex.EncodeToString(buf)
	now := m.now().UTC()

	record := &PasswordReset{
		AccountIdentifier: identifier,
		TokenHash:         HashResetToken(raw),
		ExpiresAt:         now.Add(m.ttl),
		CreatedAt:         now,
	}

	if err := m.store.Replace(ctx, record); err != nil {
		return "", time.Time{}, NewDependencyError(err, "store reset token")
	}

	return raw, record.ExpiresAt, nil
}

// Consume redeems raw exactly once and returns the account it was issued
// for. Unknown, expired and already consumed tokens all yield
// ErrResetTokenNotFound.
func (m *ResetTokenManager) Consume(ctx context.Context, raw string) (string, error) {
	return m.ConsumeIn(ctx, m.store, raw)
}

// ConsumeIn is Consume against store, the reset store bound to a ResetUnit.
func (m *ResetTokenManager) ConsumeIn(ctx context.Context, store ResetTokenStore, raw string) (string, error) {
	if !wellFormedResetToken(raw) {
		return "", ErrResetTokenNotFound
	}

	record, err := store.Consume(ctx, HashResetToken(raw), m.now().UTC())
	if err != nil {
		if errors.Is(err, ErrResetTokenNotFound) {
			return "", ErrResetTokenNotFound
		}
		return "", NewDependencyError(err, "consume reset token")
	}

	return record.AccountIdentifier, nil
}

// Unit returns the ResetUnit used when the stores offer no transaction:
// consumptions are journaled and released again if the update fails.
func (m *ResetTokenManager) Unit(credentials CredentialStore) ResetUnit {
	return &releasingResetUnit{resets: m.store, credentials: credentials, logger: m.logger}
}

// Purge deletes expired and consumed records
func (m *ResetTokenManager) Purge(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, NewDependencyError(err, "purge reset tokens")
	}
	return n, nil
}

// RunPurger calls Purge every interval until ctx is done
func (m *ResetTokenManager) RunPurger(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Purge(ctx)
			if err != nil {
				m.logger.Warn("reset token purge failed: %v", err)
				continue
			}
			if n > 0 {
				m.logger.Debug("purged %d reset tokens", n)
			}
		}
	}
}

// HashResetToken returns the hex SHA-256 digest stored for raw
func HashResetToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// wellFormedResetToken rejects anything that could not have been issued
// here, so guessing short values never reaches the store.
func wellFormedResetToken(raw string) bool {
	if len(raw) != hex.EncodedLen(ResetTokenBytes) {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}

type releasingResetUnit struct {
	resets      ResetTokenStore
	credentials CredentialStore
	logger      Logger
}

func (u *releasingResetUnit) RunReset(ctx context.Context, fn func(ctx context.Context, resets ResetTokenStore, credentials CredentialStore) error) error {
	journal := &journalingResetStore{ResetTokenStore: u.resets}

	err := fn(ctx, journal, u.credentials)
	if err == nil {
		return nil
	}

	releaser, ok := u.resets.(ResetReleaser)
	if !ok {
		return err
	}

	// the request context may be the reason fn failed
	releaseCtx := context.WithoutCancel(ctx)
	for _, tokenHash := range journal.consumed {
		if releaseErr := releaser.Release(releaseCtx, tokenHash); releaseErr != nil {
			u.logger.Error("reset token release failed: %v", releaseErr)
		}
	}
	return err
}

type journalingResetStore struct {
	ResetTokenStore
	consumed []string
}

func (j *journalingResetStore) Consume(ctx context.Context, tokenHash string, now time.Time) (*PasswordReset, error) {
	record, err := j.ResetTokenStore.Consume(ctx, tokenHash, now)
	if err == nil {
		j.consumed = append(j.consumed, tokenHash)
	}
	return record, err
}
