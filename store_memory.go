package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in process CredentialStore and ResetTokenStore. A
// single mutex serialises every operation, which is what makes reset
// replacement and consumption atomic.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	resets   map[string]*PasswordReset // keyed by account identifier
	byHash   map[string]string         // token hash -> account identifier
	now      func() time.Time
}

var (
	_ CredentialStore = (*MemoryStore)(nil)
	_ ResetTokenStore = (*MemoryStore)(nil)
	_ ResetReleaser   = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		resets:   make(map[string]*PasswordReset),
		byHash:   make(map[string]string),
		now:      time.Now,
	}
}

func (s *MemoryStore) FindByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[identifier]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *MemoryStore) Create(ctx context.Context, identifier, secretHash string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[identifier]; ok {
		return nil, ErrAccountExists
	}

	now := s.now().UTC()
	acc := &Account{
		ID:         uuid.New(),
		Identifier: identifier,
		SecretHash: secretHash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.accounts[identifier] = acc

	cp := *acc
	return &cp, nil
}

func (s *MemoryStore) UpdateSecret(ctx context.Context, identifier, secretHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[identifier]
	if !ok {
		return ErrIdentityNotFound
	}

	now := s.now().UTC()
	acc.SecretHash = secretHash
	acc.UpdatedAt = now
	acc.ResetAt = &now
	return nil
}

func (s *MemoryStore) Replace(ctx context.Context, record *PasswordReset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.resets[record.AccountIdentifier]; ok {
		delete(s.byHash, prev.TokenHash)
	}

	cp := *record
	s.resets[record.AccountIdentifier] = &cp
	s.byHash[record.TokenHash] = record.AccountIdentifier
	return nil
}

func (s *MemoryStore) Consume(ctx context.Context, tokenHash string, now time.Time) (*PasswordReset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identifier, ok := s.byHash[tokenHash]
	if !ok {
		return nil, ErrResetTokenNotFound
	}

	record := s.resets[identifier]
	if !record.IsLive(now) {
		return nil, ErrResetTokenNotFound
	}

	record.MarkConsumed(now)
	cp := *record
	return &cp, nil
}

// Release puts a consumed record back in play. A record replaced since it
// was consumed is left alone.
func (s *MemoryStore) Release(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identifier, ok := s.byHash[tokenHash]
	if !ok {
		return ErrResetTokenNotFound
	}

	s.resets[identifier].ConsumedAt = nil
	return nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for identifier, record := range s.resets {
		if record.IsLive(now) {
			continue
		}
		delete(s.byHash, record.TokenHash)
		delete(s.resets, identifier)
		n++
	}
	return n, nil
}

// ResetCount reports stored reset records, live or not
func (s *MemoryStore) ResetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resets)
}
