package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-authcore"
)

// Manager groups the bun backed stores over a single database handle
type Manager struct {
	db       *bun.DB
	accounts *Accounts
	resets   *PasswordResets
}

var (
	_ repository.Validator          = (*Manager)(nil)
	_ repository.TransactionManager = (*Manager)(nil)
	_ auth.ResetUnit                = (*Manager)(nil)
)

// NewManager wires every repository to db. Call Migrate first.
func NewManager(db *bun.DB) *Manager {
	m := &Manager{db: db}
	m.accounts = NewAccounts(db)
	m.resets = NewPasswordResets(db)
	return m
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.resets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// RunReset runs fn in one transaction, so a failed secret update rolls
// back the token consumption with it.
func (m *Manager) RunReset(ctx context.Context, fn func(ctx context.Context, resets auth.ResetTokenStore, credentials auth.CredentialStore) error) error {
	return m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, m.resets.WithTx(tx), m.accounts.WithTx(tx))
	})
}

func (m *Manager) Accounts() *Accounts {
	return m.accounts
}

func (m *Manager) PasswordResets() *PasswordResets {
	return m.resets
}

// Ping checks the database is reachable
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func utcNow() time.Time {
	return time.Now().UTC()
}
