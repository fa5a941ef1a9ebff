package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-authcore"
)

// NewAccountsRepository returns the generic repository over accounts.
// Records are keyed by id and looked up by identifier.
func NewAccountsRepository(db *bun.DB) repository.Repository[*auth.Account] {
	return repository.NewRepository[*auth.Account](db, repository.ModelHandlers[*auth.Account]{
		NewRecord: func() *auth.Account { return &auth.Account{} },
		GetID: func(a *auth.Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *auth.Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "identifier"
		},
		GetIdentifierValue: func(a *auth.Account) string {
			if a == nil {
				return ""
			}
			return a.Identifier
		},
	})
}

// Accounts is the CredentialStore over the accounts table
type Accounts struct {
	db      bun.IDB
	records repository.Repository[*auth.Account]
	now     func() time.Time
}

var _ auth.CredentialStore = (*Accounts)(nil)

func NewAccounts(db *bun.DB) *Accounts {
	return &Accounts{
		db:      db,
		records: NewAccountsRepository(db),
		now:     utcNow,
	}
}

// WithTx returns a view of the store that runs every call in tx
func (r *Accounts) WithTx(tx bun.IDB) *Accounts {
	cp := *r
	cp.db = tx
	return &cp
}

// Records exposes the generic repository, e.g. for listing accounts
func (r *Accounts) Records() repository.Repository[*auth.Account] {
	return r.records
}

func (r *Accounts) FindByIdentifier(ctx context.Context, identifier string) (*auth.Account, error) {
	return r.FindByIdentifierTx(ctx, r.db, identifier)
}

func (r *Accounts) FindByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*auth.Account, error) {
	account, err := r.records.GetByIdentifierTx(ctx, tx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, auth.ErrIdentityNotFound
		}
		return nil, err
	}
	return account, nil
}

// Create inserts a new account. The unique index on identifier decides
// concurrent signups for the same identifier.
func (r *Accounts) Create(ctx context.Context, identifier, secretHash string) (*auth.Account, error) {
	return r.CreateTx(ctx, r.db, identifier, secretHash)
}

func (r *Accounts) CreateTx(ctx context.Context, tx bun.IDB, identifier, secretHash string) (*auth.Account, error) {
	now := r.now()
	account, err := r.records.CreateTx(ctx, tx, &auth.Account{
		Identifier: identifier,
		SecretHash: secretHash,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		if repository.IsDuplicatedKey(err) {
			return nil, auth.ErrAccountExists
		}
		return nil, err
	}
	return account, nil
}

func (r *Accounts) UpdateSecret(ctx context.Context, identifier, secretHash string) error {
	return r.UpdateSecretTx(ctx, r.db, identifier, secretHash)
}

func (r *Accounts) UpdateSecretTx(ctx context.Context, tx bun.IDB, identifier, secretHash string) error {
	account, err := r.FindByIdentifierTx(ctx, tx, identifier)
	if err != nil {
		return err
	}

	now := r.now()
	account.SecretHash = secretHash
	account.UpdatedAt = now
	account.ResetAt = &now

	_, err = r.records.UpdateTx(ctx, tx, account,
		repository.UpdateColumns("secret_hash", "updated_at", "reset_at"),
	)
	if repository.IsRecordNotFound(err) {
		return auth.ErrIdentityNotFound
	}
	return err
}
