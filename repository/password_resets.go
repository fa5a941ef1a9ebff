package repository

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-authcore"
)

// PasswordResets keeps one reset record per account in password_resets.
// It stays on plain bun queries: Consume is a conditional UPDATE and Replace
// an upsert, neither of which the generic repository expresses.
type PasswordResets struct {
	db bun.IDB
}

var _ auth.ResetTokenStore = (*PasswordResets)(nil)

func NewPasswordResets(db *bun.DB) *PasswordResets {
	return &PasswordResets{db: db}
}

// WithTx returns a view of the store that runs every call in tx
func (r *PasswordResets) WithTx(tx bun.IDB) *PasswordResets {
	return &PasswordResets{db: tx}
}

// Replace upserts on account_identifier, so issuing a token for an
// account overwrites the previous hash and clears consumed_at.
func (r *PasswordResets) Replace(ctx context.Context, record *auth.PasswordReset) error {
	return r.ReplaceTx(ctx, r.db, record)
}

func (r *PasswordResets) ReplaceTx(ctx context.Context, tx bun.IDB, record *auth.PasswordReset) error {
	row := *record
	row.ExpiresAt = row.ExpiresAt.UTC()
	row.ConsumedAt = nil
	if row.CreatedAt.IsZero() {
		row.CreatedAt = utcNow()
	}

	_, err := tx.NewInsert().
		Model(&row).
		On("CONFLICT (account_identifier) DO UPDATE").
		Set("token_hash = EXCLUDED.token_hash").
		Set("expires_at = EXCLUDED.expires_at").
		Set("created_at = EXCLUDED.created_at").
		Set("consumed_at = NULL").
		Exec(ctx)
	return err
}

// Consume marks the record matching tokenHash as consumed. The guarded
// UPDATE is the compare and swap: of any number of concurrent callers
// exactly one sees a row affected.
func (r *PasswordResets) Consume(ctx context.Context, tokenHash string, now time.Time) (*auth.PasswordReset, error) {
	var record *auth.PasswordReset
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = r.ConsumeTx(ctx, tx, tokenHash, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *PasswordResets) ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string, now time.Time) (*auth.PasswordReset, error) {
	now = now.UTC()

	res, err := tx.NewUpdate().
		Model((*auth.PasswordReset)(nil)).
		Set("consumed_at = ?", now).
		Where("token_hash = ?", tokenHash).
		Where("consumed_at IS NULL").
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, auth.ErrResetTokenNotFound
	}

	record := new(auth.PasswordReset)
	err = tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", tokenHash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteExpired removes records that can no longer be consumed
func (r *PasswordResets) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*auth.PasswordReset)(nil)).
		Where("expires_at <= ? OR consumed_at IS NOT NULL", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Count reports stored records, live or not
func (r *PasswordResets) Count(ctx context.Context) (int, error) {
	return r.db.NewSelect().Model((*auth.PasswordReset)(nil)).Count(ctx)
}
