package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the credential record. SecretHash is a bcrypt hash and never
// leaves the package in responses.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Identifier    string     `bun:"identifier,notnull,unique" json:"identifier"`
	SecretHash    string     `bun:"secret_hash,notnull" json:"-"`
	ResetAt       *time.Time `bun:"reset_at,nullzero" json:"reset_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// PasswordReset is the stored half of a reset token. The raw token is
// never persisted, only its SHA-256 digest.
type PasswordReset struct {
	bun.BaseModel     `bun:"table:password_resets,alias:pwdr"`
	AccountIdentifier string     `bun:"account_identifier,pk" json:"account_identifier"`
	TokenHash         string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt         time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	ConsumedAt        *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt         time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// IsLive reports whether the record can still be consumed at now
func (r *PasswordReset) IsLive(now time.Time) bool {
	if r == nil || r.ConsumedAt != nil {
		return false
	}
	return now.Before(r.ExpiresAt)
}

// MarkConsumed will set the consumption time
func (r *PasswordReset) MarkConsumed(now time.Time) *PasswordReset {
	t := now
	r.ConsumedAt = &t
	return r
}
