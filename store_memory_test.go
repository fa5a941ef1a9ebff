package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-authcore"
)

func TestMemoryStore_Accounts(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()

	_, err := store.FindByIdentifier(ctx, "a@x.com")
	assert.ErrorIs(t, err, auth.ErrIdentityNotFound)

	created, err := store.Create(ctx, "a@x.com", "hash-1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "a@x.com", created.Identifier)

	_, err = store.Create(ctx, "a@x.com", "hash-2")
	assert.ErrorIs(t, err, auth.ErrAccountExists)

	found, err := store.FindByIdentifier(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", found.SecretHash)
	assert.Nil(t, found.ResetAt)

	found.SecretHash = "mutated"
	again, err := store.FindByIdentifier(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", again.SecretHash, "store must hand out copies")

	require.NoError(t, store.UpdateSecret(ctx, "a@x.com", "hash-3"))
	updated, err := store.FindByIdentifier(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-3", updated.SecretHash)
	assert.NotNil(t, updated.ResetAt)

	assert.ErrorIs(t, store.UpdateSecret(ctx, "b@x.com", "hash"), auth.ErrIdentityNotFound)
}

func TestMemoryStore_ConcurrentCreateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()

	var created atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Create(ctx, "a@x.com", "hash"); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func TestMemoryStore_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := auth.NewMemoryStore()

	_, err := store.FindByIdentifier(ctx, "a@x.com")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Create(ctx, "a@x.com", "hash")
	assert.ErrorIs(t, err, context.Canceled)

	err = store.Replace(ctx, &auth.PasswordReset{AccountIdentifier: "a@x.com"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ResetRecords(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := auth.NewMemoryStore()

	require.NoError(t, store.Replace(ctx, &auth.PasswordReset{
		AccountIdentifier: "a@x.com",
		TokenHash:         "h1",
		ExpiresAt:         now.Add(time.Hour),
	}))
	require.NoError(t, store.Replace(ctx, &auth.PasswordReset{
		AccountIdentifier: "a@x.com",
		TokenHash:         "h2",
		ExpiresAt:         now.Add(time.Hour),
	}))

	assert.Equal(t, 1, store.ResetCount())

	_, err := store.Consume(ctx, "h1", now)
	assert.ErrorIs(t, err, auth.ErrResetTokenNotFound)

	record, err := store.Consume(ctx, "h2", now)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", record.AccountIdentifier)
	assert.NotNil(t, record.ConsumedAt)

	_, err = store.Consume(ctx, "h2", now)
	assert.ErrorIs(t, err, auth.ErrResetTokenNotFound)
}

func TestMemoryStore_Release(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := auth.NewMemoryStore()

	require.NoError(t, store.Replace(ctx, &auth.PasswordReset{
		AccountIdentifier: "a@x.com",
		TokenHash:         "h1",
		ExpiresAt:         now.Add(time.Hour),
	}))

	_, err := store.Consume(ctx, "h1", now)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "h1"))

	record, err := store.Consume(ctx, "h1", now)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", record.AccountIdentifier)

	assert.ErrorIs(t, store.Release(ctx, "unknown"), auth.ErrResetTokenNotFound)
}

func TestPasswordReset_IsLive(t *testing.T) {
	now := time.Now()

	var missing *auth.PasswordReset
	assert.False(t, missing.IsLive(now))

	live := &auth.PasswordReset{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, live.IsLive(now))

	expired := &auth.PasswordReset{ExpiresAt: now}
	assert.False(t, expired.IsLive(now))

	consumed := (&auth.PasswordReset{ExpiresAt: now.Add(time.Minute)}).MarkConsumed(now)
	assert.False(t, consumed.IsLive(now))
}
