package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-authcore"
)

// MockActivitySink implements auth.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func issueResetToken(t *testing.T, m *auth.ResetTokenManager, identifier string) string {
	t.Helper()
	raw, _, err := m.Issue(context.Background(), identifier)
	require.NoError(t, err)
	return raw
}

func TestFinalizePasswordResetHandlerEmitsActivity(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	sink := new(MockActivitySink)
	resets := auth.NewResetTokenManager(auth.NewMemoryStore(), time.Hour)

	raw := issueResetToken(t, resets, "a@x.com")

	handler := auth.NewFinalizePasswordResetHandler(store, resets, auth.NewBcryptHasher(bcrypt.MinCost)).
		WithActivitySink(sink).
		WithLogger(&captureLogger{})

	store.On("UpdateSecret", mock.Anything, "a@x.com", mock.MatchedBy(func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte("password12345")) == nil
	})).Return(nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt auth.ActivityEvent) bool {
		return evt.EventType == auth.ActivityEventPasswordResetSuccess &&
			evt.Identifier == "a@x.com"
	})).Return(nil).Once()

	err := handler.Execute(ctx, auth.FinalizePasswordResetMessage{
		Token:  raw,
		Secret: "password12345",
	})
	require.NoError(t, err)

	store.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestFinalizePasswordResetHandler_UnknownToken(t *testing.T) {
	store := new(MockCredentialStore)
	sink := new(MockActivitySink)
	resets := auth.NewResetTokenManager(auth.NewMemoryStore(), time.Hour)

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt auth.ActivityEvent) bool {
		return evt.EventType == auth.ActivityEventPasswordResetFailure && evt.Identifier == ""
	})).Return(nil).Once()

	handler := auth.NewFinalizePasswordResetHandler(store, resets, auth.NewBcryptHasher(bcrypt.MinCost)).
		WithActivitySink(sink).
		WithLogger(&captureLogger{})

	err := handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:  "does-not-exist",
		Secret: "password12345",
	})
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)

	store.AssertNotCalled(t, "UpdateSecret", mock.Anything, mock.Anything, mock.Anything)
	sink.AssertExpectations(t)
}

func TestFinalizePasswordResetHandler_UpdateFailureKeepsToken(t *testing.T) {
	store := new(MockCredentialStore)
	resets := auth.NewResetTokenManager(auth.NewMemoryStore(), time.Hour)
	raw := issueResetToken(t, resets, "a@x.com")

	store.On("UpdateSecret", mock.Anything, "a@x.com", mock.Anything).
		Return(errors.New("write timeout")).Once()
	store.On("UpdateSecret", mock.Anything, "a@x.com", mock.Anything).
		Return(nil).Once()

	handler := auth.NewFinalizePasswordResetHandler(store, resets, auth.NewBcryptHasher(bcrypt.MinCost)).
		WithLogger(&captureLogger{})

	msg := auth.FinalizePasswordResetMessage{Token: raw, Secret: "password12345"}

	err := handler.Execute(context.Background(), msg)
	assert.ErrorIs(t, err, auth.ErrDependencyUnavailable)

	// the failed attempt left the token redeemable
	err = handler.Execute(context.Background(), msg)
	require.NoError(t, err)

	err = handler.Execute(context.Background(), msg)
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)

	store.AssertExpectations(t)
}

type failingUnit struct {
	err error
}

func (u failingUnit) RunReset(ctx context.Context, fn func(ctx context.Context, resets auth.ResetTokenStore, credentials auth.CredentialStore) error) error {
	return u.err
}

func TestFinalizePasswordResetHandler_ResetUnit(t *testing.T) {
	resets := auth.NewResetTokenManager(auth.NewMemoryStore(), time.Hour)
	raw := issueResetToken(t, resets, "a@x.com")

	handler := auth.NewFinalizePasswordResetHandler(new(MockCredentialStore), resets, auth.NewBcryptHasher(bcrypt.MinCost)).
		WithResetUnit(failingUnit{err: errors.New("begin tx: connection refused")}).
		WithLogger(&captureLogger{})

	err := handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{Token: raw, Secret: "password12345"})
	assert.ErrorIs(t, err, auth.ErrDependencyUnavailable)

	// the unit never ran, so the token is untouched
	identifier, err := resets.Consume(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", identifier)
}

func TestFinalizePasswordResetHandler_CancelledContext(t *testing.T) {
	resets := auth.NewResetTokenManager(auth.NewMemoryStore(), time.Hour)
	raw := issueResetToken(t, resets, "a@x.com")

	handler := auth.NewFinalizePasswordResetHandler(new(MockCredentialStore), resets, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handler.Execute(ctx, auth.FinalizePasswordResetMessage{Token: raw, Secret: "password12345"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// the token survives a request that never ran
	identifier, err := resets.Consume(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", identifier)
}

func TestInitializePasswordResetHandler(t *testing.T) {
	store := new(MockCredentialStore)
	box := newOutbox()
	resetStore := auth.NewMemoryStore()
	resets := auth.NewResetTokenManager(resetStore, time.Hour)

	store.On("FindByIdentifier", mock.Anything, "a@x.com").Return(&auth.Account{Identifier: "a@x.com"}, nil)
	store.On("FindByIdentifier", mock.Anything, "ghost@x.com").Return(nil, auth.ErrIdentityNotFound)

	handler := auth.NewInitializePasswordResetHandler(store, resets, box).
		WithTimeouts(time.Second, time.Second).
		WithLogger(&captureLogger{})

	var responses []*auth.InitializePasswordResetResponse
	onResponse := func(resp *auth.InitializePasswordResetResponse) {
		responses = append(responses, resp)
	}

	for _, identifier := range []string{"a@x.com", "ghost@x.com", "not-an-email"} {
		err := handler.Execute(context.Background(), auth.InitializePasswordResetMessage{
			Identifier: identifier,
			OnResponse: onResponse,
		})
		require.NoError(t, err)
	}

	require.Len(t, responses, 3)
	assert.True(t, responses[0].Issued)
	assert.False(t, responses[1].Issued)
	assert.False(t, responses[2].Issued)
	for _, resp := range responses {
		assert.True(t, resp.Success)
		assert.Equal(t, auth.AccountVerification, resp.Stage)
	}

	assert.Equal(t, 1, box.Calls())
	assert.Equal(t, 1, resetStore.ResetCount())
	store.AssertNumberOfCalls(t, "FindByIdentifier", 2)
}

func TestInitializePasswordResetHandler_StoreFailure(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("FindByIdentifier", mock.Anything, "a@x.com").Return(nil, errors.New("connection refused"))

	handler := auth.NewInitializePasswordResetHandler(store, auth.NewResetTokenManager(auth.NewMemoryStore(), time.Hour), newOutbox()).
		WithLogger(&captureLogger{})

	err := handler.Execute(context.Background(), auth.InitializePasswordResetMessage{Identifier: "a@x.com"})
	assert.ErrorIs(t, err, auth.ErrDependencyUnavailable)
}
