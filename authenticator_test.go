package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-authcore"
)

func TestAuther_Signup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	issued, err := h.auther.Signup(ctx, " A@X.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", issued.Identifier)

	claims, err := h.tokens.Verify(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Subject())

	account, err := h.store.FindByIdentifier(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", account.SecretHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte("secret1")))

	assert.Contains(t, h.events.Types(), auth.ActivityEventSignup)
}

func TestAuther_SignupRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	tests := []struct {
		name       string
		identifier string
		secret     string
		wantErr    error
	}{
		{name: "duplicate", identifier: "a@x.com", secret: "another1", wantErr: auth.ErrAccountExists},
		{name: "duplicate differing in case", identifier: "A@x.COM", secret: "another1", wantErr: auth.ErrAccountExists},
		{name: "empty identifier", identifier: "", secret: "secret1", wantErr: auth.ErrInvalidInput},
		{name: "malformed identifier", identifier: "nope", secret: "secret1", wantErr: auth.ErrInvalidInput},
		{name: "short secret", identifier: "b@x.com", secret: "123", wantErr: auth.ErrInvalidInput},
		{name: "empty secret", identifier: "b@x.com", secret: "", wantErr: auth.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := h.auther.Signup(ctx, tt.identifier, tt.secret)
			assert.Nil(t, token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = h.store.FindByIdentifier(ctx, "b@x.com")
	assert.ErrorIs(t, err, auth.ErrIdentityNotFound)
}

func TestAuther_ConcurrentSignupCreatesOneAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var mu sync.Mutex
	results := map[string]int{}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.auther.Signup(ctx, "race@x.com", "secret1")
			key := "ok"
			if errors.Is(err, auth.ErrAccountExists) {
				key = "conflict"
			} else if err != nil {
				key = err.Error()
			}
			mu.Lock()
			results[key]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"ok": 1, "conflict": 7}, results)
}

func TestAuther_SignupStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	tokens := newTokenService(t)

	store.On("FindByIdentifier", mock.Anything, "a@x.com").Return(nil, auth.ErrIdentityNotFound)
	store.On("Create", mock.Anything, "a@x.com", mock.AnythingOfType("string")).Return(nil, errors.New("disk full"))

	auther := auth.NewAuthenticator(store, auth.NewMemoryStore(), tokens, newMockConfig()).
		WithLogger(&captureLogger{}).
		WithHasher(auth.NewBcryptHasher(bcrypt.MinCost))

	_, err := auther.Signup(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrDependencyUnavailable)

	store.AssertExpectations(t)
}

func TestAuther_Login(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	issued, err := h.auther.Login(ctx, "A@x.com", "secret1")
	require.NoError(t, err)

	claims, err := h.tokens.Verify(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Subject())

	_, wrongSecret := h.auther.Login(ctx, "a@x.com", "wrong-secret")
	_, unknown := h.auther.Login(ctx, "nobody@x.com", "secret1")

	assert.ErrorIs(t, wrongSecret, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, auth.ErrInvalidCredentials)
	assert.Equal(t, wrongSecret, unknown, "unknown account and wrong secret must be indistinguishable")

	types := h.events.Types()
	assert.Contains(t, types, auth.ActivityEventLoginSuccess)
	assert.Contains(t, types, auth.ActivityEventLoginFailure)
}

func TestAuther_LoginStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	store.On("FindByIdentifier", mock.Anything, "a@x.com").Return(nil, errors.New("connection reset"))

	auther := auth.NewAuthenticator(store, auth.NewMemoryStore(), newTokenService(t), newMockConfig()).
		WithLogger(&captureLogger{})

	_, err := auther.Login(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrDependencyUnavailable)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestAuther_ForgotPasswordIsEnumerationSafe(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	known := h.auther.ForgotPassword(ctx, "a@x.com")
	unknown := h.auther.ForgotPassword(ctx, "nobody@x.com")
	malformed := h.auther.ForgotPassword(ctx, "not an email")

	assert.NoError(t, known)
	assert.NoError(t, unknown)
	assert.NoError(t, malformed)

	assert.Equal(t, 1, h.outbox.Calls())
	assert.NotEmpty(t, h.outbox.Last("a@x.com"))
	assert.Empty(t, h.outbox.Last("nobody@x.com"))
	assert.Equal(t, 1, h.store.ResetCount())
}

func TestAuther_ForgotPasswordNotifierFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	h.outbox.fail = errors.New("smtp unavailable")

	err = h.auther.ForgotPassword(ctx, "a@x.com")
	assert.ErrorIs(t, err, auth.ErrDependencyUnavailable)

	// unknown accounts never reach the notifier
	assert.NoError(t, h.auther.ForgotPassword(ctx, "nobody@x.com"))
}

func TestAuther_ResetPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, h.auther.ForgotPassword(ctx, "a@x.com"))
	raw := h.outbox.Last("a@x.com")
	require.Len(t, raw, 64)

	t.Run("weak secret does not burn the token", func(t *testing.T) {
		err := h.auther.ResetPassword(ctx, raw, "123")
		assert.ErrorIs(t, err, auth.ErrInvalidInput)
	})

	t.Run("valid token and secret", func(t *testing.T) {
		require.NoError(t, h.auther.ResetPassword(ctx, raw, "newsecret"))

		_, err := h.auther.Login(ctx, "a@x.com", "secret1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

		_, err = h.auther.Login(ctx, "a@x.com", "newsecret")
		assert.NoError(t, err)
	})

	t.Run("token is single use", func(t *testing.T) {
		err := h.auther.ResetPassword(ctx, raw, "another1")
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("unknown token", func(t *testing.T) {
		err := h.auther.ResetPassword(ctx, strings.Repeat("0", 64), "another1")
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)

		err = h.auther.ResetPassword(ctx, "short", "another1")
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	types := h.events.Types()
	assert.Contains(t, types, auth.ActivityEventPasswordResetRequest)
	assert.Contains(t, types, auth.ActivityEventPasswordResetSuccess)
	assert.Contains(t, types, auth.ActivityEventPasswordResetFailure)
}

func TestAuther_ResetPasswordOnlyLatestTokenWorks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, h.auther.ForgotPassword(ctx, "a@x.com"))
	first := h.outbox.Last("a@x.com")
	require.NoError(t, h.auther.ForgotPassword(ctx, "a@x.com"))
	second := h.outbox.Last("a@x.com")

	assert.ErrorIs(t, h.auther.ResetPassword(ctx, first, "newsecret"), auth.ErrInvalidOrExpiredToken)
	assert.NoError(t, h.auther.ResetPassword(ctx, second, "newsecret"))
}

func TestAuther_ResetPasswordExpiredToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	now := time.Now()
	clock := now
	h.auther.WithResetTokenManager(auth.NewResetTokenManager(h.store, time.Minute,
		auth.WithResetClock(func() time.Time { return clock }),
	))

	_, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, h.auther.ForgotPassword(ctx, "a@x.com"))

	clock = now.Add(2 * time.Minute)

	err = h.auther.ResetPassword(ctx, h.outbox.Last("a@x.com"), "newsecret")
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
}

func TestAuther_LogoutDoesNotRevokeTokens(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	issued, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	claims, err := h.auther.SessionFromToken(issued.Token)
	require.NoError(t, err)

	require.NoError(t, h.auther.Logout(ctx, claims))
	require.NoError(t, h.auther.Logout(ctx, nil), "anonymous logout succeeds")

	// stateless tokens keep verifying after logout until they expire
	again, err := h.auther.SessionFromToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", again.Subject())

	identity, err := h.auther.ValidateToken(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", identity.Identifier)

	assert.Contains(t, h.events.Types(), auth.ActivityEventLogout)
}

func TestAuther_ValidateToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	issued, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	claims, err := h.auther.SessionFromToken(issued.Token)
	require.NoError(t, err)

	identity, err := h.auther.ValidateToken(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", identity.Identifier)
	assert.True(t, identity.IssuedAt.Equal(issued.IssuedAt))
	assert.True(t, identity.ExpiresAt.Equal(issued.ExpiresAt))

	_, err = h.auther.ValidateToken(ctx, nil)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestAuther_SessionFromTokenHidesReason(t *testing.T) {
	h := newHarness(t)

	_, err := h.auther.SessionFromToken("garbage")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.False(t, auth.IsTokenError(err))
}

func TestAuther_CancelledContext(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.Error(t, err)

	_, err = h.store.FindByIdentifier(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, auth.ErrIdentityNotFound)
}

func TestAuther_FailingActivitySinkIsIgnored(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}

	h := newHarness(t)
	h.auther.WithLogger(logger).WithActivitySink(auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		return errors.New("queue full")
	}))

	_, err := h.auther.Signup(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	found := false
	for _, line := range logger.Lines() {
		if strings.Contains(line, "queue full") {
			found = true
		}
	}
	assert.True(t, found)
}
