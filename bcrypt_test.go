package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-authcore"
)

func TestBcryptHasher(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
		},
		{
			name:     "Unicode password",
			password: "contraseña-segura",
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  auth.ErrNoEmptyString,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.HashPassword(tt.password)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotContains(t, hash, tt.password)

			assert.NoError(t, hasher.ComparePasswordAndHash(tt.password, hash))
			assert.ErrorIs(t, hasher.ComparePasswordAndHash(tt.password+"x", hash), auth.ErrMismatchedHashAndPassword)
		})
	}
}

func TestBcryptHasher_SaltsEveryHash(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	first, err := hasher.HashPassword("same-secret")
	require.NoError(t, err)
	second, err := hasher.HashPassword("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestBcryptHasher_CostOutOfRange(t *testing.T) {
	hash, err := auth.NewBcryptHasher(bcrypt.MaxCost + 1).HashPassword("secret")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, bcrypt.DefaultCost)
}

func TestComparePasswordAndHash_InvalidHash(t *testing.T) {
	err := auth.ComparePasswordAndHash("secret", "not-a-bcrypt-hash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
}

func TestRandomPasswordHash(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	hash := auth.RandomPasswordHash(hasher)

	assert.True(t, strings.HasPrefix(hash, "$2a$"))
	assert.Error(t, hasher.ComparePasswordAndHash("", hash))
}
