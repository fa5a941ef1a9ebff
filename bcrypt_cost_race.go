//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds run hashing several times slower, the fallback cost drops so
// the reset and login suites stay inside their store timeouts
func passwordHashCost() int {
	return min(DefaultBcryptCost, bcrypt.DefaultCost)
}
