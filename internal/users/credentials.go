package users

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// hashCost matches the work factor the original deployment used.
const hashCost = 10

// PrepareCredentials hashes plaintext into u.PasswordHash. Every write path
// that can change a password must call this with passwordChanged reflecting
// whether the password field was actually touched: an unrelated update
// passes false and the stored hash is left alone, so a hash is never
// re-hashed.
func PrepareCredentials(u *User, plaintext string, passwordChanged bool) error {
	if !passwordChanged {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), hashCost)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	return nil
}

// VerifyPassword compares plaintext against the stored hash. Constant-time
// relative to the hash via bcrypt.
func VerifyPassword(u *User, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)) == nil
}
