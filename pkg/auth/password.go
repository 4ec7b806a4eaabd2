package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const hashCost = 12

// HashPassword returns an adaptive salted hash of the password.
// bcrypt embeds a fresh random salt, so hashing the same password twice
// yields different strings.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a stored hash.
// The comparison is constant-time inside bcrypt.
func CheckPassword(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// ValidatePassword enforces the minimum password policy.
func ValidatePassword(password string) error {
	if len(strings.TrimSpace(password)) < 6 {
		return ErrPasswordTooShort
	}
	return nil
}
