package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MaxSecretLen is the longest input bcrypt will hash.
const MaxSecretLen = 72

var ErrSecretTooLong = errors.New("value must be at most 72 bytes")

// HashSecret one-way hashes a password or other secret value.
func HashSecret(secret string) (string, error) {
	if len(secret) > MaxSecretLen {
		return "", ErrSecretTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// CheckSecret reports whether candidate matches hash.
func CheckSecret(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// LooksHashed reports whether s already has the shape of a bcrypt hash, so
// re-saving a record does not hash its hash.
func LooksHashed(s string) bool {
	if len(s) != 60 {
		return false
	}
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			_, err := bcrypt.Cost([]byte(s))
			return err == nil
		}
	}
	return false
}
