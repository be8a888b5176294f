package storage

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost defines the computational cost for bcrypt hashing.
	// Cost 10 = ~60ms per hash; can be raised to 12 for hardening.
	bcryptCost  = 10
	bcryptLimit = 72
)

// HashAPIKey generates a bcrypt hash of the API key for secure storage.
// The API key is never stored in plaintext - only the bcrypt hash is persisted.
//
// Bcrypt has a 72-byte input limit. Longer keys are pre-hashed with SHA-256
// so the full key material still contributes to the hash.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrKeyNil
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// CompareAPIKeyHash performs constant-time comparison of an API key against a
// bcrypt hash. This is the primary method for API key validation - never
// compare plaintext keys.
//
// Returns false for any error condition (empty inputs, invalid hash format).
func CompareAPIKeyHash(hash, apiKey string) bool {
	if hash == "" || apiKey == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(apiKey)) == nil
}

// bcryptInput prepares key material for bcrypt, pre-hashing keys beyond the
// 72-byte limit. Hashing and comparison must use the same preparation.
func bcryptInput(apiKey string) []byte {
	if len(apiKey) > bcryptLimit {
		sum := sha256.Sum256([]byte(apiKey))

		return sum[:]
	}

	return []byte(apiKey)
}
