package storage

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// API key format constants.
	randomBytesSize = 32
	apiKeyLength    = 78 // "eventcanon_ak_" + 64 hex chars
	keyPrefix       = "eventcanon_ak_"
	prefixLen       = 18 // Show "eventcanon_ak_1234"
	suffixLen       = 4  // Show last 4 chars
)

var (
	// ErrKeyAlreadyExists is returned when attempting to add a key that already exists.
	ErrKeyAlreadyExists = errors.New("API key already exists")
	// ErrKeyNotFound is returned when attempting to operate on a non-existent key.
	ErrKeyNotFound = errors.New("API key not found")
	// ErrKeyNil is returned when a nil API key is provided.
	ErrKeyNil = errors.New("API key cannot be nil")
	// ErrProducerIDEmpty is returned when producer ID is empty during key generation.
	ErrProducerIDEmpty = errors.New("producer ID cannot be empty")
	// ErrKeyStringEmpty is returned when key string is empty during parsing.
	ErrKeyStringEmpty = errors.New("key string cannot be empty")
	// ErrInvalidKeyFormat is returned when API key doesn't match expected format.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// ErrInvalidKeyLength is returned when API key length is incorrect.
	ErrInvalidKeyLength = errors.New("invalid API key length")
)

// Key represents a producer API key with permissions.
type Key struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	ProducerID  string     `json:"producerId"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Active      bool       `json:"active"`
}

// KeyStore defines the interface for API key storage and retrieval.
type KeyStore interface {
	// FindByKey retrieves an API key by its key value
	FindByKey(key string) (*Key, bool)
	// Add stores a new API key
	Add(apiKey *Key) error
	// Update modifies an existing API key
	Update(apiKey *Key) error
	// Delete removes an API key
	Delete(keyID string) error
	// ListByProducer returns all API keys for a specific producer
	ListByProducer(producerID string) ([]*Key, error)
}

// NewKey creates an active API key for a producer with a fresh key value.
func NewKey(producerID, name string, permissions []string) (*Key, error) {
	keyValue, err := GenerateAPIKey(producerID)
	if err != nil {
		return nil, err
	}

	return &Key{
		ID:          uuid.NewString(),
		Key:         keyValue,
		ProducerID:  producerID,
		Name:        name,
		Permissions: permissions,
		CreatedAt:   time.Now().UTC(),
		Active:      true,
	}, nil
}

// ValidateKey performs constant-time comparison of the provided key against this API key.
func (ak *Key) ValidateKey(providedKey string) bool {
	if providedKey == "" || ak.Key == "" {
		return false
	}

	if !ak.Active {
		return false
	}

	if ak.ExpiresAt != nil && time.Now().After(*ak.ExpiresAt) {
		return false
	}

	// Constant-time comparison for security
	return SecureCompare(ak.Key, providedKey)
}

// HasPermission checks if the API key has a specific permission.
func (ak *Key) HasPermission(permission string) bool {
	for _, p := range ak.Permissions {
		if p == permission {
			return true
		}
	}

	return false
}

// SecureCompare performs constant-time comparison of two strings to prevent timing attacks.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		// Compare against a dummy string of the same length as 'a' to maintain constant time
		dummy := make([]byte, len(a))
		subtle.ConstantTimeCompare([]byte(a), dummy)

		return false
	}

	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskKey masks an API key for secure logging by showing only the prefix and suffix.
// Designed for 78-character keys in format "eventcanon_ak_" + 64 hex chars.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}

	keyLen := len(key)

	if keyLen == apiKeyLength {
		maskedLen := keyLen - prefixLen - suffixLen

		return key[:prefixLen] + strings.Repeat("*", maskedLen) + key[keyLen-suffixLen:]
	}

	// For any other key length (testing, development, etc.), mask completely
	return strings.Repeat("*", keyLen)
}

// GenerateAPIKey creates a new secure API key for a producer.
func GenerateAPIKey(producerID string) (string, error) {
	if producerID == "" {
		return "", ErrProducerIDEmpty
	}

	// Generate 32 random bytes (256 bits)
	randomBytes := make([]byte, randomBytesSize)

	_, err := rand.Read(randomBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return keyPrefix + hex.EncodeToString(randomBytes), nil
}

// ParseAPIKey extracts the API key from various header formats.
func ParseAPIKey(keyString string) (string, error) {
	if keyString == "" {
		return "", ErrKeyStringEmpty
	}

	// Remove "Bearer " prefix if present
	keyString = strings.TrimPrefix(keyString, "Bearer ")

	if !strings.HasPrefix(keyString, keyPrefix) {
		return "", ErrInvalidKeyFormat
	}

	if len(keyString) != apiKeyLength {
		return "", ErrInvalidKeyLength
	}

	return keyString, nil
}
