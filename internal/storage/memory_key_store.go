package storage

import (
	"sync"
)

// InMemoryKeyStore provides thread-safe in-memory storage for producer API keys.
type InMemoryKeyStore struct {
	// keys maps key strings to Key structs for fast lookup
	keys map[string]*Key
	// keysByID maps key IDs to Key structs for ID-based operations
	keysByID map[string]*Key
	// keysByProducer maps producer IDs to slices of Key structs for filtering
	keysByProducer map[string][]*Key
	// mutex protects concurrent access to all maps
	mutex sync.RWMutex
}

// NewInMemoryKeyStore creates a new thread-safe in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		keys:           make(map[string]*Key),
		keysByID:       make(map[string]*Key),
		keysByProducer: make(map[string][]*Key),
	}
}

// FindByKey retrieves an API key by its key value.
func (s *InMemoryKeyStore) FindByKey(key string) (*Key, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	apiKey, exists := s.keys[key]
	if !exists {
		return nil, false
	}

	// Return a copy to prevent external modification
	keyCopy := *apiKey

	return &keyCopy, true
}

// Add stores a new API key.
func (s *InMemoryKeyStore) Add(apiKey *Key) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Check if key already exists by ID or key string
	if _, exists := s.keysByID[apiKey.ID]; exists {
		return ErrKeyAlreadyExists
	}

	if _, exists := s.keys[apiKey.Key]; exists {
		return ErrKeyAlreadyExists
	}

	keyCopy := *apiKey

	s.keys[keyCopy.Key] = &keyCopy
	s.keysByID[keyCopy.ID] = &keyCopy
	s.keysByProducer[keyCopy.ProducerID] = append(s.keysByProducer[keyCopy.ProducerID], &keyCopy)

	return nil
}

// Update modifies an existing API key.
func (s *InMemoryKeyStore) Update(apiKey *Key) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	existingKey, exists := s.keysByID[apiKey.ID]
	if !exists {
		return ErrKeyNotFound
	}

	s.removeFromProducerMap(existingKey.ProducerID, existingKey.ID)

	// Remove from key string map if key changed
	if existingKey.Key != apiKey.Key {
		delete(s.keys, existingKey.Key)
	}

	keyCopy := *apiKey

	s.keys[keyCopy.Key] = &keyCopy
	s.keysByID[keyCopy.ID] = &keyCopy
	s.keysByProducer[keyCopy.ProducerID] = append(s.keysByProducer[keyCopy.ProducerID], &keyCopy)

	return nil
}

// Delete removes an API key.
func (s *InMemoryKeyStore) Delete(keyID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existingKey, exists := s.keysByID[keyID]
	if !exists {
		return ErrKeyNotFound
	}

	delete(s.keys, existingKey.Key)
	delete(s.keysByID, keyID)
	s.removeFromProducerMap(existingKey.ProducerID, keyID)

	return nil
}

// ListByProducer returns all API keys for a specific producer.
func (s *InMemoryKeyStore) ListByProducer(producerID string) ([]*Key, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys, exists := s.keysByProducer[producerID]
	if !exists {
		return []*Key{}, nil // Return empty slice for unknown producers
	}

	// Return copies to prevent external modification
	result := make([]*Key, len(keys))
	for i, key := range keys {
		keyCopy := *key
		result[i] = &keyCopy
	}

	return result, nil
}

// removeFromProducerMap removes a key from the producer map by key ID.
// Caller must hold write lock.
func (s *InMemoryKeyStore) removeFromProducerMap(producerID, keyID string) {
	keys := s.keysByProducer[producerID]
	for i, key := range keys {
		if key.ID == keyID {
			s.keysByProducer[producerID] = append(keys[:i], keys[i+1:]...)

			break
		}
	}
}
