// Package keybackend resolves the credentials guildsync signs with and the
// secret store its mirror server verifies against.
package keybackend

import (
	"fmt"

	"github.com/galexite/guildsync"
)

// MapSecretStore retrieves keys from an in-memory map.
// Suitable for configuration file-based key storage.
type MapSecretStore struct {
	keys map[string]string
}

// NewMapSecretStore creates a new map-based secret store with the given access key to secret key mapping.
func NewMapSecretStore(keys map[string]string) *MapSecretStore {
	return &MapSecretStore{keys: keys}
}

// Lookup retrieves the secret key for the given access key from the map.
// A missing key matches both ErrKeyNotFound and guildsync.ErrUnauthorized.
func (s *MapSecretStore) Lookup(accessKey string) (string, error) {
	secretKey, found := s.keys[accessKey]
	if !found || accessKey == "" {
		return "", fmt.Errorf("%w: %w", ErrKeyNotFound, guildsync.ErrUnauthorized)
	}
	return secretKey, nil
}

// Len returns the number of keys in the store.
func (s *MapSecretStore) Len() int {
	return len(s.keys)
}
