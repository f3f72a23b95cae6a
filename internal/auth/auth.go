// Package auth implements optional static API-key authentication for the
// inbound endpoint. Keys may be configured either as plaintext (hashed at
// startup) or as precomputed bcrypt hashes.
package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type KeyStore struct {
	hashes [][]byte
}

// NewKeyStore builds a store from configured keys. Entries starting with
// the bcrypt prefix are taken as hashes; anything else is hashed in place.
func NewKeyStore(keys []string) (*KeyStore, error) {
	store := &KeyStore{}
	for _, key := range keys {
		if strings.HasPrefix(key, "$2a$") || strings.HasPrefix(key, "$2b$") {
			store.hashes = append(store.hashes, []byte(key))
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		store.hashes = append(store.hashes, hash)
	}
	return store, nil
}

// Verify reports whether the presented key matches any configured key.
func (s *KeyStore) Verify(key string) bool {
	for _, hash := range s.hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// HashKey produces a bcrypt hash suitable for the API_KEYS configuration.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
