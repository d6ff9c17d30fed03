package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xactions/xactions-a2a/pkg/storage"
)

// KeyPrefix marks every issued key so foreign tokens are rejected before
// any hashing happens.
const KeyPrefix = "xak_"

// KeyRecord is the at-rest form of an API key. Only the SHA-256 hash of
// the plaintext is kept.
type KeyRecord struct {
	Hash        string       `json:"hash"`
	Label       string       `json:"label"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"createdAt"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	Revoked     bool         `json:"revoked"`
}

// KeyManager issues, validates, and revokes API keys. Records persist
// through the repository so keys survive restarts.
type KeyManager struct {
	mu   sync.Mutex
	repo storage.Repository[map[string]KeyRecord]
	keys map[string]KeyRecord // hash -> record
}

// NewKeyManager loads existing key records from the repository.
func NewKeyManager(repo storage.Repository[map[string]KeyRecord]) (*KeyManager, error) {
	keys, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("load API keys: %w", err)
	}
	if keys == nil {
		keys = make(map[string]KeyRecord)
	}
	return &KeyManager{repo: repo, keys: keys}, nil
}

// Issue generates a new key, stores its hash, and returns the plaintext.
// The plaintext is never recoverable afterwards.
func (m *KeyManager) Issue(label string, permissions []Permission, ttl time.Duration) (string, *KeyRecord, error) {
	for _, p := range permissions {
		if !IsValidPermission(p) {
			return "", nil, fmt.Errorf("unknown permission %q", p)
		}
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	plaintext := KeyPrefix + hex.EncodeToString(raw)

	now := time.Now().UTC()
	record := KeyRecord{
		Hash:        hashKey(plaintext),
		Label:       label,
		Permissions: append([]Permission(nil), permissions...),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[record.Hash] = record
	if err := m.repo.Save(copyKeys(m.keys)); err != nil {
		delete(m.keys, record.Hash)
		return "", nil, fmt.Errorf("persist API key: %w", err)
	}
	return plaintext, &record, nil
}

// Validate checks a plaintext key and returns the caller identity.
func (m *KeyManager) Validate(key string) (*Identity, error) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return nil, ErrInvalidKey
	}
	hash := hashKey(key)

	m.mu.Lock()
	record, ok := m.keys[hash]
	m.mu.Unlock()
	if !ok {
		return nil, ErrInvalidKey
	}
	if record.Revoked {
		return nil, ErrKeyRevoked
	}
	if time.Now().UTC().After(record.ExpiresAt) {
		return nil, ErrKeyExpired
	}

	return &Identity{
		Subject:     record.Label,
		Method:      "api_key",
		Permissions: append([]Permission(nil), record.Permissions...),
	}, nil
}

// Revoke marks the key with the given hash revoked and persists.
func (m *KeyManager) Revoke(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.keys[hash]
	if !ok {
		return ErrInvalidKey
	}
	record.Revoked = true
	m.keys[hash] = record
	if err := m.repo.Save(copyKeys(m.keys)); err != nil {
		return fmt.Errorf("persist revocation: %w", err)
	}
	return nil
}

// List returns all key records, plaintext-free by construction.
func (m *KeyManager) List() []KeyRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]KeyRecord, 0, len(m.keys))
	for _, r := range m.keys {
		out = append(out, r)
	}
	return out
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func copyKeys(keys map[string]KeyRecord) map[string]KeyRecord {
	out := make(map[string]KeyRecord, len(keys))
	for k, v := range keys {
		out[k] = v
	}
	return out
}
