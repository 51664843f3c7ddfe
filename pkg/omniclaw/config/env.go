// Package config – env.go implements the .env-backed credential store:
// owner id and credentials are written through to ~/.omniclaw/.env and the
// process environment on save, and never read back into prompts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// OwnerIDKey is the env variable holding the registered owner's chat user id.
const OwnerIDKey = "OWNER_TELEGRAM_ID"

// EnvStore reads and writes the assistant's .env file. All writes go
// through to both the file and the process environment.
type EnvStore struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// NewEnvStore loads (or starts) the .env file at path.
func NewEnvStore(path string) *EnvStore {
	s := &EnvStore{path: path, values: make(map[string]string)}
	if vals, err := godotenv.Read(path); err == nil {
		s.values = vals
		for k, v := range vals {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}
	return s
}

// Get returns a stored value, falling back to the process environment.
func (s *EnvStore) Get(key string) string {
	s.mu.Lock()
	v, ok := s.values[key]
	s.mu.Unlock()
	if ok && v != "" {
		return v
	}
	return os.Getenv(key)
}

// Set writes a key through to the file and the process environment.
func (s *EnvStore) Set(key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	err := s.writeLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return os.Setenv(key, value)
}

// OwnerID returns the registered owner id, or "".
func (s *EnvStore) OwnerID() string {
	return s.Get(OwnerIDKey)
}

// SetOwnerID registers the owner id.
func (s *EnvStore) SetOwnerID(id string) error {
	return s.Set(OwnerIDKey, id)
}

// SaveCredential stores a named credential: keyring first when available,
// always written through to the .env file as a fallback.
func (s *EnvStore) SaveCredential(name, value string) error {
	if KeyringAvailable() {
		if err := StoreKeyring(name, value); err == nil {
			return s.Set(name, value)
		}
	}
	return s.Set(name, value)
}

// writeLocked rewrites the .env file with sorted keys.
func (s *EnvStore) writeLocked() error {
	if s.path == "" {
		return nil
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, s.values[k])
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create env dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}
