// Package credential persists the session token across runs.
package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "uptask"

// TokenKey is the single keyring entry holding the session token.
const TokenKey = "session-token"

// TokenStorage is durable storage for one session token.
// Get returns "" with a nil error when no token is stored.
type TokenStorage interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
}

// Keyring stores the token in the system keyring.
type Keyring struct {
	ring keyring.Keyring
}

// Open returns a Keyring backed by the platform keyring. fileDir is used
// by the encrypted-file fallback when no system keyring is available.
func Open(fileDir string) (*Keyring, error) {
	if fileDir == "" {
		fileDir = filepath.Join("~", ".config", serviceName, "credentials")
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// NewKeyring wraps an already opened keyring, e.g. keyring.NewArrayKeyring in tests.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// Get retrieves the stored token.
func (k *Keyring) Get() (string, error) {
	item, err := k.ring.Get(TokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", TokenKey, err)
	}
	return string(item.Data), nil
}

// Set stores the token, replacing any previous one.
func (k *Keyring) Set(token string) error {
	err := k.ring.Set(keyring.Item{
		Key:   TokenKey,
		Data:  []byte(token),
		Label: "uptask session token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", TokenKey, err)
	}
	return nil
}

// Delete removes the token. Deleting a missing token is not an error.
func (k *Keyring) Delete() error {
	err := k.ring.Remove(TokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", TokenKey, err)
	}
	return nil
}
