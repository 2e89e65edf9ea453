// Package vault keeps the OpenRouter API key encrypted at rest.
//
// The key is sealed with XChaCha20-Poly1305 under a random 256-bit data key
// stored next to it in vault.key (mode 0600). The sealed file never
// contains the plaintext key.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	keyFile    = "vault.key"
	secretFile = "credentials"
)

// additionalData binds ciphertexts to their purpose.
var additionalData = []byte("batu:openrouter-api-key")

// ErrCorrupt is returned when the sealed secret cannot be opened.
var ErrCorrupt = errors.New("vault: sealed secret is corrupt or was written with another key")

// Vault stores a single secret under dir.
type Vault struct {
	dir string
}

// New returns a vault rooted at dir. Nothing is touched on disk until
// Store or Load is called.
func New(dir string) *Vault {
	return &Vault{dir: dir}
}

// Store seals secret and writes it to disk, creating the data key on
// first use.
func (v *Vault) Store(secret string) error {
	key, err := v.dataKey(true)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("vault: init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(secret)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(secret), additionalData)

	encoded := base64.StdEncoding.EncodeToString(sealed)
	return os.WriteFile(filepath.Join(v.dir, secretFile), []byte(encoded+"\n"), 0o600)
}

// Load returns the stored secret, or "" when nothing has been stored yet.
func (v *Vault) Load() (string, error) {
	data, err := os.ReadFile(filepath.Join(v.dir, secretFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	key, err := v.dataKey(false)
	if err != nil {
		return "", err
	}
	if key == nil {
		return "", ErrCorrupt
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return "", ErrCorrupt
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("vault: init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrCorrupt
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return "", ErrCorrupt
	}
	return string(plain), nil
}

// Clear removes the sealed secret. The data key is kept.
func (v *Vault) Clear() error {
	err := os.Remove(filepath.Join(v.dir, secretFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// dataKey reads the data key, generating it when create is set and the
// file does not exist yet. A missing key with create unset yields nil.
func (v *Vault) dataKey(create bool) ([]byte, error) {
	path := filepath.Join(v.dir, keyFile)
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("vault: %s has unexpected length %d", path, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	if !create {
		return nil, nil
	}

	if err := os.MkdirAll(v.dir, 0o700); err != nil {
		return nil, err
	}
	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("vault: generate key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
