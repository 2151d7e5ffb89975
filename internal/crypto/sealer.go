// Package crypto seals user-supplied cloud secrets before they reach a store.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const sealedPrefix = "gcm1:"

// Sealer provides AES-256-GCM sealing bound to an owner label, so a sealed
// value copied to another (principal, provider) record fails to open.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer creates a Sealer from a hex-encoded 32-byte key
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	return newSealer(key)
}

// NewEphemeralSealer creates a Sealer with a random key. Values sealed by it
// cannot be opened after the process exits.
func NewEphemeralSealer() (*Sealer, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newSealer(key)
}

func newSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext for owner. Empty input stays empty.
func (s *Sealer) Seal(plaintext, owner string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := s.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(owner))
	return sealedPrefix + hex.EncodeToString(ciphertext), nil
}

// Open decrypts a value produced by Seal for the same owner
func (s *Sealer) Open(sealed, owner string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", fmt.Errorf("value is not sealed")
	}
	ciphertext, err := hex.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	nonceSize := s.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, []byte(owner))
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether v looks like a sealed value
func IsSealed(v string) bool {
	return strings.HasPrefix(v, sealedPrefix)
}
