// Package crypto implements the symmetric authenticated encryption used for
// OAuth token storage at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidKey is returned when the key is not a valid AES-256 key.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes for AES-256")

	// ErrInvalidCiphertext is returned when a stored value cannot be
	// decrypted. It deliberately carries no detail: decryption failures must
	// never echo ciphertext or plaintext fragments into logs.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// TokenCipher encrypts and decrypts token text using AES-256-GCM.
// Ciphertext is stored as base64 with the nonce prepended.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a TokenCipher from a 32-byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &TokenCipher{aead: aead}, nil
}

// Encrypt seals plaintext token text and returns base64-encoded ciphertext
// with the nonce prepended.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored ciphertext produced by Encrypt. Any malformed or
// tampered input yields ErrInvalidCiphertext.
func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	return string(plaintext), nil
}
