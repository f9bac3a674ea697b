package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// keyEncryptInfo binds derived keys to this purpose so the same master
// material can never decrypt something sealed for a different use.
const keyEncryptInfo = "petauth signing-key v1"

var (
	ErrEmptyMasterKey     = errors.New("cryptox: empty master key")
	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")
)

// KeyEncrypter seals signing keys at rest with AES-256-GCM. The AES key is
// derived from operator supplied master material using HKDF-SHA256.
type KeyEncrypter struct {
	aead cipher.AEAD
}

// NewKeyEncrypter derives an AES-256 key from material.
func NewKeyEncrypter(material []byte) (*KeyEncrypter, error) {
	if len(material) == 0 {
		return nil, ErrEmptyMasterKey
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, material, nil, []byte(keyEncryptInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("cryptox: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}

	return &KeyEncrypter{aead: aead}, nil
}

// LoadKeyEncrypter reads master material from path. Surrounding whitespace
// is ignored so keys written with `echo` behave.
func LoadKeyEncrypter(path string) (*KeyEncrypter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cryptox: read master key: %w", err)
	}
	return NewKeyEncrypter([]byte(strings.TrimSpace(string(data))))
}

// Seal encrypts plaintext. Output layout: [nonce][ciphertext][tag].
func (e *KeyEncrypter) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal and fails if the data was tampered with.
func (e *KeyEncrypter) Open(sealed []byte) ([]byte, error) {
	n := e.aead.NonceSize()
	if len(sealed) < n+e.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := e.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decrypt: %w", err)
	}
	return plaintext, nil
}
