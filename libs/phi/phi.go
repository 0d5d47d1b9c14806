// Package phi encrypts protected health information fields at rest.
package phi

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCiphertextTooShort = errors.New("phi: ciphertext too short")

// Encryptor seals values with XChaCha20-Poly1305. The random 24-byte nonce is
// prepended to the ciphertext and the field name is bound as associated data,
// so a value sealed for one column cannot be replayed into another.
type Encryptor struct {
	aead cipher.AEAD
}

func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("phi: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("phi: create aead: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// NewEncryptorFromBase64 decodes a standard base64 key, as stored in PHI_ENCRYPTION_KEY.
func NewEncryptorFromBase64(encoded string) (*Encryptor, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("phi: decode key: %w", err)
	}
	return NewEncryptor(key)
}

// Seal returns base64(nonce || ciphertext). Empty input stays empty.
func (e *Encryptor) Seal(field, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("phi: generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), []byte(field))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Open(field, encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("phi: decode ciphertext: %w", err)
	}
	ns := e.aead.NonceSize()
	if len(data) < ns+e.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}
	plain, err := e.aead.Open(nil, data[:ns], data[ns:], []byte(field))
	if err != nil {
		return "", fmt.Errorf("phi: open %s: %w", field, err)
	}
	return string(plain), nil
}
