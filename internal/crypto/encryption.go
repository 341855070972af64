// Package crypto provides AES-256-GCM encryption at rest for secrets the
// hub stores on behalf of third-party back-offices (auth tokens, API
// keys) — anything written to Postgres that should not be readable from
// a raw table dump.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

const maskedPlaceholder = "••••••••••••••••••••"

// Encryptor wraps a 32-byte AES-256 key and performs authenticated
// encryption/decryption of string secrets.
type Encryptor struct {
	key []byte
}

// NewEncryptor builds an Encryptor from a raw 32-byte AES-256 key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("crypto: encryption key must be 32 bytes, got %d", len(key))
	}
	return &Encryptor{key: key}, nil
}

// NewEncryptorFromEnv builds an Encryptor from the base64-encoded key in
// the ENCRYPTION_KEY environment variable.
func NewEncryptorFromEnv() (*Encryptor, error) {
	encoded := os.Getenv("ENCRYPTION_KEY")
	if encoded == "" {
		return nil, fmt.Errorf("crypto: ENCRYPTION_KEY environment variable not set")
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ENCRYPTION_KEY: %w", err)
	}

	return NewEncryptor(key)
}

// gcm builds the AEAD cipher for this key. Called once per operation
// rather than cached, since Encryptor values are long-lived but rarely
// used on a hot path.
func (e *Encryptor) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext with a fresh random nonce, returning
// base64(nonce || ciphertext). An empty input round-trips as empty.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	aead, err := e.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. A value that is not valid
// base64, too short to contain a nonce, or fails authentication is
// returned unchanged rather than erroring, since rows written before
// encryption was configured store the plaintext as-is.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	aead, err := e.gcm()
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ciphertext, nil
	}

	nonceSize := aead.NonceSize()
	if len(sealed) < nonceSize {
		return ciphertext, nil
	}

	nonce, sealed := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ciphertext, nil
	}

	return string(plaintext), nil
}

// EncryptIfNeeded encrypts plaintext unless it is empty or already equal
// to maskedValue — the sentinel an API response sends back to a client
// in place of a real secret, which should never be re-encrypted as
// literal text.
func (e *Encryptor) EncryptIfNeeded(plaintext string, maskedValue string) (string, error) {
	if plaintext == "" || plaintext == maskedValue {
		return plaintext, nil
	}
	return e.Encrypt(plaintext)
}

// IsMasked reports whether value is the placeholder shown in place of a
// real secret, or empty.
func IsMasked(value string) bool {
	return value == maskedPlaceholder || value == ""
}
