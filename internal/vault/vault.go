package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrBadKey        = errors.New("vault: key must be 32 bytes of hex")
	ErrBadCiphertext = errors.New("vault: malformed ciphertext")
)

const nonceSize = 12 // 96-bit nonce, GCM default

// Vault seals and opens relay credentials with AES-256-GCM. Sealed values
// are base64(nonce || ciphertext || tag) and safe to persist.
type Vault struct {
	aead cipher.AEAD
}

// New builds a Vault from a hex-encoded 32-byte key.
func New(keyHex string) (*Vault, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != 32 {
		return nil, ErrBadKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Seal encrypts secret under a fresh random nonce.
func (v *Vault) Seal(secret string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}

	ct := v.aead.Seal(nil, nonce, []byte(secret), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ct...)), nil
}

// Open decrypts a sealed value. It fails closed: any tampering, truncation
// or wrong-key condition returns an error, never partial plaintext.
func (v *Vault) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrBadCiphertext
	}
	if len(data) < nonceSize+v.aead.Overhead() {
		return "", ErrBadCiphertext
	}

	pt, err := v.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("vault: open: %w", err)
	}
	return string(pt), nil
}
