// Package vault decrypts tenant integration credentials. Credentials are
// produced by the connect flow as AES-256-GCM with a detached 128-bit
// authentication tag; ciphertext, IV and tag travel base64 encoded.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/hatchflow/provisioning/internal/errors"
)

// Cipher performs authenticated encryption and decryption with a fixed
// 256-bit key. It is stateless and safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Decrypt reverses the connect flow's transform: base64-decode ciphertext,
// IV and tag, append the tag to the ciphertext and open the result. A tag
// verification failure (tampering or wrong key) yields a DecryptionError.
func (c *Cipher) Decrypt(ciphertextB64, ivB64, tagB64 string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", errors.Decryption(fmt.Errorf("decode ciphertext: %w", err))
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", errors.Decryption(fmt.Errorf("decode iv: %w", err))
	}
	tag, err := base64.StdEncoding.DecodeString(tagB64)
	if err != nil {
		return "", errors.Decryption(fmt.Errorf("decode auth tag: %w", err))
	}
	if len(iv) != c.aead.NonceSize() {
		return "", errors.Decryption(fmt.Errorf("iv must be %d bytes, got %d", c.aead.NonceSize(), len(iv)))
	}

	sealed := append(append([]byte(nil), ciphertext...), tag...)
	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", errors.Decryption(err)
	}
	return string(plaintext), nil
}

// Encrypt is the inverse transform, used by the connect flow's write path
// and by round-trip tests. The tag is returned detached, matching the
// stored format.
func (c *Cipher) Encrypt(plaintext string) (ciphertextB64, ivB64, tagB64 string, err error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", "", "", fmt.Errorf("vault: generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	split := len(sealed) - c.aead.Overhead()

	return base64.StdEncoding.EncodeToString(sealed[:split]),
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(sealed[split:]),
		nil
}
