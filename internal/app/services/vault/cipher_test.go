package vault

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/hatchflow/provisioning/internal/errors"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key := []byte("0123456789abcdef0123456789abcdef")
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return c
}

func TestCipherRoundTrip(t *testing.T) {
	c := testCipher(t)

	plaintext := `{"access_token":"tok-123","refresh_token":"ref-456"}`
	ciphertext, iv, tag, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := c.Decrypt(ciphertext, iv, tag)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != plaintext {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestCipherRejectsTamperedTag(t *testing.T) {
	c := testCipher(t)

	ciphertext, iv, tag, err := c.Encrypt("secret payload")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(tag)
	if err != nil {
		t.Fatalf("decode tag: %v", err)
	}
	raw[0] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := c.Decrypt(ciphertext, iv, tampered); !errors.IsCode(err, errors.CodeDecryption) {
		t.Fatalf("expected DecryptionError, got %v", err)
	}
}

func TestCipherRejectsWrongKey(t *testing.T) {
	c := testCipher(t)
	other, err := NewCipher([]byte(strings.Repeat("x", 32)))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	ciphertext, iv, tag, err := c.Encrypt("secret payload")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := other.Decrypt(ciphertext, iv, tag); !errors.IsCode(err, errors.CodeDecryption) {
		t.Fatalf("expected DecryptionError, got %v", err)
	}
}

func TestCipherRejectsBadInputs(t *testing.T) {
	c := testCipher(t)

	if _, err := c.Decrypt("не base64", "aaaa", "aaaa"); !errors.IsCode(err, errors.CodeDecryption) {
		t.Fatalf("expected DecryptionError for bad ciphertext, got %v", err)
	}

	ciphertext, _, tag, err := c.Encrypt("payload")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	shortIV := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := c.Decrypt(ciphertext, shortIV, tag); !errors.IsCode(err, errors.CodeDecryption) {
		t.Fatalf("expected DecryptionError for short iv, got %v", err)
	}
}

func TestNewCipherKeyLength(t *testing.T) {
	if _, err := NewCipher([]byte("too short")); err == nil {
		t.Fatalf("expected error for short key")
	}
}
