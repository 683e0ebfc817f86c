// Package secret encrypts credentials stored at rest.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrNoKey is returned when a cipher is created without a key.
	ErrNoKey = errors.New("secret: encryption key not set")
	// ErrDecrypt is returned when no configured key opens a ciphertext.
	ErrDecrypt = errors.New("secret: decryption failed with all available keys")
)

const hkdfInfo = "estatepost token encryption v1"

// Cipher seals strings with XChaCha20-Poly1305. Keys are derived from
// passphrases with HKDF-SHA256. Older keys may be supplied for rotation:
// they are tried on Decrypt but never used to Encrypt.
type Cipher struct {
	active    []byte
	fallbacks [][]byte
}

// NewCipher derives keys from the active passphrase and any fallbacks.
func NewCipher(active string, fallbacks ...string) (*Cipher, error) {
	if active == "" {
		return nil, ErrNoKey
	}
	key, err := deriveKey(active)
	if err != nil {
		return nil, err
	}
	c := &Cipher{active: key}
	for _, f := range fallbacks {
		if f == "" {
			continue
		}
		k, err := deriveKey(f)
		if err != nil {
			return nil, err
		}
		c.fallbacks = append(c.fallbacks, k)
	}
	return c, nil
}

func deriveKey(passphrase string) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Encrypt returns a URL-safe base64 token holding nonce and ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.active)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt with the active or a fallback key.
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	for _, key := range append([][]byte{c.active}, c.fallbacks...) {
		if plain, err := open(key, raw); err == nil {
			return string(plain), nil
		}
	}
	return "", ErrDecrypt
}

func open(key, raw []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	return aead.Open(nil, nonce, body, nil)
}
