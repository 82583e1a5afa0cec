// Package fieldcipher encrypts individual database fields with an AEAD.
//
// A Cipher is built once at startup from a 256-bit key and passed to every
// component that stores or reads protected values. Each Encrypt call draws a
// fresh random 96-bit nonce; ciphertext and nonce are returned base64 encoded
// so they can be stored in text columns.
package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	AlgorithmAESGCM           = "aes-256-gcm"
	AlgorithmChaCha20Poly1305 = "chacha20-poly1305"

	KeySize   = 32
	NonceSize = 12
)

// ErrDecryption is returned when a ciphertext fails authentication: wrong key,
// tampered ciphertext or a nonce that does not belong to it.
var ErrDecryption = errors.New("field decryption failed")

// ConfigError means the cipher could not be built from the configured key.
// It is fatal at startup.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "field cipher configuration: " + e.Msg
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var configError *ConfigError
	return errors.As(err, &configError)
}

type Cipher struct {
	aead   cipher.AEAD
	random io.Reader
}

// New builds a Cipher for the given algorithm. An empty algorithm means AES-256-GCM.
func New(key []byte, algorithm string) (*Cipher, error) {
	if len(key) == 0 {
		return nil, &ConfigError{Msg: "encryption key is missing"}
	}
	if len(key) != KeySize {
		return nil, &ConfigError{Msg: fmt.Sprintf("encryption key must be %d bytes, got %d", KeySize, len(key))}
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch algorithm {
	case "", AlgorithmAESGCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case AlgorithmChaCha20Poly1305:
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, &ConfigError{Msg: fmt.Sprintf("unsupported algorithm %q", algorithm)}
	}
	if err != nil {
		return nil, &ConfigError{Msg: err.Error()}
	}

	return &Cipher{aead: aead, random: rand.Reader}, nil
}

// NewFromBase64 decodes a standard base64 key, as stored in ENC_KEY_B64.
func NewFromBase64(encodedKey, algorithm string) (*Cipher, error) {
	if encodedKey == "" {
		return nil, &ConfigError{Msg: "encryption key is missing"}
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, &ConfigError{Msg: "encryption key is not valid base64"}
	}
	return New(key, algorithm)
}

// Encrypt seals plaintext under a fresh nonce and returns (ciphertext, nonce), both base64.
func (c *Cipher) Encrypt(plaintext string) (string, string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", "", fmt.Errorf("could not generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

// Decrypt opens a value produced by Encrypt. Any failure is reported as ErrDecryption.
func (c *Cipher) Decrypt(ciphertext, nonce string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext encoding", ErrDecryption)
	}
	rawNonce, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return "", fmt.Errorf("%w: invalid nonce encoding", ErrDecryption)
	}
	if len(rawNonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: nonce must be %d bytes", ErrDecryption, c.aead.NonceSize())
	}

	plaintext, err := c.aead.Open(nil, rawNonce, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}
