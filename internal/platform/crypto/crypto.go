package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize = 32
	IVSize  = 16
	TagSize = 16
)

const selfTestProbe = "integrations-cipher-self-test"

var (
	ErrInvalidKey           = errors.New("encryption key must be 64 hex characters (32 bytes)")
	ErrMalformedSecret      = errors.New("encrypted secret is not valid base64")
	ErrInvalidIVLength      = errors.New("invalid iv length")
	ErrInvalidTagLength     = errors.New("invalid auth tag length")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrSelfTestFailed       = errors.New("cipher self-test failed")
)

// EncryptedSecret is the at-rest form of one secret. All fields are standard
// base64 and are recomputed on every encryption.
type EncryptedSecret struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// Complete reports whether all fields are set. A missing field indicates a
// partially written row.
func (s EncryptedSecret) Complete() bool {
	return s.Ciphertext != "" && s.IV != "" && s.AuthTag != ""
}

// Cipher encrypts provider tokens with AES-256-GCM and a 16-byte random IV.
type Cipher struct {
	gcm  cipher.AEAD
	rand io.Reader
}

// GenerateKey returns a fresh hex-encoded 32-byte key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// NewCipher builds an AES-256-GCM cipher from a hex-encoded 32-byte key.
func NewCipher(hexKey string) (*Cipher, error) {
	if len(hexKey) != hex.EncodedLen(KeySize) {
		return nil, ErrInvalidKey
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return newCipher(key, rand.Reader)
}

func newCipher(key []byte, random io.Reader) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{gcm: gcm, rand: random}, nil
}

// Encrypt seals plaintext under a fresh IV and returns the ciphertext, IV and
// tag as separate base64 fields.
func (c *Cipher) Encrypt(plaintext string) (EncryptedSecret, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return EncryptedSecret{}, fmt.Errorf("failed to generate iv: %w", err)
	}

	// Seal returns ciphertext || tag
	sealed := c.gcm.Seal(nil, iv, []byte(plaintext), nil)
	split := len(sealed) - TagSize

	return EncryptedSecret{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:split]),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[split:]),
	}, nil
}

// Decrypt checks the IV and tag lengths, then authenticates and opens secret.
// Any tampered field fails with ErrAuthenticationFailed.
func (c *Cipher) Decrypt(secret EncryptedSecret) (string, error) {
	iv, err := base64.StdEncoding.DecodeString(secret.IV)
	if err != nil {
		return "", fmt.Errorf("iv: %w", ErrMalformedSecret)
	}
	if len(iv) != IVSize {
		return "", fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidIVLength, len(iv), IVSize)
	}

	tag, err := base64.StdEncoding.DecodeString(secret.AuthTag)
	if err != nil {
		return "", fmt.Errorf("auth tag: %w", ErrMalformedSecret)
	}
	if len(tag) != TagSize {
		return "", fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidTagLength, len(tag), TagSize)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(secret.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("ciphertext: %w", ErrMalformedSecret)
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		// The GCM error carries no detail worth keeping.
		return "", ErrAuthenticationFailed
	}

	return string(plaintext), nil
}

// SelfTest round-trips a fixed probe so a broken key or cipher setup fails at
// startup instead of on the first real secret.
func (c *Cipher) SelfTest() error {
	secret, err := c.Encrypt(selfTestProbe)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSelfTestFailed, err)
	}
	got, err := c.Decrypt(secret)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSelfTestFailed, err)
	}
	if got != selfTestProbe {
		return ErrSelfTestFailed
	}
	return nil
}
