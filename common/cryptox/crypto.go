package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize   = 32
	nonceSize = 12

	// PBKDF2 parameters for password-derived keys.
	deriveIterations = 100_000
)

// MagicProfile identifies a file signature to verify against.
type MagicProfile string

const (
	MagicPDF  MagicProfile = "pdf"
	MagicPNG  MagicProfile = "png"
	MagicJPEG MagicProfile = "jpeg"
)

var magicSignatures = map[MagicProfile][][]byte{
	MagicPDF:  {[]byte("%PDF")},
	MagicPNG:  {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	MagicJPEG: {{0xFF, 0xD8, 0xFF}},
}

// EncryptedBlob is the result of a blob encryption: ciphertext plus the
// one-shot key and nonce needed to reverse it. Nothing is retained by the
// provider.
type EncryptedBlob struct {
	Ciphertext []byte
	Key        []byte
	IV         []byte
}

// Provider implements the crypto surface used by the KV store, the storage
// service and the encrypted upload pipeline.
type Provider struct{}

// NewProvider creates a crypto provider.
func NewProvider() *Provider {
	return &Provider{}
}

// GenerateKey returns a fresh 256-bit AES key.
func (p *Provider) GenerateKey() ([]byte, error) {
	return p.RandomBytes(keySize)
}

// RandomBytes returns n cryptographically random bytes.
func (p *Provider) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("random source: %w", err)
	}
	return buf, nil
}

// Encrypt seals plaintext under a freshly generated key and nonce.
func (p *Provider) Encrypt(plaintext []byte) (*EncryptedBlob, error) {
	key, err := p.GenerateKey()
	if err != nil {
		return nil, err
	}

	ciphertext, iv, err := p.EncryptWithKey(plaintext, key)
	if err != nil {
		return nil, err
	}

	return &EncryptedBlob{Ciphertext: ciphertext, Key: key, IV: iv}, nil
}

// EncryptWithKey seals plaintext under the caller's key with a fresh nonce.
func (p *Provider) EncryptWithKey(plaintext, key []byte) (ciphertext, iv []byte, err error) {
	iv = make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("nonce: %w", err)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	return aead.Seal(nil, iv, plaintext, nil), iv, nil
}

// Decrypt opens ciphertext produced by Encrypt or EncryptWithKey.
func (p *Provider) Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Hash returns the hex-encoded SHA-256 digest of data.
func (p *Provider) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DeriveKey derives a 256-bit key from a password and salt using
// PBKDF2-SHA256.
func (p *Provider) DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, deriveIterations, keySize, sha256.New)
}

// ConstantTimeEqual compares two byte slices without leaking timing.
func (p *Provider) ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// VerifyMagic checks the leading bytes of data against a signature profile.
func (p *Provider) VerifyMagic(data []byte, profile MagicProfile) bool {
	sigs, ok := magicSignatures[profile]
	if !ok {
		return false
	}
	for _, sig := range sigs {
		if len(data) >= len(sig) && bytes.Equal(data[:len(sig)], sig) {
			return true
		}
	}
	return false
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
