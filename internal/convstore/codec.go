package convstore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Codec converts snapshots to and from their stored bytes.
type Codec interface {
	Encode(Snapshot) ([]byte, error)
	Decode([]byte) (Snapshot, error)
}

// PlainCodec stores snapshots as JSON.
type PlainCodec struct{}

// Encode marshals snap as JSON.
func (PlainCodec) Encode(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// Decode unmarshals JSON.
func (PlainCodec) Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	err := json.Unmarshal(data, &snap)
	return snap, err
}

var errCiphertextTooShort = errors.New("ciphertext too short")

// SealedCodec encrypts JSON snapshots with XChaCha20-Poly1305 under a key
// derived from a passphrase with Argon2id. Output is nonce || ciphertext.
type SealedCodec struct {
	key []byte
}

// NewSealedCodec derives the encryption key from secret and salt.
func NewSealedCodec(secret string, salt []byte) (*SealedCodec, error) {
	if secret == "" {
		return nil, errors.New("conversation secret is empty")
	}
	if len(salt) < 16 {
		return nil, errors.New("salt must be at least 16 bytes")
	}
	key := argon2.IDKey([]byte(secret), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
	return &SealedCodec{key: key}, nil
}

// Encode seals the JSON encoding of snap.
func (c *SealedCodec) Encode(snap Snapshot) ([]byte, error) {
	plaintext, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decode opens data and unmarshals the snapshot.
func (c *SealedCodec) Decode(data []byte) (Snapshot, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return Snapshot{}, err
	}
	if len(data) < aead.NonceSize() {
		return Snapshot{}, errCiphertextTooShort
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// GetOrCreateSalt reads a 32-byte salt from path, creating it if absent.
func GetOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == 32 {
		return salt, nil
	}

	salt = make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}
