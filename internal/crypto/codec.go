package crypto

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"push-vault-go/internal/models"
)

// ErrDecrypt covers every way a blob can fail to open: wrong key, tampered
// ciphertext or nonce, truncated data, or an unparseable payload.
var ErrDecrypt = errors.New("failed to decrypt subscriptions")

// blobVersion is bound into every seal as additional data.
var blobVersion = []byte("push-subscriptions:v1")

// Sealed is the output of Codec.Encrypt.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
}

// Codec seals whole subscription lists with ChaCha20-Poly1305.
type Codec struct {
	keys *KeyManager
}

func NewCodec(keys *KeyManager) *Codec {
	return &Codec{keys: keys}
}

func (c *Codec) Enabled() bool {
	return c.keys.Enabled()
}

// Encrypt serializes subs and seals it under a fresh random nonce.
func (c *Codec) Encrypt(subs []models.Subscription) (*Sealed, error) {
	key, err := c.keys.Key()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	if subs == nil {
		subs = []models.Subscription{}
	}
	plaintext, err := json.Marshal(subs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subscriptions: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &Sealed{
		Ciphertext: aead.Seal(nil, nonce, plaintext, blobVersion),
		Nonce:      nonce,
	}, nil
}

// Decrypt verifies and opens a sealed list.
func (c *Codec) Decrypt(ciphertext, nonce []byte) ([]models.Subscription, error) {
	key, err := c.keys.Key()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce is %d bytes", ErrDecrypt, len(nonce))
	}
	if len(ciphertext) < aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, blobVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	subs := []models.Subscription{}
	if err := json.Unmarshal(plaintext, &subs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return subs, nil
}
