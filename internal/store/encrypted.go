package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"resonance/internal/security"
)

// ErrDecrypt is returned when a stored blob fails authentication.
var ErrDecrypt = errors.New("store: blob authentication failed")

// envelopeVersion prefixes every sealed blob.
const envelopeVersion byte = 1

// Encrypted seals blobs with XChaCha20-Poly1305 before handing them to the
// inner store. The blob key is bound as additional data so a ciphertext
// cannot be replayed under another key.
type Encrypted struct {
	inner BlobStore
	key   []byte
}

// NewEncrypted derives the blob key from masterKey and wraps inner.
func NewEncrypted(inner BlobStore, masterKey []byte) (*Encrypted, error) {
	key, err := security.DeriveKeyWithLabel(masterKey, "profile-blob", chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive blob key: %w", err)
	}
	return &Encrypted{inner: inner, key: key}, nil
}

func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.open(key, sealed)
}

func (e *Encrypted) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := e.seal(key, value)
	if err != nil {
		return err
	}
	return e.inner.Set(ctx, key, sealed)
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

// Close wipes the derived key.
func (e *Encrypted) Close() error {
	security.Wipe(e.key)
	return nil
}

func (e *Encrypted) seal(key string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = envelopeVersion
	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	nonce := out[1:]
	return aead.Seal(out, nonce, plaintext, []byte(key)), nil
}

func (e *Encrypted) open(key string, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < 1+aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: blob too short", ErrDecrypt)
	}
	if sealed[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: unknown envelope version %d", ErrDecrypt, sealed[0])
	}
	nonce := sealed[1 : 1+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, sealed[1+aead.NonceSize():], []byte(key))
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
