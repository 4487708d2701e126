// Package security provides key generation and derivation for the
// encrypted profile store.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Cryptographic errors
var (
	ErrInsufficientEntropy = errors.New("security: insufficient entropy")
	ErrWeakKey             = errors.New("security: key is too weak")
	ErrInvalidKeySize      = errors.New("security: invalid key size")
)

// MinKeySize is the minimum allowed key size in bytes.
const MinKeySize = 16

// KeySize is the size of master and derived keys in bytes.
const KeySize = 32

// labelPrefix separates resonanced derivations from any other use of the
// same master key.
const labelPrefix = "resonanced:"

// GenerateKey returns size bytes from crypto/rand.
func GenerateKey(size int) ([]byte, error) {
	if size < MinKeySize {
		return nil, fmt.Errorf("%w: minimum %d bytes required", ErrInvalidKeySize, MinKeySize)
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientEntropy, err)
	}
	return key, nil
}

// DeriveKey derives keySize bytes from masterKey using HKDF-SHA256.
func DeriveKey(masterKey, salt, info []byte, keySize int) ([]byte, error) {
	if err := ValidateKeyStrength(masterKey); err != nil {
		return nil, err
	}
	if keySize < MinKeySize {
		return nil, fmt.Errorf("%w: minimum %d bytes required", ErrInvalidKeySize, MinKeySize)
	}

	reader := hkdf.New(sha256.New, masterKey, salt, info)
	derived := make([]byte, keySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return derived, nil
}

// DeriveKeyWithLabel derives a key bound to label, so the profile key and
// any future purpose never share material.
func DeriveKeyWithLabel(masterKey []byte, label string, keySize int) ([]byte, error) {
	return DeriveKey(masterKey, nil, []byte(labelPrefix+label), keySize)
}

// ValidateKeyStrength rejects short keys and keys made of a single
// repeated byte.
func ValidateKeyStrength(key []byte) error {
	if len(key) < MinKeySize {
		return fmt.Errorf("%w: key is %d bytes, minimum %d required",
			ErrWeakKey, len(key), MinKeySize)
	}
	first := key[0]
	for _, b := range key[1:] {
		if b != first {
			return nil
		}
	}
	return fmt.Errorf("%w: key has repeating pattern", ErrWeakKey)
}

// Wipe zeroes data in place.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
