// Package store persists opaque per-user blobs behind a minimal key-value
// interface. Callers never assume a storage medium; encryption, when
// enabled, is applied by the Encrypted wrapper before bytes reach the
// backing store.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no blob exists for the key.
var ErrNotFound = errors.New("store: not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// BlobStore reads and writes a single opaque blob per key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
