package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// exerciseBlobStore runs the contract every BlobStore must satisfy.
func exerciseBlobStore(t *testing.T, s BlobStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "profile/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "profile/a", []byte("first")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "profile/a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("first")) {
		t.Errorf("Get = %q, want %q", got, "first")
	}

	if err := s.Set(ctx, "profile/a", []byte("second")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, err = s.Get(ctx, "profile/a")
	if err != nil {
		t.Fatalf("Get after overwrite failed: %v", err)
	}
	if !bytes.Equal(got, []byte("second")) {
		t.Errorf("Get = %q, want %q", got, "second")
	}

	if err := s.Delete(ctx, "profile/a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "profile/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: expected ErrNotFound, got %v", err)
	}

	// Deleting an absent key is not an error.
	if err := s.Delete(ctx, "profile/a"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
}

// =============================================================================
// Tests for Memory
// =============================================================================

func TestMemoryContract(t *testing.T) {
	exerciseBlobStore(t, NewMemory())
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	in := []byte("abc")
	if err := m.Set(ctx, "k", in); err != nil {
		t.Fatal(err)
	}
	in[0] = 'z'

	out, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "abc" {
		t.Errorf("stored value aliased caller slice: %q", out)
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemory().Set(ctx, "k", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// =============================================================================
// Tests for SQLite
// =============================================================================

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "sub", "profiles.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteContract(t *testing.T) {
	exerciseBlobStore(t, openTestSQLite(t))
}

func TestSQLitePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	path := filepath.Join(t.TempDir(), "profiles.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("database mode = %o, want 600", info.Mode().Perm())
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "profile/u1", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "profile/u1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("got %v", got)
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "profile/u1" {
		t.Errorf("Keys = %v", keys)
	}
}

func TestSQLiteClosed(t *testing.T) {
	s := &SQLite{}
	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

// =============================================================================
// Tests for Encrypted
// =============================================================================

func testMasterKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func TestEncryptedContract(t *testing.T) {
	e, err := NewEncrypted(NewMemory(), testMasterKey())
	if err != nil {
		t.Fatal(err)
	}
	exerciseBlobStore(t, e)
}

func TestEncryptedHidesPlaintext(t *testing.T) {
	inner := NewMemory()
	e, err := NewEncrypted(inner, testMasterKey())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	secret := []byte(`{"displayName":"alice"}`)
	if err := e.Set(ctx, "profile/alice", secret); err != nil {
		t.Fatal(err)
	}

	raw, err := inner.Get(ctx, "profile/alice")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("alice")) {
		t.Error("ciphertext leaks plaintext")
	}
	if raw[0] != envelopeVersion {
		t.Errorf("envelope version = %d", raw[0])
	}
}

func TestEncryptedBindsKey(t *testing.T) {
	inner := NewMemory()
	e, err := NewEncrypted(inner, testMasterKey())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := e.Set(ctx, "profile/a", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	raw, _ := inner.Get(ctx, "profile/a")
	if err := inner.Set(ctx, "profile/b", raw); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Get(ctx, "profile/b"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("moved ciphertext: expected ErrDecrypt, got %v", err)
	}
}

func TestEncryptedDetectsTampering(t *testing.T) {
	inner := NewMemory()
	e, err := NewEncrypted(inner, testMasterKey())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := e.Set(ctx, "k", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	raw, _ := inner.Get(ctx, "k")
	raw[len(raw)-1] ^= 0xff
	inner.Set(ctx, "k", raw)

	if _, err := e.Get(ctx, "k"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("expected ErrDecrypt, got %v", err)
	}

	inner.Set(ctx, "short", []byte{envelopeVersion, 1, 2})
	if _, err := e.Get(ctx, "short"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("short blob: expected ErrDecrypt, got %v", err)
	}
}

func TestEncryptedWrongKey(t *testing.T) {
	inner := NewMemory()
	ctx := context.Background()

	a, _ := NewEncrypted(inner, testMasterKey())
	if err := a.Set(ctx, "k", []byte("payload")); err != nil {
		t.Fatal(err)
	}

	other := testMasterKey()
	other[0] = 0xee
	b, _ := NewEncrypted(inner, other)
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("expected ErrDecrypt with wrong key, got %v", err)
	}
}

func TestEncryptedOverSQLite(t *testing.T) {
	e, err := NewEncrypted(openTestSQLite(t), testMasterKey())
	if err != nil {
		t.Fatal(err)
	}
	exerciseBlobStore(t, e)
}
