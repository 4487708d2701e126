package security

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// =============================================================================
// Tests for key generation and derivation
// =============================================================================

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey(KeySize)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("expected %d bytes, got %d", KeySize, len(key))
	}

	if _, err := GenerateKey(8); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("expected ErrInvalidKeySize, got %v", err)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	master := bytes.Repeat([]byte{1, 2, 3, 4}, 8)

	a, err := DeriveKeyWithLabel(master, "profile", KeySize)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	b, err := DeriveKeyWithLabel(master, "profile", KeySize)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same inputs should derive the same key")
	}

	c, err := DeriveKeyWithLabel(master, "other", KeySize)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Error("different labels should derive different keys")
	}
}

func TestDeriveKeyRejectsWeakMaster(t *testing.T) {
	if _, err := DeriveKey(make([]byte, 8), nil, nil, KeySize); !errors.Is(err, ErrWeakKey) {
		t.Errorf("short key: expected ErrWeakKey, got %v", err)
	}
	if _, err := DeriveKey(make([]byte, 32), nil, nil, KeySize); !errors.Is(err, ErrWeakKey) {
		t.Errorf("zero key: expected ErrWeakKey, got %v", err)
	}
}

func TestWipe(t *testing.T) {
	data := []byte{1, 2, 3}
	Wipe(data)
	if !bytes.Equal(data, []byte{0, 0, 0}) {
		t.Errorf("Wipe left %v", data)
	}
}

// =============================================================================
// Tests for key files
// =============================================================================

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "master.key")

	first, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	second, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("reloading should return the stored key")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != PermSecretFile {
			t.Errorf("key file mode = %o", info.Mode().Perm())
		}
	}
}

func TestLoadKeyInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	path := filepath.Join(t.TempDir(), "master.key")
	if err := os.WriteFile(path, []byte("00112233445566778899aabbccddeeff\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKey(path); !errors.Is(err, ErrInsecurePermissions) {
		t.Errorf("expected ErrInsecurePermissions, got %v", err)
	}
}

func TestLoadKeyMissing(t *testing.T) {
	if _, err := LoadKey(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
