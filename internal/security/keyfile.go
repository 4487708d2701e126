package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File permission constants
const (
	PermSecretFile os.FileMode = 0600
	PermSecretDir  os.FileMode = 0700
)

// ErrInsecurePermissions is returned when a key file is readable by
// group or others.
var ErrInsecurePermissions = errors.New("security: insecure file permissions")

// LoadOrCreateKey reads a hex-encoded master key from path, creating one
// with owner-only permissions when the file does not exist.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := LoadKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err = GenerateKey(KeySize)
	if err != nil {
		return nil, err
	}
	if err := writeKeyFile(path, key); err != nil {
		Wipe(key)
		return nil, err
	}
	return key, nil
}

// LoadKey reads a hex-encoded master key, refusing files with loose
// permissions.
func LoadKey(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %o", ErrInsecurePermissions, path, info.Mode().Perm())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	Wipe(raw)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if err := ValidateKeyStrength(key); err != nil {
		return nil, err
	}
	return key, nil
}

// writeKeyFile writes to a temporary sibling and renames it into place
// while holding an exclusive lock on the directory's lock file.
func writeKeyFile(path string, key []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, PermSecretDir); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	lock, err := os.OpenFile(filepath.Join(dir, ".key.lock"), os.O_CREATE|os.O_RDWR, PermSecretFile)
	if err != nil {
		return fmt.Errorf("open lock: %w", err)
	}
	defer lock.Close()
	if err := lockFile(lock); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer unlockFile(lock)

	// Another process may have won the race while we waited.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientEntropy, err)
	}
	tmp := path + ".tmp." + hex.EncodeToString(suffix[:])
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, PermSecretFile)
	if err != nil {
		return fmt.Errorf("create temp key: %w", err)
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write key: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync key: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close key: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename key: %w", err)
	}
	return nil
}
