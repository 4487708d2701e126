package main

import (
	"fmt"
	"io"
	"log/slog"

	"resonance/internal/config"
	"resonance/internal/logging"
	"resonance/internal/personalization"
	"resonance/internal/security"
	"resonance/internal/store"
)

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    int64(cfg.Logging.MaxSizeMB),
		MaxAge:     cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
		Component:  "resonanced",
	})
}

// newAuditLogger opens the audit trail, or discards audit records when no
// path is configured.
func newAuditLogger(cfg *config.Config) (*logging.AuditLogger, error) {
	if cfg.Privacy.AuditPath == "" {
		return logging.NewAuditWriter(io.Discard, "resonanced"), nil
	}
	ac := logging.DefaultAuditConfig()
	ac.FilePath = cfg.Privacy.AuditPath
	return logging.NewAuditLogger(ac)
}

// closers releases resources in reverse acquisition order.
type closers []io.Closer

func (c *closers) add(cl io.Closer) { *c = append(*c, cl) }

func (c closers) Close() error {
	var first error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openBlobStore opens the configured backend, wrapped in encryption when
// the privacy section asks for it.
func openBlobStore(cfg *config.Config) (store.BlobStore, io.Closer, error) {
	var (
		backend store.BlobStore
		cl      closers
	)
	switch cfg.Storage.Type {
	case "memory":
		backend = store.NewMemory()
	case "sqlite":
		db, err := store.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		cl.add(db)
		backend = db
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}

	if !cfg.Privacy.Encrypt {
		return backend, cl, nil
	}
	key, err := security.LoadOrCreateKey(cfg.Storage.KeyPath)
	if err != nil {
		cl.Close()
		return nil, nil, fmt.Errorf("profile key: %w", err)
	}
	enc, err := store.NewEncrypted(backend, key)
	security.Wipe(key)
	if err != nil {
		cl.Close()
		return nil, nil, err
	}
	cl.add(enc)
	return enc, cl, nil
}

// privacyFromConfig converts the privacy section into profile settings.
func privacyFromConfig(cfg *config.Config) personalization.PrivacyConfig {
	return personalization.PrivacyConfig{
		LocalOnly:        cfg.Privacy.LocalOnly,
		Encrypt:          cfg.Privacy.Encrypt,
		RetentionDays:    cfg.Privacy.RetentionDays,
		ShareAnonymous:   cfg.Privacy.ShareAnonymous,
		SharePatterns:    cfg.Privacy.SharePatterns,
		SharePreferences: cfg.Privacy.SharePreferences,
	}
}

// newProfileStore builds the personalization store for the configured
// identity on top of blobs.
func newProfileStore(cfg *config.Config, blobs store.BlobStore, audit personalization.Auditor, logger *slog.Logger) *personalization.Store {
	return personalization.New(cfg.Privacy.ProfileID,
		personalization.WithBlobStore(blobs),
		personalization.WithRetryPolicy(cfg.RetryPolicy()),
		personalization.WithAuditor(audit),
		personalization.WithLogger(logger),
	)
}

// profileSession is a loaded profile plus the resources behind it.
type profileSession struct {
	store *personalization.Store
	closers
}
