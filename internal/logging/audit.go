package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditEventStartup        AuditEventType = "startup"
	AuditEventShutdown       AuditEventType = "shutdown"
	AuditEventConfigChange   AuditEventType = "config_change"
	AuditEventProfileExport  AuditEventType = "profile_export"
	AuditEventProfileImport  AuditEventType = "profile_import"
	AuditEventPatternRemoved AuditEventType = "pattern_removed"
	AuditEventPatternsPruned AuditEventType = "patterns_pruned"
	AuditEventError          AuditEventType = "error"
)

// AuditEvent is one line of the privacy audit trail.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Component string         `json:"component"`
	SessionID string         `json:"session_id,omitempty"`
	ProfileID string         `json:"profile_id,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Result    string         `json:"result"` // "success" or "failure"
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	FilePath   string
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool
	Component  string
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   filepath.Join(DefaultLogDir(), "audit.log"),
		MaxSize:    20,
		MaxAge:     90,
		MaxBackups: 10,
		Compress:   true,
		Component:  "resonanced",
	}
}

// AuditLogger writes JSON lines describing privacy-relevant operations.
type AuditLogger struct {
	component string
	closer    io.Closer
	now       func() time.Time

	mu        sync.Mutex
	w         io.Writer
	sessionID string
}

// NewAuditLogger opens a rotating audit file.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}
	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}
	a := NewAuditWriter(rotator, cfg.Component)
	a.closer = rotator
	return a, nil
}

// NewAuditWriter writes audit lines to w.
func NewAuditWriter(w io.Writer, component string) *AuditLogger {
	return &AuditLogger{w: w, component: component, now: time.Now}
}

// SetSessionID sets the session stamped on subsequent events.
func (a *AuditLogger) SetSessionID(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID = sessionID
}

// Log writes an audit event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Component == "" {
		event.Component = a.component
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')
	if _, err := a.w.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

func result(err error) (string, string) {
	if err != nil {
		return "failure", err.Error()
	}
	return "success", ""
}

// LogProfileExport records which sections of a profile left the process.
func (a *AuditLogger) LogProfileExport(ctx context.Context, profileID string, includePrivate bool, sections []string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventProfileExport,
		ProfileID: profileID,
		Action:    "profile_exported",
		Result:    "success",
		Details: map[string]any{
			"include_private": includePrivate,
			"sections":        sections,
		},
	})
}

// LogProfileImport records an import attempt.
func (a *AuditLogger) LogProfileImport(ctx context.Context, profileID string, merge bool, err error) error {
	res, msg := result(err)
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventProfileImport,
		ProfileID: profileID,
		Action:    "profile_imported",
		Result:    res,
		Error:     msg,
		Details:   map[string]any{"merge": merge},
	})
}

// LogPatternRemoved records deletion of a stored pattern.
func (a *AuditLogger) LogPatternRemoved(ctx context.Context, profileID, patternID string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventPatternRemoved,
		ProfileID: profileID,
		Action:    "pattern_removed",
		Resource:  patternID,
		Result:    "success",
	})
}

// LogPatternsPruned records retention-driven deletion.
func (a *AuditLogger) LogPatternsPruned(ctx context.Context, profileID string, removed, retentionDays int) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventPatternsPruned,
		ProfileID: profileID,
		Action:    "patterns_pruned",
		Result:    "success",
		Details: map[string]any{
			"removed":        removed,
			"retention_days": retentionDays,
		},
	})
}

// LogConfigChange records a hot-reloaded configuration.
func (a *AuditLogger) LogConfigChange(ctx context.Context, source string, err error) error {
	res, msg := result(err)
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventConfigChange,
		Action:    "config_reloaded",
		Resource:  source,
		Result:    res,
		Error:     msg,
	})
}

// LogStartup records daemon startup.
func (a *AuditLogger) LogStartup(ctx context.Context, version string, details map[string]any) error {
	if details == nil {
		details = make(map[string]any)
	}
	details["version"] = version
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventStartup,
		Action:    "daemon_started",
		Result:    "success",
		Details:   details,
	})
}

// LogShutdown records daemon shutdown.
func (a *AuditLogger) LogShutdown(ctx context.Context, reason string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventShutdown,
		Action:    "daemon_stopped",
		Result:    "success",
		Details:   map[string]any{"reason": reason},
	})
}

// Close closes the underlying file, if any.
func (a *AuditLogger) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
