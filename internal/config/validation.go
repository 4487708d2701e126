package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Limits enforced by validation.
const (
	MinSamplingRateHz      = 60
	MaxSamplingRateHz      = 1000
	MinConfidenceThreshold = 0.5
	MaxConfidenceThreshold = 0.95
	MaxLatencyMs           = 100
	MaxMemoryUsageMB       = 512
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) hold for any ValidationErrors.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the offending field names in report order.
func (e ValidationErrors) Fields() []string {
	out := make([]string, len(e))
	for i, v := range e {
		out[i] = v.Field
	}
	return out
}

// ErrInvalidConfig is matched by every ValidationErrors value.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidateConfig checks every section and returns all violations as
// ValidationErrors, or nil.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateHardware(&c.Hardware)...)
	errs = append(errs, validateSoftware(&c.Software)...)
	errs = append(errs, validatePrivacy(&c.Privacy)...)
	errs = append(errs, validatePerformance(&c.Performance)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateServer(&c.Server)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHardware(h *HardwareConfig) ValidationErrors {
	var errs ValidationErrors

	if h.SamplingRateHz < MinSamplingRateHz || h.SamplingRateHz > MaxSamplingRateHz {
		errs = append(errs, *RangeError("hardware.sampling_rate_hz", MinSamplingRateHz, MaxSamplingRateHz))
	}
	if h.PressureSensitivity < 0 || h.PressureSensitivity > 1 {
		errs = append(errs, *RangeError("hardware.pressure_sensitivity", 0, 1))
	}

	return errs
}

func validateSoftware(s *SoftwareConfig) ValidationErrors {
	var errs ValidationErrors

	if s.ConfidenceThreshold < MinConfidenceThreshold || s.ConfidenceThreshold > MaxConfidenceThreshold {
		errs = append(errs, *RangeError("software.confidence_threshold", MinConfidenceThreshold, MaxConfidenceThreshold))
	}

	switch s.ResponseSpeed {
	case "slow", "normal", "fast":
	default:
		errs = append(errs, ValidationError{
			Field:   "software.response_speed",
			Message: fmt.Sprintf("invalid response speed: %s (valid: slow, normal, fast)", s.ResponseSpeed),
		})
	}

	return errs
}

func validatePrivacy(p *PrivacyConfig) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(p.ProfileID) == "" {
		errs = append(errs, *RequiredFieldError("privacy.profile_id"))
	}
	if p.RetentionDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "privacy.retention_days",
			Message: "retention cannot be negative",
		})
	}
	if p.LocalOnly && p.ShareAnonymous {
		errs = append(errs, ValidationError{
			Field:   "privacy.share_anonymous",
			Message: "anonymous sharing conflicts with local_only",
		})
	}

	return errs
}

func validatePerformance(p *PerformanceConfig) ValidationErrors {
	var errs ValidationErrors

	if p.MaxLatencyMs < 1 || p.MaxLatencyMs > MaxLatencyMs {
		errs = append(errs, *RangeError("performance.max_latency_ms", 1, MaxLatencyMs))
	}
	if p.MaxMemoryMB < 1 || p.MaxMemoryMB > MaxMemoryUsageMB {
		errs = append(errs, *RangeError("performance.max_memory_mb", 1, MaxMemoryUsageMB))
	}
	if p.MetricsIntervalMs < 100 {
		errs = append(errs, ValidationError{
			Field:   "performance.metrics_interval_ms",
			Message: "metrics interval must be at least 100 ms",
		})
	}
	if p.LatencyWindow < 1 {
		errs = append(errs, ValidationError{
			Field:   "performance.latency_window",
			Message: "latency window must hold at least one sample",
		})
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case "sqlite":
		if s.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "storage.path",
				Message: "path is required for sqlite storage",
			})
		}
	case "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid storage type: %s (valid: sqlite, memory)", s.Type),
		})
	}

	if s.RetryAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "storage.retry_attempts",
			Message: "at least one attempt is required",
		})
	}
	if s.RetryInitialMs < 0 || s.RetryMaxMs < s.RetryInitialMs {
		errs = append(errs, ValidationError{
			Field:   "storage.retry_max_ms",
			Message: "retry intervals must satisfy 0 <= initial <= max",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %q (valid: stdout, stderr, file)", l.Output),
		})
	}

	if l.Output == "file" && l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateServer(s *ServerConfig) ValidationErrors {
	var errs ValidationErrors
	if !s.Enabled {
		return errs
	}

	if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "server.addr",
			Message: fmt.Sprintf("invalid listen address %q: %v", s.Addr, err),
		})
	}
	if s.ReadTimeoutSec < 0 || s.WriteTimeoutSec < 0 || s.ShutdownTimeoutSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "server",
			Message: "timeouts cannot be negative",
		})
	}

	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
