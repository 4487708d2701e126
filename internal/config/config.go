// Package config handles configuration loading, validation, and management for resonanced.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"resonance/internal/logging"
	"resonance/internal/retry"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Hardware describes the touch surface.
	Hardware HardwareConfig `toml:"hardware" json:"hardware" yaml:"hardware"`

	// Software tunes classification and learning.
	Software SoftwareConfig `toml:"software" json:"software" yaml:"software"`

	// Privacy controls what the profile shares and how long it keeps data.
	Privacy PrivacyConfig `toml:"privacy" json:"privacy" yaml:"privacy"`

	// Performance holds latency and memory limits.
	Performance PerformanceConfig `toml:"performance" json:"performance" yaml:"performance"`

	// Storage configuration for profile persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Server configuration for the HTTP API.
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// HardwareConfig describes the touch surface and its optional sensors.
type HardwareConfig struct {
	// DeviceID is attached to every resonance result.
	DeviceID string `toml:"device_id" json:"device_id" yaml:"device_id"`

	// SamplingRateHz is the sensor sampling rate.
	SamplingRateHz int `toml:"sampling_rate_hz" json:"sampling_rate_hz" yaml:"sampling_rate_hz"`

	// PressureSensitivity scales raw pressure, 0.0-1.0.
	PressureSensitivity float64 `toml:"pressure_sensitivity" json:"pressure_sensitivity" yaml:"pressure_sensitivity"`

	// ThermalSensing enables thermal readings from the biosignal collaborator.
	ThermalSensing bool `toml:"thermal_sensing" json:"thermal_sensing" yaml:"thermal_sensing"`

	// PulseSensing enables pulse readings from the biosignal collaborator.
	PulseSensing bool `toml:"pulse_sensing" json:"pulse_sensing" yaml:"pulse_sensing"`

	// HapticFeedback is the default for new profiles.
	HapticFeedback bool `toml:"haptic_feedback" json:"haptic_feedback" yaml:"haptic_feedback"`
}

// SoftwareConfig tunes classification and adaptive learning.
type SoftwareConfig struct {
	// ApplicationID is attached to every resonance result.
	ApplicationID string `toml:"application_id" json:"application_id" yaml:"application_id"`

	// ConfidenceThreshold is the classification confidence at which
	// observations reinforce stored patterns.
	ConfidenceThreshold float64 `toml:"confidence_threshold" json:"confidence_threshold" yaml:"confidence_threshold"`

	// AdaptiveLearning enables passive reinforcement of patterns.
	AdaptiveLearning bool `toml:"adaptive_learning" json:"adaptive_learning" yaml:"adaptive_learning"`

	// ResponseSpeed is the default response speed: "slow", "normal" or "fast".
	ResponseSpeed string `toml:"response_speed" json:"response_speed" yaml:"response_speed"`
}

// PrivacyConfig controls profile sharing and retention.
type PrivacyConfig struct {
	// ProfileID identifies the local user profile.
	ProfileID string `toml:"profile_id" json:"profile_id" yaml:"profile_id"`

	// LocalOnly forbids sending profile data off the device.
	LocalOnly bool `toml:"local_only" json:"local_only" yaml:"local_only"`

	// Encrypt enables authenticated encryption of the stored profile.
	Encrypt bool `toml:"encrypt" json:"encrypt" yaml:"encrypt"`

	// RetentionDays drops patterns not observed for this long. 0 keeps
	// everything.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`

	ShareAnonymous   bool `toml:"share_anonymous" json:"share_anonymous" yaml:"share_anonymous"`
	SharePatterns    bool `toml:"share_patterns" json:"share_patterns" yaml:"share_patterns"`
	SharePreferences bool `toml:"share_preferences" json:"share_preferences" yaml:"share_preferences"`

	// AuditPath is the privacy audit log. Empty disables auditing.
	AuditPath string `toml:"audit_path" json:"audit_path" yaml:"audit_path"`
}

// PerformanceConfig holds pipeline limits.
type PerformanceConfig struct {
	// MaxLatencyMs is the classification latency limit.
	MaxLatencyMs int `toml:"max_latency_ms" json:"max_latency_ms" yaml:"max_latency_ms"`

	// MaxMemoryMB is the process memory limit.
	MaxMemoryMB int `toml:"max_memory_mb" json:"max_memory_mb" yaml:"max_memory_mb"`

	// MetricsIntervalMs is the period of the runtime metrics loop.
	MetricsIntervalMs int `toml:"metrics_interval_ms" json:"metrics_interval_ms" yaml:"metrics_interval_ms"`

	// LatencyWindow is the number of latency samples averaged.
	LatencyWindow int `toml:"latency_window" json:"latency_window" yaml:"latency_window"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "sqlite" or "memory".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the path to the database file (for sqlite).
	Path string `toml:"path" json:"path" yaml:"path"`

	// KeyPath is the master key file used when privacy.encrypt is set.
	KeyPath string `toml:"key_path" json:"key_path" yaml:"key_path"`

	// RetryAttempts bounds persistence write attempts.
	RetryAttempts int `toml:"retry_attempts" json:"retry_attempts" yaml:"retry_attempts"`

	// RetryInitialMs is the first backoff interval.
	RetryInitialMs int `toml:"retry_initial_ms" json:"retry_initial_ms" yaml:"retry_initial_ms"`

	// RetryMaxMs caps the backoff interval.
	RetryMaxMs int `toml:"retry_max_ms" json:"retry_max_ms" yaml:"retry_max_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or a file path.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	// Enabled determines whether the HTTP API is served.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Addr is the listen address.
	Addr string `toml:"addr" json:"addr" yaml:"addr"`

	ReadTimeoutSec     int `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec    int `toml:"write_timeout_sec" json:"write_timeout_sec" yaml:"write_timeout_sec"`
	ShutdownTimeoutSec int `toml:"shutdown_timeout_sec" json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Hardware: HardwareConfig{
			DeviceID:            "",
			SamplingRateHz:      120,
			PressureSensitivity: 0.5,
			ThermalSensing:      false,
			PulseSensing:        false,
			HapticFeedback:      true,
		},
		Software: SoftwareConfig{
			ApplicationID:       "resonanced",
			ConfidenceThreshold: 0.7,
			AdaptiveLearning:    true,
			ResponseSpeed:       "normal",
		},
		Privacy: PrivacyConfig{
			ProfileID:     "default",
			LocalOnly:     true,
			Encrypt:       true,
			RetentionDays: 365,
			AuditPath:     filepath.Join(dir, "audit.log"),
		},
		Performance: PerformanceConfig{
			MaxLatencyMs:      MaxLatencyMs,
			MaxMemoryMB:       MaxMemoryUsageMB,
			MetricsIntervalMs: 1000,
			LatencyWindow:     100,
		},
		Storage: StorageConfig{
			Type:           "sqlite",
			Path:           filepath.Join(dir, "profiles.db"),
			KeyPath:        filepath.Join(dir, "profile.key"),
			RetryAttempts:  5,
			RetryInitialMs: 100,
			RetryMaxMs:     2000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(logging.DefaultLogDir(), "resonanced.log"),
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Server: ServerConfig{
			Enabled:            true,
			Addr:               "127.0.0.1:7717",
			ReadTimeoutSec:     10,
			WriteTimeoutSec:    10,
			ShutdownTimeoutSec: 15,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
// The result is not validated; use Loader for validate-on-load.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all necessary directories for the daemon.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.KeyPath),
	}
	if c.Storage.Type == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}
	if c.Privacy.AuditPath != "" {
		dirs = append(dirs, filepath.Dir(c.Privacy.AuditPath))
	}
	if c.Logging.Output == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DataDir returns the base resonanced data directory.
// Uses platform-specific paths or the RESONANCED_DATA_DIR override.
func DataDir() string {
	if envDir := os.Getenv("RESONANCED_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with RESONANCED_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Storage overrides
	if v := os.Getenv("RESONANCED_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("RESONANCED_KEY_PATH"); v != "" {
		c.Storage.KeyPath = v
	}

	// Logging overrides
	if v := os.Getenv("RESONANCED_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RESONANCED_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	// Identity overrides
	if v := os.Getenv("RESONANCED_PROFILE_ID"); v != "" {
		c.Privacy.ProfileID = v
	}
	if v := os.Getenv("RESONANCED_DEVICE_ID"); v != "" {
		c.Hardware.DeviceID = v
	}

	// Server overrides
	if v := os.Getenv("RESONANCED_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Clone returns a copy of the configuration. Config holds no slices, so a
// value copy is deep.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version:     c.Version,
		Hardware:    c.Hardware,
		Software:    c.Software,
		Privacy:     c.Privacy,
		Performance: c.Performance,
		Storage:     c.Storage,
		Logging:     c.Logging,
		Server:      c.Server,
	}
}

// MaxLatency returns the latency limit as a duration.
func (c *Config) MaxLatency() time.Duration {
	return time.Duration(c.Performance.MaxLatencyMs) * time.Millisecond
}

// MetricsInterval returns the metrics loop period.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.Performance.MetricsIntervalMs) * time.Millisecond
}

// RetryPolicy returns the persistence retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.Storage.RetryAttempts
	p.InitialInterval = time.Duration(c.Storage.RetryInitialMs) * time.Millisecond
	p.MaxInterval = time.Duration(c.Storage.RetryMaxMs) * time.Millisecond
	return p
}

// encodeTOML renders cfg as TOML.
func encodeTOML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg.Clone()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
