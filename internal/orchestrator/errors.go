package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Severity ranks a normalized error.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category groups error codes by origin.
type Category string

const (
	CategoryHardware      Category = "hardware"
	CategoryProcessing    Category = "processing"
	CategoryConfiguration Category = "configuration"
	CategoryPerformance   Category = "performance"
	CategoryPrivacy       Category = "privacy"
)

// Error codes.
const (
	CodeHardwareUnsupported    = "HARDWARE_UNSUPPORTED"
	CodeDecoderFailure         = "EMOTION_DECODER_FAILURE"
	CodeMapperFailure          = "RESONANCE_MAPPER_FAILURE"
	CodeSensorDisconnected     = "SENSOR_DISCONNECTED"
	CodeLatencyExceeded        = "LATENCY_EXCEEDED"
	CodeMemoryExceeded         = "MEMORY_EXCEEDED"
	CodePerformanceDegraded    = "PERFORMANCE_DEGRADED"
	CodeInvalidSample          = "INVALID_SAMPLE"
	CodePersonalizationFailure = "PERSONALIZATION_FAILURE"
	CodePersistenceFailure     = "PERSISTENCE_FAILURE"
	CodeConfigInvalid          = "CONFIG_INVALID"
	CodePrivacyViolation       = "PRIVACY_VIOLATION"
	CodeUnknown                = "UNKNOWN_ERROR"
)

var (
	criticalCodes = map[string]bool{
		CodeHardwareUnsupported: true,
		CodeDecoderFailure:      true,
		CodeMapperFailure:       true,
	}
	highCodes = map[string]bool{
		CodeSensorDisconnected: true,
		CodeLatencyExceeded:    true,
		CodeMemoryExceeded:     true,
	}
	codeCategories = map[string]Category{
		CodeHardwareUnsupported:    CategoryHardware,
		CodeSensorDisconnected:     CategoryHardware,
		CodeDecoderFailure:         CategoryProcessing,
		CodeMapperFailure:          CategoryProcessing,
		CodeInvalidSample:          CategoryProcessing,
		CodePersonalizationFailure: CategoryProcessing,
		CodePersistenceFailure:     CategoryProcessing,
		CodeLatencyExceeded:        CategoryPerformance,
		CodeMemoryExceeded:         CategoryPerformance,
		CodeConfigInvalid:          CategoryConfiguration,
		CodePrivacyViolation:       CategoryPrivacy,
	}
)

// SeverityOf classifies a code.
func SeverityOf(code string) Severity {
	switch {
	case criticalCodes[code]:
		return SeverityCritical
	case highCodes[code]:
		return SeverityHigh
	case strings.Contains(code, "PERFORMANCE"):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// CategoryOf returns the category of a code. Unlisted codes are
// processing errors unless they mention PERFORMANCE.
func CategoryOf(code string) Category {
	if c, ok := codeCategories[code]; ok {
		return c
	}
	if strings.Contains(code, "PERFORMANCE") {
		return CategoryPerformance
	}
	return CategoryProcessing
}

// Error is a normalized component failure.
type Error struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Category Category       `json:"category"`
	Context  map[string]any `json:"context,omitempty"`
	Err      error          `json:"-"`
}

// NewError builds a classified Error.
func NewError(code, message string, cause error, context map[string]any) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Severity: SeverityOf(code),
		Category: CategoryOf(code),
		Context:  context,
		Err:      cause,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Critical reports whether the error forces the Error status.
func (e *Error) Critical() bool { return e.Severity == SeverityCritical }

// Normalize returns err as an *Error, wrapping foreign errors as
// UNKNOWN_ERROR.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(CodeUnknown, err.Error(), err, nil)
}
