// Package emotion defines touch samples, emotional-state estimates and the
// classification seam that turns the former into the latter.
package emotion

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Emotion is a primary or secondary emotion tag.
type Emotion string

const (
	Joy        Emotion = "joy"
	Love       Emotion = "love"
	Peace      Emotion = "peace"
	Excitement Emotion = "excitement"
	Sadness    Emotion = "sadness"
	Anger      Emotion = "anger"
	Fear       Emotion = "fear"
	Anxiety    Emotion = "anxiety"
)

// All lists every defined emotion in declaration order.
func All() []Emotion {
	return []Emotion{Joy, Love, Peace, Excitement, Sadness, Anger, Fear, Anxiety}
}

// Valid reports whether e is a defined emotion.
func (e Emotion) Valid() bool {
	for _, known := range All() {
		if e == known {
			return true
		}
	}
	return false
}

// ParseEmotion parses a tag, case-sensitively.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotion(s)
	if !e.Valid() {
		return "", fmt.Errorf("emotion: unknown tag %q", s)
	}
	return e, nil
}

// Biosignal carries optional readings attached by the biosignal collaborator.
type Biosignal struct {
	Thermal *float64 `json:"thermal,omitempty"` // normalized 0.0-1.0
	Pulse   *float64 `json:"pulse,omitempty"`   // normalized 0.0-1.0
}

// TouchSample is a single physical touch as delivered by the hardware layer.
type TouchSample struct {
	X         float64       `json:"x"`
	Y         float64       `json:"y"`
	Pressure  float64       `json:"pressure"` // 0.0-1.0
	Duration  time.Duration `json:"duration"`
	Area      float64       `json:"area"` // px^2
	Timestamp time.Time     `json:"timestamp"`
	Biosignal *Biosignal    `json:"biosignal,omitempty"`
}

// Sample validation errors.
var (
	ErrPressureRange = errors.New("emotion: pressure outside [0,1]")
	ErrNegativeValue = errors.New("emotion: negative duration or area")
	ErrBadPosition   = errors.New("emotion: position is not a finite number")
)

// Validate checks the field ranges of the sample.
func (s TouchSample) Validate() error {
	if math.IsNaN(s.Pressure) || s.Pressure < 0 || s.Pressure > 1 {
		return fmt.Errorf("%w: %v", ErrPressureRange, s.Pressure)
	}
	if s.Duration < 0 || s.Area < 0 || math.IsNaN(s.Area) {
		return ErrNegativeValue
	}
	if !finite(s.X) || !finite(s.Y) {
		return ErrBadPosition
	}
	return nil
}

// Thermal returns the thermal reading or the mid-range default.
func (s TouchSample) Thermal() float64 {
	if s.Biosignal != nil && s.Biosignal.Thermal != nil {
		return *s.Biosignal.Thermal
	}
	return 0.5
}

// State is a classified emotional-state estimate.
type State struct {
	Primary    Emotion   `json:"primary"`
	Secondary  Emotion   `json:"secondary,omitempty"`
	Intensity  float64   `json:"intensity"`  // 0.0-1.0
	Confidence float64   `json:"confidence"` // 0.0-1.0
	Timestamp  time.Time `json:"timestamp"`
}

// HasSecondary reports whether a secondary emotion is set.
func (s State) HasSecondary() bool {
	return s.Secondary != ""
}

// Clamp01 limits v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
