package personalization

import (
	"time"

	"resonance/internal/emotion"
	"resonance/internal/resonance"
)

// Range is an inclusive interval.
type Range struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Contains reports whether v lies in [Lo, Hi].
func (r Range) Contains(v float64) bool {
	return v >= r.Lo && v <= r.Hi
}

func (r Range) normalized() Range {
	lo, hi := emotion.Clamp01(r.Lo), emotion.Clamp01(r.Hi)
	if lo > hi {
		lo, hi = hi, lo
	}
	return Range{Lo: lo, Hi: hi}
}

// Pattern is a stored historical emotional record.
type Pattern struct {
	ID                  string          `json:"id"`
	Primary             emotion.Emotion `json:"primary"`
	Secondary           emotion.Emotion `json:"secondary,omitempty"`
	IntensityRange      Range           `json:"intensityRange"`
	PressureSensitivity float64         `json:"pressureSensitivity"`
	ThermalSignature    float64         `json:"thermalSignature"`
	PulseCorrelation    *float64        `json:"pulseCorrelation,omitempty"`
	Frequency           int             `json:"frequency"`
	Confidence          float64         `json:"confidence"`
	LastObserved        time.Time       `json:"lastObserved"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// normalize enforces non-negative frequency and unit-interval values.
func (p *Pattern) normalize() {
	p.IntensityRange = p.IntensityRange.normalized()
	p.PressureSensitivity = emotion.Clamp01(p.PressureSensitivity)
	p.ThermalSignature = emotion.Clamp01(p.ThermalSignature)
	p.Confidence = emotion.Clamp01(p.Confidence)
	if p.Frequency < 0 {
		p.Frequency = 0
	}
	if p.PulseCorrelation != nil {
		v := emotion.Clamp01(*p.PulseCorrelation)
		p.PulseCorrelation = &v
	}
}

func (p Pattern) clone() Pattern {
	if p.PulseCorrelation != nil {
		v := *p.PulseCorrelation
		p.PulseCorrelation = &v
	}
	return p
}

// PatternUpdate carries the fields to merge into a stored pattern. Nil
// fields are left untouched.
type PatternUpdate struct {
	Secondary           *emotion.Emotion `json:"secondary,omitempty"`
	IntensityRange      *Range           `json:"intensityRange,omitempty"`
	PressureSensitivity *float64         `json:"pressureSensitivity,omitempty"`
	ThermalSignature    *float64         `json:"thermalSignature,omitempty"`
	PulseCorrelation    *float64         `json:"pulseCorrelation,omitempty"`
	Frequency           *int             `json:"frequency,omitempty"`
	Confidence          *float64         `json:"confidence,omitempty"`
}

// Characteristics are the observed values matched against patterns.
type Characteristics struct {
	Emotion   emotion.Emotion
	Intensity float64
	Pressure  float64
	Thermal   float64
	Pulse     *float64
}

// ResponseSpeed is the preferred reaction speed.
type ResponseSpeed string

const (
	SpeedSlow   ResponseSpeed = "slow"
	SpeedNormal ResponseSpeed = "normal"
	SpeedFast   ResponseSpeed = "fast"
)

// Sensitivity holds per-channel sensitivity in [0,1].
type Sensitivity struct {
	Pressure float64 `json:"pressure"`
	Thermal  float64 `json:"thermal"`
	Pulse    float64 `json:"pulse"`
}

// ResonanceSettings are a user's resonance preferences.
type ResonanceSettings struct {
	PreferredModes []resonance.Mode `json:"preferredModes"`
	PreferredForms []string         `json:"preferredForms"`
	Sensitivity    Sensitivity      `json:"sensitivity"`
	ResponseSpeed  ResponseSpeed    `json:"responseSpeed"`
	HapticFeedback bool             `json:"hapticFeedback"`
}

func (s ResonanceSettings) clone() ResonanceSettings {
	s.PreferredModes = append([]resonance.Mode{}, s.PreferredModes...)
	s.PreferredForms = append([]string{}, s.PreferredForms...)
	return s
}

// PrivacyConfig governs retention and export visibility.
type PrivacyConfig struct {
	LocalOnly        bool `json:"localOnly"`
	Encrypt          bool `json:"encrypt"`
	RetentionDays    int  `json:"retentionDays"`
	ShareAnonymous   bool `json:"shareAnonymous"`
	SharePatterns    bool `json:"sharePatterns"`
	SharePreferences bool `json:"sharePreferences"`
}

// Adjustment is one entry of the learning log.
type Adjustment struct {
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// LearningState tracks adaptive learning. Adjustments is append-only.
type LearningState struct {
	LearningRate float64      `json:"learningRate"`
	Accuracy     float64      `json:"accuracy"`
	SampleCount  int          `json:"sampleCount"`
	LastTraining time.Time    `json:"lastTraining"`
	Adjustments  []Adjustment `json:"adjustments"`
}

func (l LearningState) clone() LearningState {
	l.Adjustments = append([]Adjustment{}, l.Adjustments...)
	return l
}

// Profile is everything stored for one user.
type Profile struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Patterns    []Pattern         `json:"patterns"`
	Preferences ResonanceSettings `json:"preferences"`
	Privacy     PrivacyConfig     `json:"privacy"`
	Learning    LearningState     `json:"learning"`
}

// ProfileVersion is the schema version written by this package.
const ProfileVersion = 1

// DefaultLearningRate is the reinforcement step for observed patterns.
const DefaultLearningRate = 0.1

// DefaultProfile returns the profile a new user starts with.
func DefaultProfile(id string, now time.Time) Profile {
	return Profile{
		ID:        id,
		Version:   ProfileVersion,
		CreatedAt: now,
		UpdatedAt: now,
		Patterns:  []Pattern{},
		Preferences: ResonanceSettings{
			PreferredModes: []resonance.Mode{},
			PreferredForms: []string{},
			Sensitivity:    Sensitivity{Pressure: 0.5, Thermal: 0.5, Pulse: 0.5},
			ResponseSpeed:  SpeedNormal,
			HapticFeedback: true,
		},
		Privacy: PrivacyConfig{
			LocalOnly:     true,
			Encrypt:       true,
			RetentionDays: 365,
		},
		Learning: LearningState{
			LearningRate: DefaultLearningRate,
			Adjustments:  []Adjustment{},
		},
	}
}

func (p Profile) clone() Profile {
	patterns := make([]Pattern, len(p.Patterns))
	for i, pat := range p.Patterns {
		patterns[i] = pat.clone()
	}
	p.Patterns = patterns
	p.Preferences = p.Preferences.clone()
	p.Learning = p.Learning.clone()
	return p
}

// LearningStats summarizes the learning state.
type LearningStats struct {
	Patterns       int       `json:"patterns"`
	MeanConfidence float64   `json:"meanConfidence"`
	SampleCount    int       `json:"sampleCount"`
	Accuracy       float64   `json:"accuracy"`
	Adjustments    int       `json:"adjustments"`
	LastTraining   time.Time `json:"lastTraining"`
}
