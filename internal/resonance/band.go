// Package resonance maps an emotional state and touch pressure to an
// interaction mode through an ordered table of structured rules.
package resonance

import "math"

// Band is a named, non-overlapping subrange of the pressure domain.
type Band int

const (
	VeryLight Band = iota
	Light
	Medium
	Heavy
	VeryHeavy
)

// Band thresholds. Each band is half-open [lower, next lower); VeryHeavy
// is closed at 1.0.
const (
	LightThreshold     = 0.10
	MediumThreshold    = 0.30
	HeavyThreshold     = 0.60
	VeryHeavyThreshold = 0.85
)

var bandNames = [...]string{
	VeryLight: "VERY_LIGHT",
	Light:     "LIGHT",
	Medium:    "MEDIUM",
	Heavy:     "HEAVY",
	VeryHeavy: "VERY_HEAVY",
}

// String returns the band name.
func (b Band) String() string {
	if b < VeryLight || b > VeryHeavy {
		return "UNKNOWN"
	}
	return bandNames[b]
}

// MarshalText implements encoding.TextMarshaler.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bands returns every band in ascending pressure order.
func Bands() []Band {
	return []Band{VeryLight, Light, Medium, Heavy, VeryHeavy}
}

// BandFor returns the band containing pressure. Values outside [0,1] are
// clamped, NaN is treated as 0.
func BandFor(pressure float64) Band {
	if math.IsNaN(pressure) {
		pressure = 0
	}
	switch {
	case pressure < LightThreshold:
		return VeryLight
	case pressure < MediumThreshold:
		return Light
	case pressure < HeavyThreshold:
		return Medium
	case pressure < VeryHeavyThreshold:
		return Heavy
	default:
		return VeryHeavy
	}
}
