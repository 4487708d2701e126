package emotion

import (
	"context"
	"math"
	"time"
)

// Classifier turns a touch sample into an emotional-state estimate.
// Implementations may block (remote models, hardware decoders) and must
// honour ctx cancellation.
type Classifier interface {
	Classify(ctx context.Context, s TouchSample) (State, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, s TouchSample) (State, error)

// Classify calls f(ctx, s).
func (f ClassifierFunc) Classify(ctx context.Context, s TouchSample) (State, error) {
	return f(ctx, s)
}

const (
	// minBaselineSamples is the history needed before pressure is judged
	// relative to the user's own baseline instead of absolutely.
	minBaselineSamples = 20

	// referenceArea is the contact area treated as a full-finger press.
	referenceArea = 400.0

	// outlierZ marks a sample as unusual for this user.
	outlierZ = 3.0
)

// Heuristic is a deterministic rule-of-thumb classifier over pressure,
// duration and contact area. It is the stand-in used when no recognition
// model is wired, not a recognition model itself.
type Heuristic struct {
	baseline *Baseline
	now      func() time.Time
}

// HeuristicOption configures a Heuristic.
type HeuristicOption func(*Heuristic)

// WithNow overrides the timestamp source used when samples carry none.
func WithNow(now func() time.Time) HeuristicOption {
	return func(h *Heuristic) {
		h.now = now
	}
}

// WithBaseline shares an existing baseline.
func WithBaseline(b *Baseline) HeuristicOption {
	return func(h *Heuristic) {
		h.baseline = b
	}
}

// NewHeuristic creates a heuristic classifier with an empty baseline.
func NewHeuristic(opts ...HeuristicOption) *Heuristic {
	h := &Heuristic{
		baseline: NewBaseline(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Baseline exposes the rolling touch statistics.
func (h *Heuristic) Baseline() *Baseline {
	return h.baseline
}

// Classify implements Classifier.
func (h *Heuristic) Classify(ctx context.Context, s TouchSample) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}

	pressure := s.Pressure
	z, relative := h.baseline.PressureZ(s.Pressure)
	if relative {
		// Re-centre on this user's habits: 0.5 is "their normal".
		pressure = Clamp01(0.5 + z*0.2)
	}

	primary, secondary := classifyTouch(pressure, s.Duration, s.Area)

	confidence := 0.5 + 0.4*math.Min(float64(h.baseline.Len()), 50)/50
	if relative && math.Abs(z) > outlierZ {
		confidence *= 0.7
	}

	ts := s.Timestamp
	if ts.IsZero() {
		ts = h.now()
	}

	h.baseline.Record(s)

	return State{
		Primary:    primary,
		Secondary:  secondary,
		Intensity:  Clamp01(0.8*pressure + 0.2*Clamp01(s.Area/referenceArea)),
		Confidence: Clamp01(confidence),
		Timestamp:  ts,
	}, nil
}

// classifyTouch maps normalized pressure, hold time and contact area to
// a primary and optional secondary emotion.
func classifyTouch(pressure float64, d time.Duration, area float64) (Emotion, Emotion) {
	ms := d.Milliseconds()
	switch {
	case pressure < 0.1:
		if ms >= 800 {
			return Peace, ""
		}
		return Love, ""
	case pressure < 0.3:
		if ms >= 400 {
			return Love, ""
		}
		if area > 0 && area < 50 {
			return Fear, ""
		}
		return Anxiety, ""
	case pressure < 0.6:
		if ms >= 1000 {
			return Sadness, ""
		}
		return Joy, ""
	case pressure < 0.85:
		if ms < 250 {
			return Anger, ""
		}
		return Excitement, ""
	default:
		if area > 250 {
			return Anger, Fear
		}
		return Anger, ""
	}
}
