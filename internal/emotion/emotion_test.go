package emotion

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// =============================================================================
// Tests for TouchSample validation
// =============================================================================

func TestTouchSampleValidate(t *testing.T) {
	tests := []struct {
		name    string
		sample  TouchSample
		wantErr error
	}{
		{"valid", TouchSample{X: 10, Y: 20, Pressure: 0.5, Duration: 100 * time.Millisecond, Area: 80}, nil},
		{"pressure zero", TouchSample{Pressure: 0}, nil},
		{"pressure one", TouchSample{Pressure: 1}, nil},
		{"pressure above", TouchSample{Pressure: 1.01}, ErrPressureRange},
		{"pressure below", TouchSample{Pressure: -0.1}, ErrPressureRange},
		{"pressure NaN", TouchSample{Pressure: math.NaN()}, ErrPressureRange},
		{"negative duration", TouchSample{Pressure: 0.2, Duration: -time.Millisecond}, ErrNegativeValue},
		{"negative area", TouchSample{Pressure: 0.2, Area: -1}, ErrNegativeValue},
		{"infinite x", TouchSample{Pressure: 0.2, X: math.Inf(1)}, ErrBadPosition},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.sample.Validate()
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestThermalDefault(t *testing.T) {
	s := TouchSample{Pressure: 0.3}
	if got := s.Thermal(); got != 0.5 {
		t.Errorf("expected default thermal 0.5, got %v", got)
	}

	v := 0.9
	s.Biosignal = &Biosignal{Thermal: &v}
	if got := s.Thermal(); got != 0.9 {
		t.Errorf("expected thermal 0.9, got %v", got)
	}
}

func TestParseEmotion(t *testing.T) {
	for _, e := range All() {
		got, err := ParseEmotion(string(e))
		if err != nil || got != e {
			t.Errorf("ParseEmotion(%q) = %q, %v", e, got, err)
		}
	}
	if _, err := ParseEmotion("boredom"); err == nil {
		t.Error("expected error for unknown emotion")
	}
}

func TestClamp01(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0: 0, 0.4: 0.4, 1: 1, 7: 1}
	for in, want := range cases {
		if got := Clamp01(in); got != want {
			t.Errorf("Clamp01(%v) = %v, want %v", in, got, want)
		}
	}
	if got := Clamp01(math.NaN()); got != 0 {
		t.Errorf("Clamp01(NaN) = %v, want 0", got)
	}
}

// =============================================================================
// Tests for Heuristic classifier
// =============================================================================

func TestHeuristicClassify(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		sample    TouchSample
		primary   Emotion
		secondary Emotion
	}{
		{"gentle long press", TouchSample{Pressure: 0.15, Duration: 600 * time.Millisecond, Area: 60}, Love, ""},
		{"feather hold", TouchSample{Pressure: 0.05, Duration: time.Second, Area: 30}, Peace, ""},
		{"light flick small", TouchSample{Pressure: 0.2, Duration: 80 * time.Millisecond, Area: 20}, Fear, ""},
		{"light flick", TouchSample{Pressure: 0.2, Duration: 80 * time.Millisecond, Area: 120}, Anxiety, ""},
		{"medium tap", TouchSample{Pressure: 0.45, Duration: 150 * time.Millisecond}, Joy, ""},
		{"medium hold", TouchSample{Pressure: 0.45, Duration: 1500 * time.Millisecond}, Sadness, ""},
		{"hard jab", TouchSample{Pressure: 0.8, Duration: 100 * time.Millisecond}, Anger, ""},
		{"hard hold", TouchSample{Pressure: 0.7, Duration: 700 * time.Millisecond}, Excitement, ""},
		{"crushing palm", TouchSample{Pressure: 0.95, Duration: 100 * time.Millisecond, Area: 380}, Anger, Fear},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHeuristic(WithNow(func() time.Time { return fixed }))
			st, err := h.Classify(context.Background(), tc.sample)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if st.Primary != tc.primary {
				t.Errorf("primary = %s, want %s", st.Primary, tc.primary)
			}
			if st.Secondary != tc.secondary {
				t.Errorf("secondary = %q, want %q", st.Secondary, tc.secondary)
			}
			if st.Intensity < 0 || st.Intensity > 1 {
				t.Errorf("intensity out of range: %v", st.Intensity)
			}
			if st.Confidence < 0 || st.Confidence > 1 {
				t.Errorf("confidence out of range: %v", st.Confidence)
			}
			if !st.Timestamp.Equal(fixed) {
				t.Errorf("timestamp = %v, want %v", st.Timestamp, fixed)
			}
		})
	}
}

func TestHeuristicRejectsInvalidSample(t *testing.T) {
	h := NewHeuristic()
	if _, err := h.Classify(context.Background(), TouchSample{Pressure: 2}); !errors.Is(err, ErrPressureRange) {
		t.Fatalf("expected ErrPressureRange, got %v", err)
	}
	if h.Baseline().Len() != 0 {
		t.Error("invalid sample should not be recorded")
	}
}

func TestHeuristicHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHeuristic().Classify(ctx, TouchSample{Pressure: 0.5})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHeuristicConfidenceGrowsWithHistory(t *testing.T) {
	h := NewHeuristic()
	ctx := context.Background()

	first, err := h.Classify(ctx, TouchSample{Pressure: 0.4, Duration: 200 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	var last State
	for i := 0; i < 60; i++ {
		p := 0.35 + float64(i%5)*0.02
		last, err = h.Classify(ctx, TouchSample{Pressure: p, Duration: 200 * time.Millisecond})
		if err != nil {
			t.Fatal(err)
		}
	}
	if last.Confidence <= first.Confidence {
		t.Errorf("confidence should grow: first=%v last=%v", first.Confidence, last.Confidence)
	}
}

// =============================================================================
// Tests for Baseline
// =============================================================================

func TestBaselineBounded(t *testing.T) {
	b := NewBaseline()
	for i := 0; i < maxBaselineSamples+120; i++ {
		b.Record(TouchSample{Pressure: 0.5, Duration: time.Millisecond, Area: 10})
	}
	if b.Len() != maxBaselineSamples {
		t.Errorf("expected %d retained samples, got %d", maxBaselineSamples, b.Len())
	}
	if p := b.Profile(); p.Samples != uint64(maxBaselineSamples+120) {
		t.Errorf("expected total %d, got %d", maxBaselineSamples+120, p.Samples)
	}
}

func TestBaselinePressureZ(t *testing.T) {
	b := NewBaseline()
	if _, ok := b.PressureZ(0.5); ok {
		t.Fatal("empty baseline should not produce a z-score")
	}
	for i := 0; i < minBaselineSamples; i++ {
		b.Record(TouchSample{Pressure: 0.4 + float64(i%2)*0.2})
	}
	z, ok := b.PressureZ(0.5)
	if !ok {
		t.Fatal("expected z-score once baseline is populated")
	}
	if math.Abs(z) > 1e-9 {
		t.Errorf("mean pressure should have z=0, got %v", z)
	}
}

func TestBaselineProfile(t *testing.T) {
	b := NewBaseline()
	b.Record(TouchSample{Pressure: 0.2, Duration: 100 * time.Millisecond, Area: 100})
	b.Record(TouchSample{Pressure: 0.6, Duration: 300 * time.Millisecond, Area: 300})

	p := b.Profile()
	if math.Abs(p.MeanPressure-0.4) > 1e-9 {
		t.Errorf("mean pressure = %v", p.MeanPressure)
	}
	if math.Abs(p.PressureRange-0.4) > 1e-9 {
		t.Errorf("pressure range = %v", p.PressureRange)
	}
	if p.MeanDurationMs != 200 {
		t.Errorf("mean duration = %v", p.MeanDurationMs)
	}
	if p.ConsistencyScore <= 0 || p.ConsistencyScore > 1 {
		t.Errorf("consistency out of range: %v", p.ConsistencyScore)
	}
}
