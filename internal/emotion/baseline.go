package emotion

import (
	"math"
	"sync"
	"time"
)

// maxBaselineSamples bounds every rolling series kept by a Baseline.
const maxBaselineSamples = 500

// Baseline tracks a user's recent touch behaviour so that a sample can be
// judged relative to how this user normally touches.
type Baseline struct {
	mu sync.RWMutex

	pressures []float64
	durations []time.Duration
	areas     []float64
	total     uint64
}

// BaselineProfile is a snapshot of the rolling touch statistics.
type BaselineProfile struct {
	Samples          uint64  `json:"samples"`
	MeanPressure     float64 `json:"mean_pressure"`
	StdDevPressure   float64 `json:"stddev_pressure"`
	PressureRange    float64 `json:"pressure_range"`
	MeanDurationMs   float64 `json:"mean_duration_ms"`
	StdDevDurationMs float64 `json:"stddev_duration_ms"`
	MeanArea         float64 `json:"mean_area"`
	StdDevArea       float64 `json:"stddev_area"`

	// ConsistencyScore is 0-1, higher means steadier touch behaviour.
	ConsistencyScore float64 `json:"consistency_score"`
}

// NewBaseline creates an empty baseline.
func NewBaseline() *Baseline {
	return &Baseline{
		pressures: make([]float64, 0, maxBaselineSamples),
		durations: make([]time.Duration, 0, maxBaselineSamples),
		areas:     make([]float64, 0, maxBaselineSamples),
	}
}

// Record adds a sample to the rolling series.
func (b *Baseline) Record(s TouchSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	b.pressures = append(b.pressures, s.Pressure)
	if s.Duration > 0 {
		b.durations = append(b.durations, s.Duration)
	}
	if s.Area > 0 {
		b.areas = append(b.areas, s.Area)
	}
	b.trim()
}

func (b *Baseline) trim() {
	if len(b.pressures) > maxBaselineSamples {
		b.pressures = b.pressures[len(b.pressures)-maxBaselineSamples:]
	}
	if len(b.durations) > maxBaselineSamples {
		b.durations = b.durations[len(b.durations)-maxBaselineSamples:]
	}
	if len(b.areas) > maxBaselineSamples {
		b.areas = b.areas[len(b.areas)-maxBaselineSamples:]
	}
}

// Len returns the number of pressure readings currently retained.
func (b *Baseline) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pressures)
}

// PressureZ returns how many standard deviations p lies from the rolling
// mean. ok is false until enough spread has been observed.
func (b *Baseline) PressureZ(p float64) (z float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.pressures) < minBaselineSamples {
		return 0, false
	}
	sd := stddev(b.pressures)
	if sd < 1e-6 {
		return 0, false
	}
	return (p - mean(b.pressures)) / sd, true
}

// Profile computes the current baseline snapshot.
func (b *Baseline) Profile() BaselineProfile {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p := BaselineProfile{Samples: b.total}
	if len(b.pressures) > 0 {
		p.MeanPressure = mean(b.pressures)
		p.StdDevPressure = stddev(b.pressures)
		p.PressureRange = maxVal(b.pressures) - minVal(b.pressures)
	}
	if len(b.durations) > 0 {
		p.MeanDurationMs = meanDuration(b.durations)
		p.StdDevDurationMs = stddevDuration(b.durations)
	}
	if len(b.areas) > 0 {
		p.MeanArea = mean(b.areas)
		p.StdDevArea = stddev(b.areas)
	}
	p.ConsistencyScore = consistency(p)
	return p
}

// consistency averages 1/(1+CV) over the series that have data.
func consistency(p BaselineProfile) float64 {
	var scores []float64
	if p.MeanPressure > 0 {
		scores = append(scores, 1.0/(1.0+p.StdDevPressure/p.MeanPressure))
	}
	if p.MeanDurationMs > 0 {
		scores = append(scores, 1.0/(1.0+p.StdDevDurationMs/p.MeanDurationMs))
	}
	if p.MeanArea > 0 {
		scores = append(scores, 1.0/(1.0+p.StdDevArea/p.MeanArea))
	}
	if len(scores) == 0 {
		return 0.5
	}
	return mean(scores)
}

// Helper functions

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		diff := v - m
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func meanDuration(values []time.Duration) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range values {
		sum += v
	}
	return float64(sum.Milliseconds()) / float64(len(values))
}

func stddevDuration(values []time.Duration) float64 {
	if len(values) < 2 {
		return 0
	}
	m := meanDuration(values)
	sum := 0.0
	for _, v := range values {
		diff := float64(v.Milliseconds()) - m
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func minVal(values []float64) float64 {
	lo := values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
	}
	return lo
}

func maxVal(values []float64) float64 {
	hi := values[0]
	for _, v := range values[1:] {
		if v > hi {
			hi = v
		}
	}
	return hi
}
