package orchestrator

import "time"

// DefaultWindowSize is the number of latency samples averaged.
const DefaultWindowSize = 100

// PerformanceWindow is a fixed-capacity ring of latency measurements.
// It is not safe for concurrent use.
type PerformanceWindow struct {
	buf  []time.Duration
	next int
	n    int
	sum  time.Duration
}

// NewPerformanceWindow returns a window holding at most capacity samples.
func NewPerformanceWindow(capacity int) *PerformanceWindow {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &PerformanceWindow{buf: make([]time.Duration, capacity)}
}

// Push adds d, evicting the oldest sample when full.
func (w *PerformanceWindow) Push(d time.Duration) {
	if w.n == len(w.buf) {
		w.sum -= w.buf[w.next]
	} else {
		w.n++
	}
	w.buf[w.next] = d
	w.sum += d
	w.next = (w.next + 1) % len(w.buf)
}

// Average returns the mean of the retained samples.
func (w *PerformanceWindow) Average() time.Duration {
	if w.n == 0 {
		return 0
	}
	return w.sum / time.Duration(w.n)
}

// Len returns the number of retained samples.
func (w *PerformanceWindow) Len() int { return w.n }

// Cap returns the capacity.
func (w *PerformanceWindow) Cap() int { return len(w.buf) }

// Values returns retained samples, oldest first.
func (w *PerformanceWindow) Values() []time.Duration {
	out := make([]time.Duration, 0, w.n)
	start := (w.next - w.n + len(w.buf)) % len(w.buf)
	for i := 0; i < w.n; i++ {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}

// Reset drops every sample.
func (w *PerformanceWindow) Reset() {
	clear(w.buf)
	w.next, w.n, w.sum = 0, 0, 0
}
