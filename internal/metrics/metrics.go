// Package metrics provides Prometheus-compatible metrics for resonanced.
//
// Features:
//   - Counters for touches, emotions, resonances and errors
//   - Gauges for status, accuracy, throughput and memory
//   - Histograms for pipeline latency
//   - Labelled series sharing one metric family
//   - HTTP endpoint for scraping
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType represents the type of metric.
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

// String returns the Prometheus type name.
func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

// Labels represents metric labels.
type Labels map[string]string

// String renders labels in sorted Prometheus form, or "" when empty.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(l))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, escapeLabel(l[k])))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// with returns a copy of l plus one extra label.
func (l Labels) with(k, v string) Labels {
	out := make(Labels, len(l)+1)
	for lk, lv := range l {
		out[lk] = lv
	}
	out[k] = v
	return out
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return strings.ReplaceAll(v, "\n", `\n`)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	value atomic.Uint64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds v to the counter.
func (c *Counter) Add(v uint64) { c.value.Add(v) }

// Value returns the current value.
func (c *Counter) Value() uint64 { return c.value.Load() }

// Gauge is an integer value that can go up and down.
type Gauge struct {
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Add(v int64)  { g.value.Add(v) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// FloatGauge is a float64 gauge.
type FloatGauge struct {
	bits atomic.Uint64
}

func (g *FloatGauge) Set(v float64)  { g.bits.Store(math.Float64bits(v)) }
func (g *FloatGauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// Histogram tracks the distribution of values.
type Histogram struct {
	buckets []float64

	mu     sync.Mutex
	counts []uint64 // per bucket, last is +Inf
	sum    float64
	count  uint64
}

// LatencyBuckets are buckets for pipeline latency in seconds.
var LatencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

func newHistogram(buckets []float64) *Histogram {
	if buckets == nil {
		buckets = LatencyBuckets
	}
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	return &Histogram{buckets: sorted, counts: make([]uint64, len(sorted)+1)}
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	h.counts[sort.SearchFloat64s(h.buckets, v)]++
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Mean returns the mean of observed values.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// cumulative returns cumulative bucket counts, sum and count.
func (h *Histogram) cumulative() ([]uint64, float64, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uint64, len(h.counts))
	var running uint64
	for i, c := range h.counts {
		running += c
		out[i] = running
	}
	return out, h.sum, h.count
}

// Percentile estimates the p-th percentile (0-100) by linear
// interpolation inside the containing bucket.
func (h *Histogram) Percentile(p float64) float64 {
	cum, _, total := h.cumulative()
	if total == 0 {
		return 0
	}
	target := uint64(math.Ceil(float64(total) * p / 100))
	if target == 0 {
		target = 1
	}
	for i, c := range cum {
		if c < target {
			continue
		}
		if i == len(h.buckets) {
			return h.buckets[len(h.buckets)-1]
		}
		lower := 0.0
		var prev uint64
		if i > 0 {
			lower = h.buckets[i-1]
			prev = cum[i-1]
		}
		upper := h.buckets[i]
		return lower + (upper-lower)*float64(target-prev)/float64(c-prev)
	}
	return h.buckets[len(h.buckets)-1]
}

// series is one labelled instance of a metric family.
type series struct {
	labels Labels
	metric any
}

type family struct {
	name   string
	help   string
	typ    MetricType
	series map[string]*series
}

// Registry holds metric families.
type Registry struct {
	mu        sync.RWMutex
	families  map[string]*family
	namespace string
}

// NewRegistry creates a Registry whose metric names are prefixed with
// namespace.
func NewRegistry(namespace string) *Registry {
	return &Registry{families: make(map[string]*family), namespace: namespace}
}

func (r *Registry) fullName(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

// register returns the existing series or stores the one built by mk.
func (r *Registry) register(name, help string, typ MetricType, labels Labels, mk func() any) any {
	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.fullName(name)
	f, ok := r.families[full]
	if !ok {
		f = &family{name: full, help: help, typ: typ, series: make(map[string]*series)}
		r.families[full] = f
	}
	if f.typ != typ {
		panic(fmt.Sprintf("metrics: %s registered as %s and %s", full, f.typ, typ))
	}
	key := labels.String()
	if s, ok := f.series[key]; ok {
		return s.metric
	}
	m := mk()
	f.series[key] = &series{labels: labels, metric: m}
	return m
}

// Counter registers or returns a counter.
func (r *Registry) Counter(name, help string, labels Labels) *Counter {
	return r.register(name, help, TypeCounter, labels, func() any { return &Counter{} }).(*Counter)
}

// Gauge registers or returns an integer gauge.
func (r *Registry) Gauge(name, help string, labels Labels) *Gauge {
	return r.register(name, help, TypeGauge, labels, func() any { return &Gauge{} }).(*Gauge)
}

// FloatGauge registers or returns a float gauge. Integer and float
// gauges must not share a family name.
func (r *Registry) FloatGauge(name, help string, labels Labels) *FloatGauge {
	return r.register(name, help, TypeGauge, labels, func() any { return &FloatGauge{} }).(*FloatGauge)
}

// Histogram registers or returns a histogram.
func (r *Registry) Histogram(name, help string, labels Labels, buckets []float64) *Histogram {
	return r.register(name, help, TypeHistogram, labels, func() any { return newHistogram(buckets) }).(*Histogram)
}

func (r *Registry) sortedFamilies() []*family {
	out := make([]*family, 0, len(r.families))
	for _, f := range r.families {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (f *family) sortedSeries() []*series {
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*series, len(keys))
	for i, k := range keys {
		out[i] = f.series[k]
	}
	return out
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "NaN"
	}
	return fmt.Sprintf("%g", v)
}

// WritePrometheus writes all metrics in Prometheus text format, sorted by
// name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.sortedFamilies() {
		if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.typ); err != nil {
			return err
		}
		for _, s := range f.sortedSeries() {
			if err := writeSeries(w, f.name, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSeries(w io.Writer, name string, s *series) error {
	var err error
	switch m := s.metric.(type) {
	case *Counter:
		_, err = fmt.Fprintf(w, "%s%s %d\n", name, s.labels, m.Value())
	case *Gauge:
		_, err = fmt.Fprintf(w, "%s%s %d\n", name, s.labels, m.Value())
	case *FloatGauge:
		_, err = fmt.Fprintf(w, "%s%s %s\n", name, s.labels, formatFloat(m.Value()))
	case *Histogram:
		cum, sum, count := m.cumulative()
		for i, b := range m.buckets {
			if _, err = fmt.Fprintf(w, "%s_bucket%s %d\n", name, s.labels.with("le", formatFloat(b)), cum[i]); err != nil {
				return err
			}
		}
		if _, err = fmt.Fprintf(w, "%s_bucket%s %d\n", name, s.labels.with("le", "+Inf"), cum[len(cum)-1]); err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s_sum%s %s\n%s_count%s %d\n", name, s.labels, formatFloat(sum), name, s.labels, count)
	}
	return err
}

// Snapshot returns current values keyed by name plus labels.
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any)
	for _, f := range r.families {
		for _, s := range f.series {
			key := f.name + s.labels.String()
			switch m := s.metric.(type) {
			case *Counter:
				out[key] = m.Value()
			case *Gauge:
				out[key] = m.Value()
			case *FloatGauge:
				out[key] = m.Value()
			case *Histogram:
				out[key+"_count"] = m.Count()
				out[key+"_mean"] = m.Mean()
			}
		}
	}
	return out
}

// WriteJSON writes Snapshot as indented JSON.
func (r *Registry) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Snapshot())
}

// HTTPHandler serves Prometheus text, or JSON when the client asks.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			r.WriteJSON(w)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WritePrometheus(w)
	})
}
