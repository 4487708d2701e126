package metrics

import (
	"time"
)

// Pipeline holds the metrics reported by the touch pipeline. Labelled
// series are created on first use.
type Pipeline struct {
	reg *Registry

	Touches    *Counter
	Rejected   *Counter
	Latency    *Histogram
	Accuracy   *FloatGauge
	Throughput *FloatGauge
	Status     *Gauge
	MemoryMB   *FloatGauge
	Uptime     *FloatGauge
}

// NewPipeline registers pipeline metrics in reg.
func NewPipeline(reg *Registry) *Pipeline {
	return &Pipeline{
		reg:        reg,
		Touches:    reg.Counter("touches_total", "Touch samples admitted", nil),
		Rejected:   reg.Counter("touches_rejected_total", "Touch samples rejected before classification", nil),
		Latency:    reg.Histogram("classification_latency_seconds", "Latency from admission to classification result", nil, LatencyBuckets),
		Accuracy:   reg.FloatGauge("accuracy", "Exponential moving average of classification confidence", nil),
		Throughput: reg.FloatGauge("throughput_touches_per_second", "Touches per second over the current session", nil),
		Status:     reg.Gauge("status", "Current orchestrator status code", nil),
		MemoryMB:   reg.FloatGauge("memory_usage_megabytes", "Process memory usage", nil),
		Uptime:     reg.FloatGauge("uptime_seconds", "Seconds since initialization", nil),
	}
}

// Registry returns the underlying registry.
func (p *Pipeline) Registry() *Registry { return p.reg }

// RecordTouch counts an admitted sample.
func (p *Pipeline) RecordTouch() { p.Touches.Inc() }

// RecordRejected counts a sample refused before classification.
func (p *Pipeline) RecordRejected() { p.Rejected.Inc() }

// ObserveLatency records one classification latency.
func (p *Pipeline) ObserveLatency(d time.Duration) { p.Latency.ObserveDuration(d) }

// RecordEmotion counts a classified primary emotion.
func (p *Pipeline) RecordEmotion(emotion string) {
	p.reg.Counter("emotions_total", "Classified emotional states by primary emotion", Labels{"emotion": emotion}).Inc()
}

// RecordResonance counts a resonance action by mode.
func (p *Pipeline) RecordResonance(mode string) {
	p.reg.Counter("resonances_total", "Resonance actions by mode", Labels{"mode": mode}).Inc()
}

// RecordError counts a normalized error by severity and code.
func (p *Pipeline) RecordError(severity, code string) {
	p.reg.Counter("errors_total", "Normalized pipeline errors", Labels{"severity": severity, "code": code}).Inc()
}

// SetStatus records the numeric status.
func (p *Pipeline) SetStatus(code int) { p.Status.Set(int64(code)) }

// SetAccuracy records the accuracy EMA.
func (p *Pipeline) SetAccuracy(v float64) { p.Accuracy.Set(v) }

// SetThroughput records touches per second.
func (p *Pipeline) SetThroughput(v float64) { p.Throughput.Set(v) }

// SetMemory records memory usage in megabytes.
func (p *Pipeline) SetMemory(mb float64) { p.MemoryMB.Set(mb) }

// SetUptime records uptime.
func (p *Pipeline) SetUptime(d time.Duration) { p.Uptime.Set(d.Seconds()) }
