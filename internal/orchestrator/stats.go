package orchestrator

import (
	"sort"
	"time"

	"resonance/internal/resonance"
)

// ModeUsage is one row of the mode-usage table.
type ModeUsage struct {
	Mode       resonance.Mode `json:"mode"`
	Count      uint64         `json:"count"`
	Percentage float64        `json:"percentage"`
}

// modeTable keeps usage rows sorted by count, descending. Rows with equal
// counts keep their previous relative order.
type modeTable struct {
	rows  []ModeUsage
	total uint64
}

func (t *modeTable) record(mode resonance.Mode) {
	t.total++
	found := false
	for i := range t.rows {
		if t.rows[i].Mode == mode {
			t.rows[i].Count++
			found = true
			break
		}
	}
	if !found {
		t.rows = append(t.rows, ModeUsage{Mode: mode, Count: 1})
	}
	for i := range t.rows {
		t.rows[i].Percentage = float64(t.rows[i].Count) / float64(t.total) * 100
	}
	sort.SliceStable(t.rows, func(i, j int) bool {
		return t.rows[i].Count > t.rows[j].Count
	})
}

func (t *modeTable) snapshot() []ModeUsage {
	out := make([]ModeUsage, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *modeTable) reset() {
	t.rows = nil
	t.total = 0
}

// Statistics is a point-in-time view of usage and performance.
type Statistics struct {
	SessionID       string        `json:"session_id"`
	Status          Status        `json:"status"`
	Touches         uint64        `json:"touches"`
	Emotions        uint64        `json:"emotions"`
	Resonances      uint64        `json:"resonances"`
	Accuracy        float64       `json:"accuracy"`
	ModeUsage       []ModeUsage   `json:"mode_usage"`
	SessionDuration time.Duration `json:"session_duration"`
	Uptime          time.Duration `json:"uptime"`
	AverageLatency  time.Duration `json:"average_latency"`
	Throughput      float64       `json:"throughput"`
	MemoryMB        float64       `json:"memory_mb"`
}

// Performance is the payload of performance_update events.
type Performance struct {
	Latency        time.Duration `json:"latency,omitempty"`
	AverageLatency time.Duration `json:"average_latency"`
	Throughput     float64       `json:"throughput"`
	MemoryMB       float64       `json:"memory_mb,omitempty"`
	Uptime         time.Duration `json:"uptime,omitempty"`
}
