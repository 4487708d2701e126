// Package health aggregates component checks for the readiness probe.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"resonance/internal/orchestrator"
	"resonance/internal/store"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check is a function that performs a health check.
type Check func(ctx context.Context) CheckResult

// Component represents a health-checkable component.
type Component struct {
	Name     string
	Critical bool // failure makes the overall status unhealthy
	Check    Check
	Timeout  time.Duration
}

// DefaultTimeout bounds a single check.
const DefaultTimeout = 2 * time.Second

// Checker runs registered checks and remembers their last results.
type Checker struct {
	now func() time.Time

	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	startTime  time.Time
}

// NewChecker creates a new Checker.
func NewChecker() *Checker {
	return &Checker{
		now:        time.Now,
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		startTime:  time.Now(),
	}
}

// Register adds or replaces a component.
func (c *Checker) Register(component Component) {
	if component.Timeout <= 0 {
		component.Timeout = DefaultTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[component.Name] = &component
	c.results[component.Name] = CheckResult{Status: StatusUnknown}
}

// Names returns the registered component names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes every check concurrently and returns the results by name.
func (c *Checker) Run(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(components))
	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, comp := range components {
		wg.Add(1)
		go func(comp *Component) {
			defer wg.Done()
			r := c.run(ctx, comp)
			rmu.Lock()
			results[comp.Name] = r
			rmu.Unlock()
		}(comp)
	}
	wg.Wait()

	c.mu.Lock()
	for name, r := range results {
		if _, ok := c.components[name]; ok {
			c.results[name] = r
		}
	}
	c.mu.Unlock()
	return results
}

func (c *Checker) run(ctx context.Context, comp *Component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := c.now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(r)}
			}
		}()
		done <- comp.Check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-done:
	case <-checkCtx.Done():
		result = CheckResult{Status: StatusUnhealthy, Message: "check timed out", Error: checkCtx.Err().Error()}
	}
	result.LastChecked = start
	result.Duration = c.now().Sub(start)
	return result
}

// OverallStatus folds the last results. A failing critical component is
// unhealthy; any other failure degrades.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hasUnknown := false
	hasDegraded := false
	for name, result := range c.results {
		comp := c.components[name]
		switch result.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if comp.Critical {
				hasUnknown = true
			}
		}
	}

	if hasUnknown {
		return StatusUnknown
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Report is the readiness response body.
type Report struct {
	Status     Status                 `json:"status"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Report runs every check and summarizes them.
func (c *Checker) Report(ctx context.Context) Report {
	components := c.Run(ctx)
	now := c.now()
	return Report{
		Status:     c.OverallStatus(),
		Uptime:     now.Sub(c.startTime).Truncate(time.Second).String(),
		Components: components,
		Timestamp:  now,
	}
}

// =============================================================================
// Checks
// =============================================================================

// PipelineCheck reports the pipeline status. Error is unhealthy;
// Disabled and Initializing are degraded.
func PipelineCheck(status func() orchestrator.Status) Check {
	return func(ctx context.Context) CheckResult {
		st := status()
		details := map[string]any{"status": st.String()}
		switch st {
		case orchestrator.StatusError:
			return CheckResult{Status: StatusUnhealthy, Message: "pipeline in error state", Details: details}
		case orchestrator.StatusReady, orchestrator.StatusProcessing:
			return CheckResult{Status: StatusHealthy, Message: "pipeline accepting samples", Details: details}
		default:
			return CheckResult{Status: StatusDegraded, Message: "pipeline not accepting samples", Details: details}
		}
	}
}

// ProbeKey is read by StoreCheck. It is never written.
const ProbeKey = "health/probe"

// StoreCheck reads a key that never exists; a not-found answer proves the
// backend is reachable.
func StoreCheck(blobs store.BlobStore) Check {
	return func(ctx context.Context) CheckResult {
		_, err := blobs.Get(ctx, ProbeKey)
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return CheckResult{Status: StatusHealthy, Message: "profile store reachable"}
		}
		return CheckResult{Status: StatusUnhealthy, Message: "profile store unavailable", Error: err.Error()}
	}
}

// MemoryCheck compares sampled memory usage against limitMB. Usage above
// 90% of the limit is degraded; above the limit is unhealthy.
func MemoryCheck(sample func() float64, limitMB float64) Check {
	return func(ctx context.Context) CheckResult {
		used := sample()
		details := map[string]any{"memory_mb": used, "limit_mb": limitMB}
		switch {
		case limitMB <= 0:
			return CheckResult{Status: StatusHealthy, Message: "no memory limit", Details: details}
		case used > limitMB:
			return CheckResult{Status: StatusUnhealthy, Message: "memory above limit", Details: details}
		case used > 0.9*limitMB:
			return CheckResult{Status: StatusDegraded, Message: "memory near limit", Details: details}
		default:
			return CheckResult{Status: StatusHealthy, Message: "memory within limit", Details: details}
		}
	}
}
