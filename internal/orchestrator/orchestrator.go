// Package orchestrator composes classification, resonance mapping and
// personalization into the per-sample touch pipeline, and maintains the
// lifecycle status, rolling statistics and typed event stream.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"resonance/internal/emotion"
	"resonance/internal/logging"
	"resonance/internal/metrics"
	"resonance/internal/personalization"
	"resonance/internal/resonance"
)

// accuracyAlpha weights the newest confidence in the accuracy EMA.
const accuracyAlpha = 0.1

// Mapper maps a state and pressure to a resonance action.
type Mapper interface {
	Map(state emotion.State, pressure float64) resonance.Action
}

// Recorder receives pipeline metrics.
type Recorder interface {
	RecordTouch()
	RecordRejected()
	ObserveLatency(d time.Duration)
	RecordEmotion(emotion string)
	RecordResonance(mode string)
	RecordError(severity, code string)
	SetStatus(code int)
	SetAccuracy(v float64)
	SetThroughput(v float64)
	SetMemory(mb float64)
	SetUptime(d time.Duration)
}

var _ Recorder = (*metrics.Pipeline)(nil)

type nopRecorder struct{}

func (nopRecorder) RecordTouch()                 {}
func (nopRecorder) RecordRejected()              {}
func (nopRecorder) ObserveLatency(time.Duration) {}
func (nopRecorder) RecordEmotion(string)         {}
func (nopRecorder) RecordResonance(string)       {}
func (nopRecorder) RecordError(string, string)   {}
func (nopRecorder) SetStatus(int)                {}
func (nopRecorder) SetAccuracy(float64)          {}
func (nopRecorder) SetThroughput(float64)        {}
func (nopRecorder) SetMemory(float64)            {}
func (nopRecorder) SetUptime(time.Duration)      {}

// Deps are the collaborators composed by the Orchestrator. Profile is
// required; the rest default to the heuristic classifier, the built-in
// rule table, no metrics, a discarding logger, the wall clock and
// metrics.MemoryUsageMB.
type Deps struct {
	Classifier    emotion.Classifier
	Mapper        Mapper
	Profile       *personalization.Store
	Recorder      Recorder
	Logger        *slog.Logger
	Clock         Clock
	MemorySampler func() float64
}

// Settings tune the pipeline.
type Settings struct {
	ConfidenceThreshold float64
	MaxLatency          time.Duration
	MaxMemoryMB         float64
	MetricsInterval     time.Duration
	WindowSize          int
	ApplicationID       string
	DeviceID            string
	Learning            bool
}

// DefaultSettings returns the settings used when no option overrides them.
func DefaultSettings() Settings {
	return Settings{
		ConfidenceThreshold: 0.7,
		MaxLatency:          100 * time.Millisecond,
		MaxMemoryMB:         512,
		MetricsInterval:     time.Second,
		WindowSize:          DefaultWindowSize,
		ApplicationID:       "resonanced",
		Learning:            true,
	}
}

// Option adjusts Settings.
type Option func(*Settings)

// WithConfidenceThreshold sets the confidence at which passive
// reinforcement runs.
func WithConfidenceThreshold(v float64) Option {
	return func(s *Settings) { s.ConfidenceThreshold = v }
}

// WithMaxLatency sets the latency above which LATENCY_EXCEEDED is raised.
func WithMaxLatency(d time.Duration) Option {
	return func(s *Settings) { s.MaxLatency = d }
}

// WithMaxMemoryMB sets the memory limit checked by the metrics loop.
func WithMaxMemoryMB(mb float64) Option {
	return func(s *Settings) { s.MaxMemoryMB = mb }
}

// WithMetricsInterval sets the metrics loop period.
func WithMetricsInterval(d time.Duration) Option {
	return func(s *Settings) { s.MetricsInterval = d }
}

// WithWindowSize sets the latency window capacity.
func WithWindowSize(n int) Option {
	return func(s *Settings) { s.WindowSize = n }
}

// WithContextIDs sets the application and device ids attached to results.
func WithContextIDs(application, device string) Option {
	return func(s *Settings) {
		s.ApplicationID = application
		s.DeviceID = device
	}
}

// WithLearning enables or disables passive reinforcement.
func WithLearning(enabled bool) Option {
	return func(s *Settings) { s.Learning = enabled }
}

// Result is the enriched outcome of one sample.
type Result struct {
	SessionID     string                            `json:"session_id"`
	ApplicationID string                            `json:"application_id,omitempty"`
	DeviceID      string                            `json:"device_id,omitempty"`
	State         emotion.State                     `json:"state"`
	Action        resonance.Action                  `json:"action"`
	Settings      personalization.ResonanceSettings `json:"settings"`
	Latency       time.Duration                     `json:"latency"`
	Timestamp     time.Time                         `json:"timestamp"`
}

// Orchestrator runs the touch pipeline for one profile.
type Orchestrator struct {
	classifier emotion.Classifier
	mapper     Mapper
	profile    *personalization.Store
	recorder   Recorder
	logger     *slog.Logger
	clock      Clock
	memory     func() float64
	settings   Settings
	emitter    *Emitter

	mu           sync.Mutex
	status       Status
	closed       bool
	initializing bool
	disabling    bool
	inflight     int
	drained      chan struct{}
	active       sync.WaitGroup

	startedAt    time.Time
	sessionID    string
	sessionStart time.Time
	touches      uint64
	emotions     uint64
	resonances   uint64
	accuracy     float64
	throughput   float64
	memoryMB     float64
	window       *PerformanceWindow
	modes        modeTable

	loopStop chan struct{}
	loopDone chan struct{}
}

// New builds an Orchestrator in the Initializing state.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Profile == nil {
		return nil, errors.New("orchestrator: profile store is required")
	}
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.MetricsInterval <= 0 {
		return nil, fmt.Errorf("orchestrator: metrics interval must be positive, got %s", settings.MetricsInterval)
	}

	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Classifier == nil {
		deps.Classifier = emotion.NewHeuristic(emotion.WithNow(deps.Clock.Now))
	}
	if deps.Mapper == nil {
		deps.Mapper = resonance.NewMapper()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.MemorySampler == nil {
		deps.MemorySampler = metrics.MemoryUsageMB
	}

	logger := deps.Logger.With("component", "orchestrator")
	return &Orchestrator{
		classifier: deps.Classifier,
		mapper:     deps.Mapper,
		profile:    deps.Profile,
		recorder:   deps.Recorder,
		logger:     logger,
		clock:      deps.Clock,
		memory:     deps.MemorySampler,
		settings:   settings,
		emitter:    NewEmitter(logger),
		status:     StatusInitializing,
		startedAt:  deps.Clock.Now(),
		window:     NewPerformanceWindow(settings.WindowSize),
	}, nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// Initialize loads the profile, resets the session and moves to Ready. It
// is valid from Initializing, Error and Disabled.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.initializing {
		o.mu.Unlock()
		return fmt.Errorf("%w: initialization already running", ErrInvalidTransition)
	}
	switch o.status {
	case StatusInitializing:
	case StatusError, StatusDisabled:
		o.setStatusLocked(StatusInitializing)
	default:
		s := o.status
		o.mu.Unlock()
		return fmt.Errorf("%w: initialize from %s", ErrInvalidTransition, s)
	}
	o.initializing = true
	o.mu.Unlock()

	o.stopLoop()

	if err := o.loadProfile(ctx); err != nil {
		o.mu.Lock()
		o.initializing = false
		o.setStatusLocked(StatusError)
		o.mu.Unlock()
		return err
	}
	o.profile.PruneExpired(o.clock.Now())

	o.mu.Lock()
	defer o.mu.Unlock()
	o.initializing = false

	now := o.clock.Now()
	o.sessionID = uuid.NewString()
	o.sessionStart = now
	o.touches, o.emotions, o.resonances = 0, 0, 0
	o.accuracy, o.throughput = 0, 0
	o.window.Reset()
	o.modes.reset()

	o.loopStop = make(chan struct{})
	o.loopDone = make(chan struct{})
	go o.metricsLoop(o.loopStop, o.loopDone)

	o.logger.Info("orchestrator initialized", "session", o.sessionID, "profile", o.profile.ID())
	o.setStatusLocked(StatusReady)
	return nil
}

// loadProfile reads the stored profile. Only cancellation fails
// initialization; other persistence errors are reported and the in-memory
// profile is used.
func (o *Orchestrator) loadProfile(ctx context.Context) error {
	err := o.profile.Load(ctx)
	switch {
	case err == nil, errors.Is(err, personalization.ErrNoBlobStore):
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, personalization.ErrProfileMismatch):
		o.report(NewError(CodePrivacyViolation, "stored profile belongs to another identity", err, nil))
	default:
		o.report(NewError(CodePersistenceFailure, "profile load failed", err, nil))
	}
	return nil
}

// Disable stops admission immediately, waits for admitted samples to
// finish, then moves to Disabled. If ctx ends first the transition still
// happens once the last admitted sample completes.
func (o *Orchestrator) Disable(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if !o.disabling {
		if !o.status.Accepting() {
			s := o.status
			o.mu.Unlock()
			return fmt.Errorf("%w: disable from %s", ErrInvalidTransition, s)
		}
		o.disabling = true
		if o.inflight == 0 {
			o.completeDisableLocked()
			o.mu.Unlock()
			o.stopLoop()
			return nil
		}
		o.drained = make(chan struct{})
		o.logger.Info("draining in-flight samples", "inflight", o.inflight)
	}
	done := o.drained
	o.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	o.stopLoop()
	return nil
}

func (o *Orchestrator) completeDisableLocked() {
	o.disabling = false
	if CanTransition(o.status, StatusDisabled) {
		o.setStatusLocked(StatusDisabled)
	}
	if o.drained != nil {
		close(o.drained)
		o.drained = nil
	}
	o.signalLoopLocked()
}

// Enable re-initializes a Disabled orchestrator.
func (o *Orchestrator) Enable(ctx context.Context) error {
	o.mu.Lock()
	s := o.status
	o.mu.Unlock()
	if s != StatusDisabled {
		return fmt.Errorf("%w: enable from %s", ErrInvalidTransition, s)
	}
	return o.Initialize(ctx)
}

// Close drains admitted samples, stops the metrics loop and waits for
// subscribers to receive every emitted event. Samples admitted before an
// error are waited for too, so their events are not lost.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	drain := o.status.Accepting() || o.disabling
	o.mu.Unlock()

	if drain {
		if err := o.Disable(context.Background()); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return err
		}
	}

	// No admissions after closed is set, so Wait cannot race an Add.
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.active.Wait()

	o.stopLoop()
	o.emitter.Close()
	return nil
}

// signalLoopLocked asks the metrics loop to exit without waiting for it.
func (o *Orchestrator) signalLoopLocked() {
	if o.loopStop != nil {
		close(o.loopStop)
		o.loopStop = nil
	}
}

func (o *Orchestrator) stopLoop() {
	o.mu.Lock()
	o.signalLoopLocked()
	done := o.loopDone
	o.loopDone = nil
	o.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (o *Orchestrator) setStatusLocked(to Status) {
	from := o.status
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		o.logger.Warn("ignored status transition", "from", from, "to", to)
		return
	}
	o.status = to
	o.recorder.SetStatus(int(to))
	o.logger.Debug("status changed", "from", from, "to", to)
	o.emitter.Emit(Event{
		Type:      EventStatus,
		Timestamp: o.clock.Now(),
		SessionID: o.sessionID,
		Data:      StatusChange{From: from, To: to},
	})
}

// =============================================================================
// Pipeline
// =============================================================================

// Process runs one sample through classification, mapping and
// personalization. Events for the sample are emitted in stage order.
func (o *Orchestrator) Process(ctx context.Context, sample emotion.TouchSample) (Result, error) {
	if err := sample.Validate(); err != nil {
		o.recorder.RecordRejected()
		e := NewError(CodeInvalidSample, "touch sample rejected", err, nil)
		o.report(e)
		return Result{}, e
	}

	admitted, sessionID, err := o.admit()
	if err != nil {
		o.recorder.RecordRejected()
		return Result{}, err
	}
	defer o.finish()

	if sample.Timestamp.IsZero() {
		sample.Timestamp = admitted
	}
	o.emit(EventTouch, sessionID, sample)

	state, err := o.classify(ctx, sample)
	if err != nil {
		return Result{}, err
	}
	latency := o.clock.Now().Sub(admitted)
	perf := o.recordClassification(latency, state)
	o.emit(EventPerformance, sessionID, perf)
	o.checkLatency(latency, perf.AverageLatency)
	o.emit(EventEmotion, sessionID, state)

	c := personalization.Characteristics{
		Emotion:   state.Primary,
		Intensity: state.Intensity,
		Pressure:  sample.Pressure,
		Thermal:   sample.Thermal(),
	}
	if sample.Biosignal != nil {
		c.Pulse = sample.Biosignal.Pulse
	}

	action, err := o.mapAction(state, sample.Pressure)
	if err != nil {
		return Result{}, err
	}

	// Settings reflect the profile as it stood before this sample.
	res := Result{
		SessionID:     sessionID,
		ApplicationID: o.settings.ApplicationID,
		DeviceID:      o.settings.DeviceID,
		State:         state,
		Action:        action,
		Settings:      o.personalize(c),
		Latency:       latency,
		Timestamp:     o.clock.Now(),
	}
	if o.settings.Learning && state.Confidence >= o.settings.ConfidenceThreshold {
		o.reinforce(state, c)
	}

	o.mu.Lock()
	o.resonances++
	o.modes.record(action.Mode)
	o.mu.Unlock()
	o.recorder.RecordResonance(string(action.Mode))

	o.emit(EventResonance, sessionID, res)
	return res, nil
}

func (o *Orchestrator) admit() (time.Time, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return time.Time{}, "", ErrClosed
	}
	if !o.status.Accepting() || o.disabling {
		return time.Time{}, "", fmt.Errorf("%w: status %s", ErrNotAccepting, o.status)
	}
	o.inflight++
	o.active.Add(1)
	if o.status == StatusReady {
		o.setStatusLocked(StatusProcessing)
	}
	o.touches++
	o.recorder.RecordTouch()
	return o.clock.Now(), o.sessionID, nil
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.active.Done()

	o.inflight--
	if o.inflight > 0 {
		return
	}
	if o.disabling {
		o.completeDisableLocked()
		return
	}
	if o.status == StatusProcessing {
		o.setStatusLocked(StatusReady)
	}
}

func (o *Orchestrator) classify(ctx context.Context, sample emotion.TouchSample) (state emotion.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			e := NewError(CodeDecoderFailure, "classifier panicked", fmt.Errorf("panic: %v", r), nil)
			o.report(e)
			state, err = emotion.State{}, e
		}
	}()

	state, err = o.classifier.Classify(ctx, sample)
	if err != nil {
		if ctx.Err() != nil {
			return emotion.State{}, err
		}
		e := NewError(CodeDecoderFailure, "classification failed", err, nil)
		o.report(e)
		return emotion.State{}, e
	}
	if !state.Primary.Valid() {
		e := NewError(CodeDecoderFailure, "classifier returned an unknown emotion",
			nil, map[string]any{"primary": string(state.Primary)})
		o.report(e)
		return emotion.State{}, e
	}
	state.Intensity = emotion.Clamp01(state.Intensity)
	state.Confidence = emotion.Clamp01(state.Confidence)
	if state.Timestamp.IsZero() {
		state.Timestamp = o.clock.Now()
	}
	return state, nil
}

func (o *Orchestrator) mapAction(state emotion.State, pressure float64) (action resonance.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			e := NewError(CodeMapperFailure, "resonance mapper panicked", fmt.Errorf("panic: %v", r), nil)
			o.report(e)
			action, err = resonance.Action{}, e
		}
	}()
	return o.mapper.Map(state, pressure), nil
}

// personalize falls back to zero settings if the store fails.
func (o *Orchestrator) personalize(c personalization.Characteristics) (settings personalization.ResonanceSettings) {
	defer func() {
		if r := recover(); r != nil {
			o.report(NewError(CodePersonalizationFailure, "personalization panicked", fmt.Errorf("panic: %v", r), nil))
			settings = personalization.ResonanceSettings{}
		}
	}()
	return o.profile.Personalize(c)
}

// reinforce strengthens the best matching pattern. Patterns are only ever
// created through AddPattern or a profile import, never from a sample.
func (o *Orchestrator) reinforce(state emotion.State, c personalization.Characteristics) {
	if !o.profile.Observe(c) {
		o.logger.Debug("no pattern to reinforce",
			"emotion", string(state.Primary), "confidence", state.Confidence)
		return
	}
	o.profile.RecordLearningAdjustment("reinforce", state.Confidence)
}

func (o *Orchestrator) recordClassification(latency time.Duration, state emotion.State) Performance {
	o.mu.Lock()
	o.window.Push(latency)
	avg := o.window.Average()
	if elapsed := o.clock.Now().Sub(o.sessionStart).Seconds(); elapsed > 0 {
		o.throughput = float64(o.touches) / elapsed
	}
	o.emotions++
	o.accuracy = (1-accuracyAlpha)*o.accuracy + accuracyAlpha*state.Confidence
	accuracy, throughput := o.accuracy, o.throughput
	o.mu.Unlock()

	o.recorder.ObserveLatency(latency)
	o.recorder.RecordEmotion(string(state.Primary))
	o.recorder.SetAccuracy(accuracy)
	o.recorder.SetThroughput(throughput)
	o.profile.UpdateAccuracy(accuracy)

	return Performance{Latency: latency, AverageLatency: avg, Throughput: throughput}
}

func (o *Orchestrator) checkLatency(latency, average time.Duration) {
	limit := o.settings.MaxLatency
	if limit <= 0 {
		return
	}
	if latency > limit {
		o.report(NewError(CodeLatencyExceeded, "classification latency above limit", nil,
			map[string]any{"latency_ms": latency.Milliseconds(), "limit_ms": limit.Milliseconds()}))
	}
	if average > limit {
		o.report(NewError(CodePerformanceDegraded, "average latency above limit", nil,
			map[string]any{"average_ms": average.Milliseconds(), "limit_ms": limit.Milliseconds()}))
	}
}

// =============================================================================
// Metrics loop
// =============================================================================

func (o *Orchestrator) metricsLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := o.clock.NewTicker(o.settings.MetricsInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C():
			o.sampleRuntime()
		}
	}
}

func (o *Orchestrator) sampleRuntime() {
	mem := o.memory()

	o.mu.Lock()
	o.memoryMB = mem
	perf := Performance{
		AverageLatency: o.window.Average(),
		Throughput:     o.throughput,
		MemoryMB:       mem,
		Uptime:         o.clock.Now().Sub(o.startedAt),
	}
	sessionID := o.sessionID
	o.mu.Unlock()

	o.recorder.SetMemory(mem)
	o.recorder.SetUptime(perf.Uptime)
	o.emit(EventPerformance, sessionID, perf)

	if limit := o.settings.MaxMemoryMB; limit > 0 && mem > limit {
		o.report(NewError(CodeMemoryExceeded, "memory usage above limit", nil,
			map[string]any{"memory_mb": mem, "limit_mb": limit}))
	}
}

// =============================================================================
// Errors and events
// =============================================================================

// ReportError normalizes a collaborator failure, emits it and escalates
// critical errors to the Error status.
func (o *Orchestrator) ReportError(err error) {
	if err == nil {
		return
	}
	o.report(Normalize(err))
}

func (o *Orchestrator) report(e *Error) {
	o.recorder.RecordError(string(e.Severity), e.Code)

	level := slog.LevelInfo
	switch e.Severity {
	case SeverityCritical:
		level = slog.LevelError
	case SeverityHigh, SeverityMedium:
		level = slog.LevelWarn
	}
	o.logger.Log(context.Background(), level, "pipeline error",
		"code", e.Code, "severity", e.Severity, "category", e.Category, "error", e.Error())

	o.mu.Lock()
	defer o.mu.Unlock()
	o.emitter.Emit(Event{Type: EventError, Timestamp: o.clock.Now(), SessionID: o.sessionID, Data: e})
	if e.Critical() {
		o.setStatusLocked(StatusError)
	}
}

func (o *Orchestrator) emit(t EventType, sessionID string, data any) {
	o.emitter.Emit(Event{Type: t, Timestamp: o.clock.Now(), SessionID: sessionID, Data: data})
}

// Subscribe registers h for the given event types, or all types when none
// are given. Each subscriber receives events in emission order on its own
// goroutine.
func (o *Orchestrator) Subscribe(h Handler, types ...EventType) (unsubscribe func()) {
	return o.emitter.Subscribe(h, types...)
}

// =============================================================================
// Queries
// =============================================================================

// Status returns the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Profile returns the personalization store.
func (o *Orchestrator) Profile() *personalization.Store {
	return o.profile
}

// Statistics returns a snapshot of usage and performance.
func (o *Orchestrator) Statistics() Statistics {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	st := Statistics{
		SessionID:      o.sessionID,
		Status:         o.status,
		Touches:        o.touches,
		Emotions:       o.emotions,
		Resonances:     o.resonances,
		Accuracy:       o.accuracy,
		ModeUsage:      o.modes.snapshot(),
		Uptime:         now.Sub(o.startedAt),
		AverageLatency: o.window.Average(),
		Throughput:     o.throughput,
		MemoryMB:       o.memoryMB,
	}
	if !o.sessionStart.IsZero() {
		st.SessionDuration = now.Sub(o.sessionStart)
	}
	return st
}

// LatencyWindow returns the retained latency samples, oldest first.
func (o *Orchestrator) LatencyWindow() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.window.Values()
}
