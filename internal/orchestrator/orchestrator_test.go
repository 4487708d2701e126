package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"resonance/internal/emotion"
	"resonance/internal/metrics"
	"resonance/internal/personalization"
	"resonance/internal/resonance"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Test helpers
// =============================================================================

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) activeTickers() []*fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTicker
	for _, t := range c.tickers {
		if !t.isStopped() {
			out = append(out, t)
		}
	}
	return out
}

// Tick fires every running ticker.
func (c *fakeClock) Tick() {
	now := c.Now()
	for _, t := range c.activeTickers() {
		select {
		case t.ch <- now:
		default:
		}
	}
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) types() []EventType {
	var out []EventType
	for _, ev := range c.all() {
		out = append(out, ev.Type)
	}
	return out
}

func (c *collector) errorCodes() []string {
	var out []string
	for _, ev := range c.all() {
		if e, ok := ev.Data.(*Error); ok {
			out = append(out, e.Code)
		}
	}
	return out
}

func fixedClassifier(e emotion.Emotion, intensity, confidence float64) emotion.Classifier {
	return emotion.ClassifierFunc(func(ctx context.Context, s emotion.TouchSample) (emotion.State, error) {
		return emotion.State{Primary: e, Intensity: intensity, Confidence: confidence}, nil
	})
}

type panicMapper struct{}

func (panicMapper) Map(emotion.State, float64) resonance.Action { panic("rule table corrupted") }

func newTestOrchestrator(t *testing.T, deps Deps, opts ...Option) (*Orchestrator, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	deps.Clock = clock
	if deps.Profile == nil {
		deps.Profile = personalization.New("user-1", personalization.WithClock(clock.Now))
	}
	if deps.MemorySampler == nil {
		deps.MemorySampler = func() float64 { return 1 }
	}
	o, err := New(deps, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return o, clock
}

func initialized(t *testing.T, deps Deps, opts ...Option) (*Orchestrator, *fakeClock) {
	t.Helper()
	o, clock := newTestOrchestrator(t, deps, opts...)
	require.NoError(t, o.Initialize(context.Background()))
	return o, clock
}

// =============================================================================
// Tests for lifecycle
// =============================================================================

func TestNewRequiresProfile(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestInitializeMovesToReady(t *testing.T) {
	o, _ := newTestOrchestrator(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.5)})
	assert.Equal(t, StatusInitializing, o.Status())

	_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.5})
	require.ErrorIs(t, err, ErrNotAccepting)

	require.NoError(t, o.Initialize(context.Background()))
	assert.Equal(t, StatusReady, o.Status())
	assert.NotEmpty(t, o.Statistics().SessionID)

	err = o.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEnableRequiresDisabled(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.5)})
	assert.ErrorIs(t, o.Enable(context.Background()), ErrInvalidTransition)

	require.NoError(t, o.Disable(context.Background()))
	assert.Equal(t, StatusDisabled, o.Status())
	assert.ErrorIs(t, o.Disable(context.Background()), ErrInvalidTransition)

	first := o.Statistics().SessionID
	require.NoError(t, o.Enable(context.Background()))
	assert.Equal(t, StatusReady, o.Status())
	assert.NotEqual(t, first, o.Statistics().SessionID)
}

func TestClosedRejectsEverything(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.5)})
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())

	_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.5})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, o.Initialize(context.Background()), ErrClosed)
}

// =============================================================================
// Tests for the pipeline
// =============================================================================

func TestProcessLoveLightPressure(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Love, 0.2, 0.9)},
		WithContextIDs("studio", "pad-7"))

	res, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.15, Duration: 400 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, resonance.Creation, res.Action.Mode)
	assert.Equal(t, resonance.FormGrowing, res.Action.Form)
	assert.Equal(t, "studio", res.ApplicationID)
	assert.Equal(t, "pad-7", res.DeviceID)
	assert.Equal(t, o.Statistics().SessionID, res.SessionID)

	st := o.Statistics()
	assert.Equal(t, uint64(1), st.Touches)
	assert.Equal(t, uint64(1), st.Emotions)
	assert.Equal(t, uint64(1), st.Resonances)
	assert.InDelta(t, 0.09, st.Accuracy, 1e-9)
	assert.Equal(t, StatusReady, st.Status)
}

func TestProcessAngerHeavyPressure(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Anger, 0.75, 0.8)})

	res, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.8})
	require.NoError(t, err)
	assert.Equal(t, resonance.Destruction, res.Action.Mode)
	assert.Equal(t, resonance.FormGeometric, res.Action.Form)
}

func TestEventOrderPerSample(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.9)})
	var c collector
	o.Subscribe(c.handle)

	_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
	require.NoError(t, err)
	require.NoError(t, o.Close())

	assert.Equal(t, []EventType{
		EventStatus, // ready -> processing
		EventTouch,
		EventPerformance,
		EventEmotion,
		EventResonance,
		EventStatus, // processing -> ready
		EventStatus, // ready -> disabled
	}, c.types())

	events := c.all()
	assert.Equal(t, StatusChange{From: StatusReady, To: StatusProcessing}, events[0].Data)
	assert.IsType(t, emotion.TouchSample{}, events[1].Data)
	assert.IsType(t, Result{}, events[4].Data)
	assert.Equal(t, StatusChange{From: StatusReady, To: StatusDisabled}, events[6].Data)
}

func TestSubscribeFiltersTypes(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.9)})
	var c collector
	o.Subscribe(c.handle, EventResonance)

	for i := 0; i < 3; i++ {
		_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
		require.NoError(t, err)
	}
	require.NoError(t, o.Close())
	assert.Equal(t, []EventType{EventResonance, EventResonance, EventResonance}, c.types())
}

func TestInvalidSampleRejected(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.9)})
	var c collector
	o.Subscribe(c.handle, EventError)

	_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 1.5})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeInvalidSample, e.Code)
	assert.Equal(t, SeverityLow, e.Severity)
	assert.ErrorIs(t, err, emotion.ErrPressureRange)

	assert.Equal(t, uint64(0), o.Statistics().Touches)
	assert.Equal(t, StatusReady, o.Status())

	require.NoError(t, o.Close())
	assert.Equal(t, []string{CodeInvalidSample}, c.errorCodes())
}

func TestAccuracyEMA(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Peace, 0.3, 1.0)}, WithLearning(false))

	for _, want := range []float64{0.1, 0.19, 0.271} {
		_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.05})
		require.NoError(t, err)
		assert.InDelta(t, want, o.Statistics().Accuracy, 1e-9)
	}
	assert.InDelta(t, 0.271, o.Profile().Stats().Accuracy, 1e-9)
}

func TestLatencyWindowSlides(t *testing.T) {
	var clock *fakeClock
	step := 0
	classifier := emotion.ClassifierFunc(func(ctx context.Context, s emotion.TouchSample) (emotion.State, error) {
		step++
		clock.Advance(time.Duration(step) * time.Millisecond)
		return emotion.State{Primary: emotion.Joy, Intensity: 0.5, Confidence: 0.5}, nil
	})
	o, c := initialized(t, Deps{Classifier: classifier}, WithMaxLatency(0))
	clock = c

	for i := 0; i < 150; i++ {
		_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
		require.NoError(t, err)
	}

	window := o.LatencyWindow()
	require.Len(t, window, DefaultWindowSize)
	assert.Equal(t, 51*time.Millisecond, window[0])
	assert.Equal(t, 150*time.Millisecond, window[99])
	assert.Equal(t, 100500*time.Microsecond, o.Statistics().AverageLatency)
}

func TestLatencyExceededIsNotCritical(t *testing.T) {
	var clock *fakeClock
	classifier := emotion.ClassifierFunc(func(ctx context.Context, s emotion.TouchSample) (emotion.State, error) {
		clock.Advance(250 * time.Millisecond)
		return emotion.State{Primary: emotion.Joy, Intensity: 0.5, Confidence: 0.5}, nil
	})
	o, c := initialized(t, Deps{Classifier: classifier}, WithMaxLatency(100*time.Millisecond))
	clock = c
	var events collector
	o.Subscribe(events.handle, EventError)

	_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
	require.NoError(t, err)
	assert.Equal(t, StatusReady, o.Status())

	require.NoError(t, o.Close())
	assert.Equal(t, []string{CodeLatencyExceeded, CodePerformanceDegraded}, events.errorCodes())
}

func TestModeUsagePercentages(t *testing.T) {
	emotions := emotion.All()
	i := 0
	classifier := emotion.ClassifierFunc(func(ctx context.Context, s emotion.TouchSample) (emotion.State, error) {
		e := emotions[i%len(emotions)]
		i++
		return emotion.State{Primary: e, Intensity: 0.6, Confidence: 0.6}, nil
	})
	o, _ := initialized(t, Deps{Classifier: classifier})

	for n := 0; n < 37; n++ {
		_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: float64(n%10) / 10})
		require.NoError(t, err)
	}

	usage := o.Statistics().ModeUsage
	require.NotEmpty(t, usage)
	var sum float64
	var count uint64
	for k, u := range usage {
		sum += u.Percentage
		count += u.Count
		if k > 0 {
			assert.GreaterOrEqual(t, usage[k-1].Count, u.Count)
		}
	}
	assert.InDelta(t, 100, sum, 0.01)
	assert.Equal(t, uint64(37), count)
}

func TestModeTableStableOnTies(t *testing.T) {
	var m modeTable
	m.record(resonance.Blessing)
	m.record(resonance.Creation)
	rows := m.snapshot()
	assert.Equal(t, resonance.Blessing, rows[0].Mode)
	assert.Equal(t, 50.0, rows[0].Percentage)

	m.record(resonance.Creation)
	m.record(resonance.Creation)
	rows = m.snapshot()
	assert.Equal(t, resonance.Creation, rows[0].Mode)
	assert.Equal(t, 75.0, rows[0].Percentage)
	assert.Equal(t, 25.0, rows[1].Percentage)
}

func lovePattern(confidence float64) personalization.Pattern {
	return personalization.Pattern{
		Primary:             emotion.Love,
		IntensityRange:      personalization.Range{Lo: 0.3, Hi: 0.5},
		PressureSensitivity: 0.2,
		ThermalSignature:    0.5,
		Frequency:           1,
		Confidence:          confidence,
	}
}

func TestPassiveReinforcement(t *testing.T) {
	profile := personalization.New("user-1")
	profile.AddPattern(lovePattern(0.45))
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Love, 0.4, 0.9), Profile: profile})

	_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.2})
	require.NoError(t, err)
	patterns := o.Profile().Profile().Patterns
	require.Len(t, patterns, 1)
	assert.Equal(t, 2, patterns[0].Frequency)
	assert.InDelta(t, 0.505, patterns[0].Confidence, 1e-9)
	assert.Equal(t, 1, o.Profile().Stats().Adjustments)
}

func TestUnmatchedSampleUsesBasePreferences(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Love, 0.4, 0.9)})
	base := o.Profile().Profile().Preferences

	res, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.2})
	require.NoError(t, err)
	assert.Equal(t, base, res.Settings)
	assert.Empty(t, o.Profile().Profile().Patterns)
	assert.Zero(t, o.Profile().Stats().Adjustments)

	// A second identical sample still has nothing to match.
	res, err = o.Process(context.Background(), emotion.TouchSample{Pressure: 0.2})
	require.NoError(t, err)
	assert.Equal(t, base, res.Settings)
}

func TestSettingsPrecedeReinforcement(t *testing.T) {
	profile := personalization.New("user-1")
	profile.AddPattern(lovePattern(0.45))
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Love, 0.4, 0.9), Profile: profile})
	before := o.Profile().Personalize(personalization.Characteristics{
		Emotion: emotion.Love, Intensity: 0.4, Pressure: 0.2, Thermal: 0.5,
	})

	res, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.2})
	require.NoError(t, err)
	assert.Equal(t, before, res.Settings)
}

func TestConcurrentUnmatchedSamplesAddNoPatterns(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Love, 0.4, 0.9)})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.2})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, o.Profile().Profile().Patterns)
}

func TestLowConfidenceSkipsReinforcement(t *testing.T) {
	profile := personalization.New("user-1")
	profile.AddPattern(lovePattern(0.45))
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Love, 0.4, 0.5), Profile: profile},
		WithConfidenceThreshold(0.7))

	_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.2})
	require.NoError(t, err)
	patterns := o.Profile().Profile().Patterns
	require.Len(t, patterns, 1)
	assert.Equal(t, 1, patterns[0].Frequency)
	assert.InDelta(t, 0.45, patterns[0].Confidence, 1e-9)
}

func TestPersonalizedSettingsAttached(t *testing.T) {
	profile := personalization.New("user-1")
	profile.AddPattern(personalization.Pattern{
		Primary:             emotion.Joy,
		IntensityRange:      personalization.Range{Lo: 0.3, Hi: 0.7},
		PressureSensitivity: 0.4,
		ThermalSignature:    0.5,
		Confidence:          0.95,
	})
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.6), Profile: profile})

	res, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.45})
	require.NoError(t, err)
	assert.Equal(t, personalization.SpeedFast, res.Settings.ResponseSpeed)
	assert.InDelta(t, 0.4, res.Settings.Sensitivity.Pressure, 1e-9)
}

func TestConcurrentProcess(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Excitement, 0.7, 0.6)})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: float64((g+i)%10) / 10})
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	st := o.Statistics()
	assert.Equal(t, uint64(400), st.Touches)
	assert.Equal(t, uint64(400), st.Resonances)
	assert.Equal(t, StatusReady, st.Status)
	var total uint64
	for _, u := range st.ModeUsage {
		total += u.Count
	}
	assert.Equal(t, uint64(400), total)
}

func TestRecorderReceivesMetrics(t *testing.T) {
	p := metrics.NewPipeline(metrics.NewRegistry("resonanced"))
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.5), Recorder: p})

	_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
	require.NoError(t, err)
	_, err = o.Process(context.Background(), emotion.TouchSample{Pressure: -1})
	require.Error(t, err)

	assert.Equal(t, uint64(1), p.Touches.Value())
	assert.Equal(t, uint64(1), p.Rejected.Value())
	assert.Equal(t, uint64(1), p.Latency.Count())
	assert.Equal(t, int64(StatusReady), p.Status.Value())
	assert.InDelta(t, 0.05, p.Accuracy.Value(), 1e-9)
}

// =============================================================================
// Tests for disable and errors
// =============================================================================

func TestDisableMidFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	classifier := emotion.ClassifierFunc(func(ctx context.Context, s emotion.TouchSample) (emotion.State, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return emotion.State{Primary: emotion.Joy, Intensity: 0.5, Confidence: 0.5}, nil
	})
	o, _ := initialized(t, Deps{Classifier: classifier})
	var c collector
	o.Subscribe(c.handle)

	type outcome struct {
		res Result
		err error
	}
	processed := make(chan outcome, 1)
	go func() {
		res, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
		processed <- outcome{res, err}
	}()
	<-started

	disabled := make(chan error, 1)
	go func() { disabled <- o.Disable(context.Background()) }()

	require.Eventually(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.disabling
	}, time.Second, time.Millisecond)

	_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
	require.ErrorIs(t, err, ErrNotAccepting)
	assert.Equal(t, StatusProcessing, o.Status())

	close(release)
	out := <-processed
	require.NoError(t, out.err)
	assert.Equal(t, resonance.Creation, out.res.Action.Mode)
	require.NoError(t, <-disabled)
	assert.Equal(t, StatusDisabled, o.Status())

	require.NoError(t, o.Close())

	resonanceAt, disabledAt := -1, -1
	for i, ev := range c.all() {
		switch ev.Type {
		case EventResonance:
			resonanceAt = i
		case EventStatus:
			if ev.Data.(StatusChange).To == StatusDisabled {
				disabledAt = i
			}
		}
	}
	require.NotEqual(t, -1, resonanceAt)
	require.NotEqual(t, -1, disabledAt)
	assert.Less(t, resonanceAt, disabledAt)
	assert.Equal(t, uint64(1), o.Statistics().Resonances)
}

func TestDisableHonoursContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	classifier := emotion.ClassifierFunc(func(ctx context.Context, s emotion.TouchSample) (emotion.State, error) {
		close(started)
		<-release
		return emotion.State{Primary: emotion.Joy, Intensity: 0.5, Confidence: 0.5}, nil
	})
	o, clock := initialized(t, Deps{Classifier: classifier})
	require.Eventually(t, func() bool { return len(clock.activeTickers()) == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, o.Disable(ctx), context.Canceled)

	close(release)
	<-done
	assert.Equal(t, StatusDisabled, o.Status())

	// The metrics loop exits with the transition, not at Close.
	require.Eventually(t, func() bool { return len(clock.activeTickers()) == 0 }, time.Second, time.Millisecond)
}

func TestCloseWaitsForInflightAfterError(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	classifier := emotion.ClassifierFunc(func(ctx context.Context, s emotion.TouchSample) (emotion.State, error) {
		close(started)
		<-release
		return emotion.State{Primary: emotion.Joy, Intensity: 0.5, Confidence: 0.5}, nil
	})
	o, _ := initialized(t, Deps{Classifier: classifier})
	var c collector
	o.Subscribe(c.handle, EventResonance)

	processed := make(chan error, 1)
	go func() {
		_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
		processed <- err
	}()
	<-started

	o.ReportError(NewError(CodeHardwareUnsupported, "no pressure axis", nil, nil))
	require.Equal(t, StatusError, o.Status())

	closed := make(chan error, 1)
	go func() { closed <- o.Close() }()
	select {
	case <-closed:
		t.Fatal("Close returned while a sample was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-processed)
	require.NoError(t, <-closed)
	assert.Equal(t, []EventType{EventResonance}, c.types())
}

func TestMapperPanicIsCritical(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.5), Mapper: panicMapper{}})
	var c collector
	o.Subscribe(c.handle, EventError)

	_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeMapperFailure, e.Code)
	assert.Equal(t, SeverityCritical, e.Severity)
	assert.Equal(t, StatusError, o.Status())

	_, err = o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
	assert.ErrorIs(t, err, ErrNotAccepting)

	require.NoError(t, o.Initialize(context.Background()))
	assert.Equal(t, StatusReady, o.Status())

	require.NoError(t, o.Close())
	assert.Equal(t, []string{CodeMapperFailure}, c.errorCodes())
}

func TestClassifierFailures(t *testing.T) {
	tests := []struct {
		name       string
		classifier emotion.ClassifierFunc
	}{
		{"panic", func(context.Context, emotion.TouchSample) (emotion.State, error) { panic("decoder") }},
		{"error", func(context.Context, emotion.TouchSample) (emotion.State, error) {
			return emotion.State{}, errors.New("model unavailable")
		}},
		{"unknown emotion", func(context.Context, emotion.TouchSample) (emotion.State, error) {
			return emotion.State{Primary: "boredom"}, nil
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o, _ := initialized(t, Deps{Classifier: tc.classifier})
			_, err := o.Process(context.Background(), emotion.TouchSample{Pressure: 0.4})
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, CodeDecoderFailure, e.Code)
			assert.Equal(t, StatusError, o.Status())
		})
	}
}

func TestCancelledClassificationIsNotCritical(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: emotion.NewHeuristic()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Process(ctx, emotion.TouchSample{Pressure: 0.4})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusReady, o.Status())
}

func TestReportError(t *testing.T) {
	o, _ := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.5)})
	var c collector
	o.Subscribe(c.handle, EventError)

	o.ReportError(NewError(CodeSensorDisconnected, "pad unplugged", nil, map[string]any{"device": "pad-7"}))
	assert.Equal(t, StatusReady, o.Status())

	o.ReportError(errors.New("something odd"))
	assert.Equal(t, StatusReady, o.Status())

	o.ReportError(nil)

	o.ReportError(NewError(CodeHardwareUnsupported, "no pressure axis", nil, nil))
	assert.Equal(t, StatusError, o.Status())

	require.NoError(t, o.Close())
	assert.Equal(t, []string{CodeSensorDisconnected, CodeUnknown, CodeHardwareUnsupported}, c.errorCodes())
}

// =============================================================================
// Tests for the metrics loop
// =============================================================================

func TestMetricsLoopSamplesMemory(t *testing.T) {
	var mu sync.Mutex
	mem := 42.0
	sampler := func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return mem
	}
	o, clock := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.5), MemorySampler: sampler},
		WithMaxMemoryMB(512))
	var c collector
	o.Subscribe(c.handle, EventPerformance, EventError)

	require.Eventually(t, func() bool { return len(clock.activeTickers()) == 1 }, time.Second, time.Millisecond)
	clock.Advance(5 * time.Second)
	clock.Tick()

	require.Eventually(t, func() bool { return o.Statistics().MemoryMB == 42 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, time.Millisecond)
	perf := c.all()[0].Data.(Performance)
	assert.Equal(t, 42.0, perf.MemoryMB)
	assert.Equal(t, 5*time.Second, perf.Uptime)

	mu.Lock()
	mem = 600
	mu.Unlock()
	clock.Tick()

	require.Eventually(t, func() bool {
		codes := c.errorCodes()
		return len(codes) == 1 && codes[0] == CodeMemoryExceeded
	}, time.Second, time.Millisecond)
	assert.Equal(t, StatusReady, o.Status())
}

func TestDisableStopsMetricsLoop(t *testing.T) {
	o, clock := initialized(t, Deps{Classifier: fixedClassifier(emotion.Joy, 0.5, 0.5)})
	require.Eventually(t, func() bool { return len(clock.activeTickers()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, o.Disable(context.Background()))
	assert.Empty(t, clock.activeTickers())
}

// =============================================================================
// Tests for the window and error classification
// =============================================================================

func TestPerformanceWindow(t *testing.T) {
	w := NewPerformanceWindow(3)
	assert.Zero(t, w.Average())

	for _, ms := range []int{10, 20, 30, 40} {
		w.Push(time.Duration(ms) * time.Millisecond)
	}
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 30*time.Millisecond, w.Average())
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond}, w.Values())

	w.Reset()
	assert.Equal(t, 0, w.Len())
	assert.Empty(t, w.Values())
	assert.Equal(t, DefaultWindowSize, NewPerformanceWindow(0).Cap())
}

func TestSeverityOf(t *testing.T) {
	tests := map[string]Severity{
		CodeHardwareUnsupported:    SeverityCritical,
		CodeDecoderFailure:         SeverityCritical,
		CodeMapperFailure:          SeverityCritical,
		CodeSensorDisconnected:     SeverityHigh,
		CodeLatencyExceeded:        SeverityHigh,
		CodeMemoryExceeded:         SeverityHigh,
		CodePerformanceDegraded:    SeverityMedium,
		"GPU_PERFORMANCE_WARNING":  SeverityMedium,
		CodeInvalidSample:          SeverityLow,
		CodePersonalizationFailure: SeverityLow,
		"SOMETHING_ELSE":           SeverityLow,
	}
	for code, want := range tests {
		assert.Equal(t, want, SeverityOf(code), code)
	}
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryHardware, CategoryOf(CodeSensorDisconnected))
	assert.Equal(t, CategoryProcessing, CategoryOf(CodeMapperFailure))
	assert.Equal(t, CategoryConfiguration, CategoryOf(CodeConfigInvalid))
	assert.Equal(t, CategoryPerformance, CategoryOf("FRAME_PERFORMANCE_DROP"))
	assert.Equal(t, CategoryPrivacy, CategoryOf(CodePrivacyViolation))
	assert.Equal(t, CategoryProcessing, CategoryOf("MYSTERY"))
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("usb reset")
	e := NewError(CodeSensorDisconnected, "pad lost", cause, nil)
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "SENSOR_DISCONNECTED")

	assert.Same(t, e, Normalize(e))
	assert.Nil(t, Normalize(nil))
	assert.Equal(t, CodeUnknown, Normalize(cause).Code)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusInitializing, StatusReady))
	assert.True(t, CanTransition(StatusProcessing, StatusDisabled))
	assert.True(t, CanTransition(StatusError, StatusInitializing))
	assert.False(t, CanTransition(StatusError, StatusReady))
	assert.False(t, CanTransition(StatusDisabled, StatusReady))
	assert.False(t, StatusDisabled.Accepting())
	assert.True(t, StatusProcessing.Accepting())
	assert.Equal(t, "status_change", string(EventStatus))
}
