// Package personalization holds one user's emotional pattern history and
// resonance preferences, matches new observations against stored patterns,
// and tracks adaptive-learning statistics.
package personalization

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"resonance/internal/emotion"
	"resonance/internal/logging"
	"resonance/internal/retry"
	"resonance/internal/store"
)

// MatchEpsilon is the proximity allowed between observed and stored
// pressure sensitivity and thermal signature.
const MatchEpsilon = 0.2

// FastConfidence is the confidence above which the top pattern selects a
// fast response.
const FastConfidence = 0.8

// probeValue is used for every channel by PersonalizedResonance.
const probeValue = 0.5

// Auditor receives privacy-relevant profile operations.
// *logging.AuditLogger satisfies it.
type Auditor interface {
	LogProfileExport(ctx context.Context, profileID string, includePrivate bool, sections []string) error
	LogProfileImport(ctx context.Context, profileID string, merge bool, err error) error
	LogPatternRemoved(ctx context.Context, profileID, patternID string) error
	LogPatternsPruned(ctx context.Context, profileID string, removed, retentionDays int) error
}

var _ Auditor = (*logging.AuditLogger)(nil)

type nopAuditor struct{}

func (nopAuditor) LogProfileExport(context.Context, string, bool, []string) error { return nil }
func (nopAuditor) LogProfileImport(context.Context, string, bool, error) error    { return nil }
func (nopAuditor) LogPatternRemoved(context.Context, string, string) error        { return nil }
func (nopAuditor) LogPatternsPruned(context.Context, string, int, int) error      { return nil }

// Store owns exactly one Profile. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	profile Profile

	blobs  store.BlobStore
	policy retry.Policy
	now    func() time.Time
	logger *slog.Logger
	audit  Auditor
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBlobStore sets the persistence backend used by Load and Save.
func WithBlobStore(b store.BlobStore) Option {
	return func(s *Store) { s.blobs = b }
}

// WithRetryPolicy sets the policy for persistence writes.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithAuditor sets the privacy audit sink.
func WithAuditor(a Auditor) Option {
	return func(s *Store) { s.audit = a }
}

// New returns a Store holding the default profile for id.
func New(id string, opts ...Option) *Store {
	s := &Store{
		policy: retry.DefaultPolicy(),
		now:    time.Now,
		logger: logging.Discard(),
		audit:  nopAuditor{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.profile = DefaultProfile(id, s.now())
	return s
}

// ID returns the profile identity.
func (s *Store) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.ID
}

// Profile returns a deep copy of the current profile.
func (s *Store) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.clone()
}

// SetPreferences replaces the base resonance preferences.
func (s *Store) SetPreferences(p ResonanceSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Preferences = p.clone()
	s.touch()
}

// SetPrivacy replaces the privacy configuration.
func (s *Store) SetPrivacy(p PrivacyConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.RetentionDays < 0 {
		p.RetentionDays = 0
	}
	s.profile.Privacy = p
	s.touch()
}

// touch stamps UpdatedAt. Caller holds mu.
func (s *Store) touch() {
	s.profile.UpdatedAt = s.now()
}

// =============================================================================
// Patterns
// =============================================================================

// AddPattern assigns an identity and creation time, then appends p.
func (s *Store) AddPattern(p Pattern) Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p = p.clone()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	if p.LastObserved.IsZero() {
		p.LastObserved = now
	}
	p.normalize()

	s.profile.Patterns = append(s.profile.Patterns, p)
	s.touch()
	return p.clone()
}

// UpdatePattern merges u into the pattern with id and stamps LastObserved.
// It reports false, without error, when no such pattern exists.
func (s *Store) UpdatePattern(id string, u PatternUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	p := &s.profile.Patterns[i]
	if u.Secondary != nil {
		p.Secondary = *u.Secondary
	}
	if u.IntensityRange != nil {
		p.IntensityRange = *u.IntensityRange
	}
	if u.PressureSensitivity != nil {
		p.PressureSensitivity = *u.PressureSensitivity
	}
	if u.ThermalSignature != nil {
		p.ThermalSignature = *u.ThermalSignature
	}
	if u.PulseCorrelation != nil {
		v := *u.PulseCorrelation
		p.PulseCorrelation = &v
	}
	if u.Frequency != nil {
		p.Frequency = *u.Frequency
	}
	if u.Confidence != nil {
		p.Confidence = *u.Confidence
	}
	p.LastObserved = s.now()
	p.normalize()
	s.touch()
	return true
}

// RemovePattern deletes the pattern with id and returns it.
func (s *Store) RemovePattern(id string) (Pattern, bool) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return Pattern{}, false
	}
	removed := s.profile.Patterns[i]
	s.profile.Patterns = append(s.profile.Patterns[:i], s.profile.Patterns[i+1:]...)
	s.touch()
	profileID := s.profile.ID
	s.mu.Unlock()

	s.auditErr(s.audit.LogPatternRemoved(context.Background(), profileID, id))
	return removed, true
}

// Pattern returns the pattern with id.
func (s *Store) Pattern(id string) (Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.profile.Patterns[i].clone(), true
	}
	return Pattern{}, false
}

func (s *Store) indexOf(id string) int {
	for i := range s.profile.Patterns {
		if s.profile.Patterns[i].ID == id {
			return i
		}
	}
	return -1
}

func (p Pattern) matches(c Characteristics) bool {
	return p.Primary == c.Emotion &&
		p.IntensityRange.Contains(c.Intensity) &&
		math.Abs(c.Pressure-p.PressureSensitivity) <= MatchEpsilon &&
		math.Abs(c.Thermal-p.ThermalSignature) <= MatchEpsilon
}

// FindMatchingPatterns returns the stored patterns matching c, ordered by
// descending confidence. Ties keep insertion order.
func (s *Store) FindMatchingPatterns(c Characteristics) []Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchLocked(c)
}

func (s *Store) matchLocked(c Characteristics) []Pattern {
	out := []Pattern{}
	for _, p := range s.profile.Patterns {
		if p.matches(c) {
			out = append(out, p.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// PersonalizedResonance derives settings for e using mid-range probe
// values for every channel.
func (s *Store) PersonalizedResonance(e emotion.Emotion) ResonanceSettings {
	return s.Personalize(Characteristics{
		Emotion:   e,
		Intensity: probeValue,
		Pressure:  probeValue,
		Thermal:   probeValue,
	})
}

// Personalize derives settings from the best pattern matching c. With no
// match the base preferences are returned unchanged.
func (s *Store) Personalize(c Characteristics) ResonanceSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.profile.Preferences.clone()
	matches := s.matchLocked(c)
	if len(matches) == 0 {
		return settings
	}

	top := matches[0]
	settings.Sensitivity.Pressure = top.PressureSensitivity
	settings.Sensitivity.Thermal = top.ThermalSignature
	if top.PulseCorrelation != nil {
		settings.Sensitivity.Pulse = *top.PulseCorrelation
	}
	if top.Confidence > FastConfidence {
		settings.ResponseSpeed = SpeedFast
	} else {
		settings.ResponseSpeed = SpeedNormal
	}
	return settings
}

// Observe reinforces the best pattern matching c. It reports whether a
// pattern was reinforced.
func (s *Store) Observe(c Characteristics) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := -1
	for i, p := range s.profile.Patterns {
		if !p.matches(c) {
			continue
		}
		if best < 0 || p.Confidence > s.profile.Patterns[best].Confidence {
			best = i
		}
	}
	if best < 0 {
		return false
	}

	p := &s.profile.Patterns[best]
	rate := s.profile.Learning.LearningRate
	p.Frequency++
	p.Confidence += rate * (1 - p.Confidence)
	p.LastObserved = s.now()
	p.normalize()
	s.touch()
	return true
}

// =============================================================================
// Learning
// =============================================================================

// RecordLearningAdjustment appends to the adjustment log.
func (s *Store) RecordLearningAdjustment(kind string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	l := &s.profile.Learning
	l.Adjustments = append(l.Adjustments, Adjustment{Type: kind, Value: value, Timestamp: now})
	l.SampleCount++
	l.LastTraining = now
	s.touch()
}

// UpdateAccuracy overwrites the rolling accuracy.
func (s *Store) UpdateAccuracy(accuracy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Learning.Accuracy = emotion.Clamp01(accuracy)
}

// Stats summarizes the learning state.
func (s *Store) Stats() LearningStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.profile.Learning
	st := LearningStats{
		Patterns:     len(s.profile.Patterns),
		SampleCount:  l.SampleCount,
		Accuracy:     l.Accuracy,
		Adjustments:  len(l.Adjustments),
		LastTraining: l.LastTraining,
	}
	if st.Patterns > 0 {
		var sum float64
		for _, p := range s.profile.Patterns {
			sum += p.Confidence
		}
		st.MeanConfidence = sum / float64(st.Patterns)
	}
	return st
}

// PruneExpired drops patterns not observed within the retention window.
// A retention of zero days keeps everything.
func (s *Store) PruneExpired(now time.Time) int {
	s.mu.Lock()
	days := s.profile.Privacy.RetentionDays
	if days <= 0 {
		s.mu.Unlock()
		return 0
	}
	cutoff := now.AddDate(0, 0, -days)
	kept := s.profile.Patterns[:0]
	removed := 0
	for _, p := range s.profile.Patterns {
		if p.LastObserved.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.profile.Patterns = kept
	if removed > 0 {
		s.touch()
	}
	profileID := s.profile.ID
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info("pruned expired patterns", "profile", profileID, "removed", removed, "retention_days", days)
		s.auditErr(s.audit.LogPatternsPruned(context.Background(), profileID, removed, days))
	}
	return removed
}

func (s *Store) auditErr(err error) {
	if err != nil {
		s.logger.Warn("audit write failed", "error", err)
	}
}
