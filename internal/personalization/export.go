package personalization

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/profile.schema.json
var schemaFS embed.FS

const schemaURL = "profile.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func profileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		data, err := schemaFS.ReadFile("schema/profile.schema.json")
		if err != nil {
			schemaErr = fmt.Errorf("read profile schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ProfileExport is the externally visible form of a profile. Optional
// sections are nil when withheld.
type ProfileExport struct {
	ID          string             `json:"id"`
	DisplayName string             `json:"displayName"`
	Version     int                `json:"version"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	Patterns    []Pattern          `json:"patterns,omitempty"`
	Preferences *ResonanceSettings `json:"preferences,omitempty"`
	Privacy     *PrivacyConfig     `json:"privacy,omitempty"`
	Learning    *LearningState     `json:"learning,omitempty"`
}

// MarshalJSON writes an included but empty pattern list as [] and omits a
// withheld one.
func (e ProfileExport) MarshalJSON() ([]byte, error) {
	type plain ProfileExport
	out := struct {
		plain
		Patterns *[]Pattern `json:"patterns,omitempty"`
	}{plain: plain(e)}
	if e.Patterns != nil {
		out.Patterns = &e.Patterns
	}
	return json.Marshal(out)
}

// Sections names the sections present, for auditing.
func (e ProfileExport) Sections() []string {
	sections := []string{"identity"}
	if e.Patterns != nil {
		sections = append(sections, "patterns")
	}
	if e.Preferences != nil {
		sections = append(sections, "preferences")
	}
	if e.Privacy != nil {
		sections = append(sections, "privacy")
	}
	if e.Learning != nil {
		sections = append(sections, "learning")
	}
	return sections
}

// ExportProfile returns the profile as the privacy settings allow.
// Identity, display name, version and timestamps are always present.
func (s *Store) ExportProfile(includePrivate bool) ProfileExport {
	s.mu.RLock()
	p := s.profile.clone()
	s.mu.RUnlock()

	out := ProfileExport{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if includePrivate || p.Privacy.SharePatterns {
		out.Patterns = p.Patterns
	}
	if includePrivate || p.Privacy.SharePreferences {
		out.Preferences = &p.Preferences
	}
	if includePrivate {
		out.Privacy = &p.Privacy
		out.Learning = &p.Learning
	}

	s.auditErr(s.audit.LogProfileExport(context.Background(), p.ID, includePrivate, out.Sections()))
	return out
}

// ImportProfile overlays data onto the profile. With merge the current
// profile is the base and its identity and creation time are kept;
// otherwise a fresh default profile for the same identity is the base.
// Absent sections and zero scalar fields leave the base untouched.
func (s *Store) ImportProfile(data ProfileExport, merge bool) {
	s.mu.Lock()
	now := s.now()
	base := s.profile
	if !merge {
		base = DefaultProfile(s.profile.ID, now)
		if !data.CreatedAt.IsZero() {
			base.CreatedAt = data.CreatedAt
		}
	}

	if data.DisplayName != "" {
		base.DisplayName = data.DisplayName
	}
	if data.Version > 0 {
		base.Version = data.Version
	}
	if data.Patterns != nil {
		patterns := make([]Pattern, 0, len(data.Patterns))
		for _, p := range data.Patterns {
			p = p.clone()
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			if p.LastObserved.IsZero() {
				p.LastObserved = p.CreatedAt
			}
			p.normalize()
			patterns = append(patterns, p)
		}
		base.Patterns = patterns
	}
	if data.Preferences != nil {
		base.Preferences = data.Preferences.clone()
	}
	if data.Privacy != nil {
		base.Privacy = *data.Privacy
	}
	if data.Learning != nil {
		base.Learning = data.Learning.clone()
	}
	base.UpdatedAt = now
	s.profile = base.clone()
	id := s.profile.ID
	s.mu.Unlock()

	s.logger.Info("profile imported", "profile", id, "merge", merge)
	s.auditErr(s.audit.LogProfileImport(context.Background(), id, merge, nil))
}

// SchemaError lists every schema violation of an imported document.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("profile document invalid: %s", strings.Join(e.Violations, "; "))
}

// ImportJSON validates raw against the profile schema and imports it.
func (s *Store) ImportJSON(raw []byte, merge bool) error {
	err := s.importJSON(raw, merge)
	if err != nil {
		s.auditErr(s.audit.LogProfileImport(context.Background(), s.ID(), merge, err))
	}
	return err
}

func (s *Store) importJSON(raw []byte, merge bool) error {
	schema, err := profileSchema()
	if err != nil {
		return err
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("parse profile document: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return &SchemaError{Violations: flattenViolations(err)}
	}

	var data ProfileExport
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode profile document: %w", err)
	}
	s.ImportProfile(data, merge)
	return nil
}

// flattenViolations collects the leaf causes of a validation error.
func flattenViolations(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := v.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, loc+": "+v.Message)
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}
