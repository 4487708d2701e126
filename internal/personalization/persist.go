package personalization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"resonance/internal/retry"
	"resonance/internal/store"
)

// ErrNoBlobStore is returned by Load and Save when no backend is set.
var ErrNoBlobStore = errors.New("personalization: no blob store configured")

// ErrProfileMismatch is returned when a stored blob belongs to another
// identity.
var ErrProfileMismatch = errors.New("personalization: stored profile identity mismatch")

// BlobKey is the persistence key for a profile identity.
func BlobKey(id string) string {
	return "profile/" + id
}

// Load replaces the in-memory profile with the stored one. A missing blob
// leaves the default profile in place and is not an error.
func (s *Store) Load(ctx context.Context) error {
	if s.blobs == nil {
		return ErrNoBlobStore
	}
	id := s.ID()

	raw, err := s.blobs.Get(ctx, BlobKey(id))
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug("no stored profile", "profile", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}
	if p.ID != id {
		return fmt.Errorf("%w: want %q, got %q", ErrProfileMismatch, id, p.ID)
	}
	for i := range p.Patterns {
		p.Patterns[i].normalize()
	}
	if p.Patterns == nil {
		p.Patterns = []Pattern{}
	}

	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	s.logger.Debug("profile loaded", "profile", id, "patterns", len(p.Patterns))
	return nil
}

// Save writes the profile, retrying transient failures.
func (s *Store) Save(ctx context.Context) error {
	if s.blobs == nil {
		return ErrNoBlobStore
	}
	p := s.Profile()
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	err = retry.DoNotify(ctx, s.policy, func(ctx context.Context) error {
		return s.blobs.Set(ctx, BlobKey(p.ID), raw)
	}, s.logger)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// Delete removes the stored profile blob.
func (s *Store) Delete(ctx context.Context) error {
	if s.blobs == nil {
		return ErrNoBlobStore
	}
	if err := s.blobs.Delete(ctx, BlobKey(s.ID())); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
