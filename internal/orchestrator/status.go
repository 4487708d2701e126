package orchestrator

import (
	"errors"
	"fmt"
)

// Status is the orchestrator lifecycle state.
type Status int

const (
	StatusInitializing Status = iota
	StatusReady
	StatusProcessing
	StatusError
	StatusDisabled
)

var statusNames = [...]string{
	StatusInitializing: "initializing",
	StatusReady:        "ready",
	StatusProcessing:   "processing",
	StatusError:        "error",
	StatusDisabled:     "disabled",
}

func (s Status) String() string {
	if s < StatusInitializing || s > StatusDisabled {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Accepting reports whether samples are admitted in this state.
func (s Status) Accepting() bool {
	return s == StatusReady || s == StatusProcessing
}

var (
	// ErrInvalidTransition is returned when an operation is not allowed
	// from the current status.
	ErrInvalidTransition = errors.New("orchestrator: invalid status transition")

	// ErrNotAccepting is returned by Process when samples are not admitted.
	ErrNotAccepting = errors.New("orchestrator: not accepting samples")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator: closed")
)

var transitions = map[Status][]Status{
	StatusInitializing: {StatusReady, StatusError},
	StatusReady:        {StatusProcessing, StatusError, StatusDisabled},
	StatusProcessing:   {StatusReady, StatusError, StatusDisabled},
	StatusError:        {StatusInitializing},
	StatusDisabled:     {StatusInitializing},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusChange is the payload of status_change events.
type StatusChange struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}
