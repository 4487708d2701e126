package orchestrator

import (
	"log/slog"
	"sync"
	"time"
)

// EventType names an emitted event.
type EventType string

const (
	EventTouch       EventType = "touch"
	EventEmotion     EventType = "emotion"
	EventResonance   EventType = "resonance"
	EventError       EventType = "error"
	EventStatus      EventType = "status_change"
	EventPerformance EventType = "performance_update"
)

// Event is delivered to subscribers. Data holds emotion.TouchSample,
// emotion.State, Result, *Error, StatusChange or Performance depending on
// Type.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data"`
}

// Handler receives events on a goroutine owned by its subscription.
type Handler func(Event)

// Emitter fans events out to subscribers. Every subscriber has its own
// goroutine and unbounded FIFO: delivery order per subscriber equals
// emission order, a slow handler never blocks Emit, and nothing is dropped.
type Emitter struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

// NewEmitter returns an Emitter logging handler panics to logger.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{logger: logger, subs: make(map[uint64]*subscriber)}
}

type subscriber struct {
	handler Handler
	types   map[EventType]bool

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

// run delivers queued events until closed and drained.
func (s *subscriber) run(logger *slog.Logger) {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(ev, logger)
	}
}

func (s *subscriber) deliver(ev Event, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked", "event", ev.Type, "panic", r)
		}
	}()
	s.handler(ev)
}

// Subscribe registers h for the given types, or every type when none are
// given. The returned function unsubscribes; events already queued are
// still delivered.
func (e *Emitter) Subscribe(h Handler, types ...EventType) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return func() {}
	}

	s := &subscriber{handler: h}
	s.cond = sync.NewCond(&s.mu)
	if len(types) > 0 {
		s.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = s

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		s.run(e.logger)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			s.close()
		})
	}
}

// Emit queues ev for every interested subscriber. It never blocks on
// handlers.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, s := range e.subs {
		if s.wants(ev.Type) {
			s.push(ev)
		}
	}
}

// Close stops accepting events and waits for every subscriber to drain.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.wg.Wait()
		return
	}
	e.closed = true
	for id, s := range e.subs {
		s.close()
		delete(e.subs, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
}
