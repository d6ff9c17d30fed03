// Package task holds the in-memory task store and the execution driver.
//
// The store owns all task mutation: every transition goes through the
// state table, appends a history entry, and emits exactly one event.
// Per-task operations are serialized so event order equals commit order;
// listeners run outside the state lock so a slow consumer cannot deadlock
// the store.
package task

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xactions/xactions-a2a/pkg/a2a"
)

// DefaultCapacity bounds the store when no capacity is configured.
const DefaultCapacity = 10000

// EventKind discriminates store events.
type EventKind string

const (
	EventTransition EventKind = "transition"
	EventMessage    EventKind = "message"
	EventArtifact   EventKind = "artifact"
)

// Event is emitted on every committed mutation.
type Event struct {
	Kind      EventKind
	TaskID    string
	Payload   any
	Timestamp time.Time
}

// TransitionPayload is the payload of a transition event.
type TransitionPayload struct {
	From    a2a.TaskState
	To      a2a.TaskState
	Message string
}

// ArtifactPayload is the payload of an artifact event.
type ArtifactPayload struct {
	Index int
	Part  a2a.Part
}

// Listener receives store events. Listeners are invoked synchronously in
// commit order; they must not block for long.
type Listener func(Event)

// Stats summarizes the store contents.
type Stats struct {
	Total  int                   `json:"total"`
	Counts map[a2a.TaskState]int `json:"counts"`
}

// entry wraps a task with its serialization locks. commitMu is acquired
// for the whole mutate-and-notify sequence; mu only guards the task data,
// so listeners (called with commitMu held but mu released) can read the
// store freely.
type entry struct {
	commitMu sync.Mutex
	mu       sync.Mutex
	task     *a2a.Task
	created  time.Time
}

// Store is the in-memory task store.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]*entry
	order    []string // creation order, for eviction
	capacity int

	listenerMu sync.RWMutex
	listeners  []Listener
}

// NewStore creates a store bounded to capacity tasks. A non-positive
// capacity uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		tasks:    make(map[string]*entry),
		capacity: capacity,
	}
}

// Subscribe registers an event listener.
func (s *Store) Subscribe(fn Listener) {
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenerMu.Unlock()
}

func (s *Store) emit(ev Event) {
	s.listenerMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// Create registers a new task in the submitted state and assigns its id.
func (s *Store) Create(message a2a.Message, metadata map[string]any) *a2a.Task {
	now := time.Now().UTC()
	t := &a2a.Task{
		ID:       uuid.New().String(),
		Status:   a2a.TaskStatus{State: a2a.TaskStateSubmitted, Message: "Task submitted", Timestamp: now},
		Messages: []a2a.Message{message},
		History:  []a2a.HistoryEntry{{State: a2a.TaskStateSubmitted, Message: "Task submitted", Timestamp: now}},
		Metadata: metadata,
	}
	if metadata != nil {
		if ctxID, ok := metadata["contextId"].(string); ok {
			t.ContextID = ctxID
		}
	}
	if t.ContextID == "" {
		t.ContextID = uuid.New().String()
	}

	e := &entry{task: t, created: now}

	s.mu.Lock()
	s.tasks[t.ID] = e
	s.order = append(s.order, t.ID)
	s.evictLocked()
	s.mu.Unlock()

	return snapshot(t)
}

// Get returns a copy of the task, or ErrNotFound.
func (s *Store) Get(id string) (*a2a.Task, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.task), nil
}

// Transition moves the task to newState, recording history and emitting a
// transition event. Fails with InvalidTransitionError when the table does
// not permit the move or the task is terminal.
func (s *Store) Transition(id string, newState a2a.TaskState, message string) (*a2a.Task, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.Lock()
	from := e.task.Status.State
	if !a2a.CanTransition(from, newState) {
		e.mu.Unlock()
		return nil, &InvalidTransitionError{TaskID: id, From: from, To: newState}
	}
	ts := monotonic(e.task)
	e.task.Status = a2a.TaskStatus{State: newState, Message: message, Timestamp: ts}
	e.task.History = append(e.task.History, a2a.HistoryEntry{State: newState, Message: message, Timestamp: ts})
	result := snapshot(e.task)
	e.mu.Unlock()

	s.emit(Event{
		Kind:      EventTransition,
		TaskID:    id,
		Payload:   TransitionPayload{From: from, To: newState, Message: message},
		Timestamp: ts,
	})
	return result, nil
}

// AppendMessage appends to the conversation log and emits a message
// event. Terminal tasks accept no further mutation.
func (s *Store) AppendMessage(id string, msg a2a.Message) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.Lock()
	if state := e.task.Status.State; a2a.IsTerminalState(state) {
		e.mu.Unlock()
		return &TerminalTaskError{TaskID: id, State: state}
	}
	e.task.Messages = append(e.task.Messages, msg)
	ts := monotonic(e.task)
	e.mu.Unlock()

	s.emit(Event{Kind: EventMessage, TaskID: id, Payload: msg, Timestamp: ts})
	return nil
}

// AppendArtifact appends an output part and emits an artifact event.
func (s *Store) AppendArtifact(id string, part a2a.Part) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.Lock()
	if state := e.task.Status.State; a2a.IsTerminalState(state) {
		e.mu.Unlock()
		return &TerminalTaskError{TaskID: id, State: state}
	}
	e.task.Artifacts = append(e.task.Artifacts, part)
	index := len(e.task.Artifacts) - 1
	ts := monotonic(e.task)
	e.mu.Unlock()

	s.emit(Event{Kind: EventArtifact, TaskID: id, Payload: ArtifactPayload{Index: index, Part: part}, Timestamp: ts})
	return nil
}

// Cancel transitions the task to canceled from any non-terminal state.
func (s *Store) Cancel(id string, reason string) (*a2a.Task, error) {
	if reason == "" {
		reason = "Task canceled"
	}
	return s.Transition(id, a2a.TaskStateCanceled, reason)
}

// Stats returns per-state counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	stats := Stats{Counts: make(map[a2a.TaskState]int)}
	for _, e := range entries {
		e.mu.Lock()
		state := e.task.Status.State
		e.mu.Unlock()
		stats.Counts[state]++
		stats.Total++
	}
	return stats
}

// List returns copies of stored tasks, newest first, optionally filtered
// by state. limit <= 0 means no limit.
func (s *Store) List(state a2a.TaskState, limit int) []*a2a.Task {
	s.mu.RLock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.RUnlock()

	var out []*a2a.Task
	for i := len(ids) - 1; i >= 0; i-- {
		t, err := s.Get(ids[i])
		if err != nil {
			continue
		}
		if state != "" && t.Status.State != state {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (s *Store) entry(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// evictLocked drops the oldest terminal tasks while over capacity.
// Caller holds s.mu.
func (s *Store) evictLocked() {
	if len(s.tasks) <= s.capacity {
		return
	}
	kept := s.order[:0]
	over := len(s.tasks) - s.capacity
	for _, id := range s.order {
		e := s.tasks[id]
		if over > 0 && e != nil {
			e.mu.Lock()
			terminal := a2a.IsTerminalState(e.task.Status.State)
			e.mu.Unlock()
			if terminal {
				delete(s.tasks, id)
				over--
				continue
			}
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// monotonic returns a timestamp that never precedes the task's last
// history entry, keeping history timestamps non-decreasing even under
// clock slew.
func monotonic(t *a2a.Task) time.Time {
	now := time.Now().UTC()
	if n := len(t.History); n > 0 && now.Before(t.History[n-1].Timestamp) {
		return t.History[n-1].Timestamp
	}
	return now
}

// snapshot deep-copies a task so callers never share the stored slices.
func snapshot(t *a2a.Task) *a2a.Task {
	cp := *t
	cp.Messages = append([]a2a.Message(nil), t.Messages...)
	cp.Artifacts = append([]a2a.Part(nil), t.Artifacts...)
	cp.History = append([]a2a.HistoryEntry(nil), t.History...)
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
