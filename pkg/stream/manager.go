// Package stream fans task events out to attached SSE clients and
// provides the client-side SSE consumer used when following remote
// tasks.
//
// Framing is `event: <type>\ndata: <json>\n\n` with a comment keep-alive
// every 30 seconds. A slow client is dropped rather than stalling the
// rest of the fan-out.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/task"
)

// KeepaliveInterval is how often an idle stream emits a comment line.
const KeepaliveInterval = 30 * time.Second

// clientBuffer bounds per-client queued frames before the client is
// considered too slow and dropped.
const clientBuffer = 32

// frame is one SSE frame ready for the wire.
type frame struct {
	event string
	data  []byte
	last  bool // closes the stream after delivery
}

type client struct {
	frames chan frame
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

type taskStream struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// Manager owns the per-task streams. It subscribes to the task store and
// converts store events into SSE frames.
type Manager struct {
	store *task.Store

	mu      sync.Mutex
	streams map[string]*taskStream
}

// NewManager creates a manager subscribed to the store's events.
func NewManager(store *task.Store) *Manager {
	m := &Manager{store: store, streams: make(map[string]*taskStream)}
	store.Subscribe(m.handleEvent)
	return m
}

// handleEvent translates a store event into frames for the task's stream.
func (m *Manager) handleEvent(ev task.Event) {
	s := m.lookup(ev.TaskID)
	if s == nil {
		return
	}

	switch ev.Kind {
	case task.EventTransition:
		payload, ok := ev.Payload.(task.TransitionPayload)
		if !ok {
			return
		}
		s.broadcast(encodeFrame("status", a2a.StatusEvent{
			TaskID:        ev.TaskID,
			State:         payload.To,
			PreviousState: payload.From,
			Message:       payload.Message,
			Timestamp:     ev.Timestamp,
		}))
		if a2a.IsTerminalState(payload.To) {
			done := encodeFrame("done", a2a.DoneEvent{TaskID: ev.TaskID, FinalState: payload.To})
			done.last = true
			s.broadcast(done)
			m.remove(ev.TaskID)
		}
	case task.EventArtifact:
		payload, ok := ev.Payload.(task.ArtifactPayload)
		if !ok {
			return
		}
		s.broadcast(encodeFrame("artifact", a2a.ArtifactEvent{
			TaskID:        ev.TaskID,
			ArtifactIndex: payload.Index,
			Part:          payload.Part,
		}))
	case task.EventMessage:
		msg, ok := ev.Payload.(a2a.Message)
		if !ok {
			return
		}
		s.broadcast(encodeFrame("message", a2a.MessageEvent{
			TaskID: ev.TaskID,
			Role:   msg.Role,
			Parts:  msg.Parts,
		}))
	}
}

// AddClient attaches the response writer as an SSE client and blocks
// until the client disconnects or the stream closes. The connection
// comment is written immediately so proxies start flushing.
func (m *Manager) AddClient(ctx context.Context, taskID string, w http.ResponseWriter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return err
	}
	flusher.Flush()

	c := &client{
		frames: make(chan frame, clientBuffer),
		done:   make(chan struct{}),
	}

	s, final := m.attach(taskID, c)
	if s == nil {
		// The task went terminal before attach; the terminal broadcast
		// already happened (or will find no stream), so the single done
		// frame is written here.
		f := encodeFrame("done", a2a.DoneEvent{TaskID: taskID, FinalState: final})
		_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.event, f.data)
		flusher.Flush()
		return nil
	}
	defer s.remove(c)

	keepalive := time.NewTicker(KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		case f := <-c.frames:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.event, f.data); err != nil {
				return nil
			}
			flusher.Flush()
			if f.last {
				return nil
			}
		}
	}
}

// ClientCount returns the number of clients attached to the task stream.
func (m *Manager) ClientCount(taskID string) int {
	s := m.lookup(taskID)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// CloseStream detaches every client from the task's stream.
func (m *Manager) CloseStream(taskID string) {
	s := m.lookup(taskID)
	if s == nil {
		return
	}
	s.close()
	m.remove(taskID)
}

// CloseAll is the shutdown hook; it closes every stream.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	streams := make([]*taskStream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.streams = make(map[string]*taskStream)
	m.mu.Unlock()

	for _, s := range streams {
		s.close()
	}
}

// attach registers the client on the task's stream, creating it when
// needed. The terminal check happens under the manager lock, which the
// terminal broadcast also takes, so either the task is seen terminal
// here (nil stream, final state returned) or the registered client is
// guaranteed to receive the done frame.
func (m *Manager) attach(taskID string, c *client) (*taskStream, a2a.TaskState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := a2a.TaskState("")
	if t, err := m.store.Get(taskID); err == nil {
		state = t.Status.State
	}
	if state == "" || a2a.IsTerminalState(state) {
		return nil, state
	}

	s, ok := m.streams[taskID]
	if !ok {
		s = &taskStream{clients: make(map[*client]struct{})}
		m.streams[taskID] = s
	}
	if !s.add(c) {
		return nil, state
	}
	return s, state
}

func (m *Manager) lookup(taskID string) *taskStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[taskID]
}

func (m *Manager) remove(taskID string) {
	m.mu.Lock()
	delete(m.streams, taskID)
	m.mu.Unlock()
}

func (s *taskStream) add(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *taskStream) remove(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

// broadcast queues the frame on every client; a client with a full
// buffer is dropped.
func (s *taskStream) broadcast(f frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.frames <- f:
		default:
			slog.Warn("dropping slow SSE client")
			delete(s.clients, c)
			c.close()
		}
	}
	if f.last {
		s.closed = true
	}
}

func (s *taskStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		c.close()
	}
}

func encodeFrame(event string, payload any) frame {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return frame{event: event, data: data}
}
