package push

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/task"
)

// SubscriptionManager tracks which callback URLs want notifications for
// which tasks. Terminal delivery retires the subscription.
type SubscriptionManager struct {
	notifier *Notifier

	mu   sync.Mutex
	subs map[string]map[string]struct{} // taskID -> set of callback URLs

	queueMu sync.Mutex
	queues  map[string]*deliveryQueue
}

// deliveryQueue holds a task's pending notifications in commit order. A
// single drain goroutine delivers them one at a time so a retrying or
// slow webhook never sees notifications out of order.
type deliveryQueue struct {
	pending []Notification
	running bool
}

// NewSubscriptionManager creates an empty subscription table.
func NewSubscriptionManager(notifier *Notifier) *SubscriptionManager {
	return &SubscriptionManager{
		notifier: notifier,
		subs:     make(map[string]map[string]struct{}),
		queues:   make(map[string]*deliveryQueue),
	}
}

// Subscribe registers a callback URL for a task.
func (m *SubscriptionManager) Subscribe(taskID, callbackURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls, ok := m.subs[taskID]
	if !ok {
		urls = make(map[string]struct{})
		m.subs[taskID] = urls
	}
	urls[callbackURL] = struct{}{}
}

// Unsubscribe removes every callback URL for the task.
func (m *SubscriptionManager) Unsubscribe(taskID string) {
	m.mu.Lock()
	delete(m.subs, taskID)
	m.mu.Unlock()
}

// Subscribers returns the callback URLs registered for the task.
func (m *SubscriptionManager) Subscribers(taskID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls := make([]string, 0, len(m.subs[taskID]))
	for u := range m.subs[taskID] {
		urls = append(urls, u)
	}
	return urls
}

// NotifySubscribers posts the notification to every subscribed URL
// concurrently. One failing URL never blocks the others; failures are
// logged, not returned.
func (m *SubscriptionManager) NotifySubscribers(ctx context.Context, taskID string, notification Notification) {
	urls := m.Subscribers(taskID)
	if len(urls) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, url := range urls {
		url := url
		g.Go(func() error {
			if err := m.notifier.Notify(gctx, url, notification); err != nil {
				slog.Warn("push notification failed", "taskId", taskID, "url", url, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Bind subscribes the manager to the task store: every transition fans
// out a state notification, and terminal states retire the subscription
// after the final delivery.
func (m *SubscriptionManager) Bind(store *task.Store) {
	store.Subscribe(func(ev task.Event) {
		if ev.Kind != task.EventTransition {
			return
		}
		payload, ok := ev.Payload.(task.TransitionPayload)
		if !ok {
			return
		}

		notification := Notification{
			TaskID:    ev.TaskID,
			State:     payload.To,
			Timestamp: ev.Timestamp,
		}
		if payload.To == a2a.TaskStateFailed && payload.Message != "" {
			notification.Error = payload.Message
		}
		if payload.To == a2a.TaskStateCompleted {
			if t, err := store.Get(ev.TaskID); err == nil && len(t.Artifacts) > 0 {
				notification.Result = t.Artifacts
			}
		}

		// Enqueued synchronously on the listener path, so queue order is
		// commit order. Delivery drains off-path one notification at a
		// time per task.
		m.enqueue(ev.TaskID, notification)
	})
}

// enqueue appends the notification to the task's delivery queue and
// starts a drain goroutine when none is running.
func (m *SubscriptionManager) enqueue(taskID string, notification Notification) {
	m.queueMu.Lock()
	q, ok := m.queues[taskID]
	if !ok {
		q = &deliveryQueue{}
		m.queues[taskID] = q
	}
	q.pending = append(q.pending, notification)
	start := !q.running
	q.running = true
	m.queueMu.Unlock()

	if start {
		go m.drain(taskID)
	}
}

// drain delivers the task's queued notifications in order, then exits.
func (m *SubscriptionManager) drain(taskID string) {
	for {
		m.queueMu.Lock()
		q := m.queues[taskID]
		if q == nil || len(q.pending) == 0 {
			if q != nil {
				delete(m.queues, taskID)
			}
			m.queueMu.Unlock()
			return
		}
		notification := q.pending[0]
		q.pending = q.pending[1:]
		m.queueMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		m.NotifySubscribers(ctx, taskID, notification)
		cancel()

		if a2a.IsTerminalState(notification.State) {
			m.Unsubscribe(taskID)
		}
	}
}
