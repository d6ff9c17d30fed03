package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/task"
)

func TestSubscriptionManager_SubscribeAndUnsubscribe(t *testing.T) {
	m := NewSubscriptionManager(NewNotifier(testKey))

	m.Subscribe("t1", "http://a.example/cb")
	m.Subscribe("t1", "http://b.example/cb")
	m.Subscribe("t1", "http://a.example/cb") // duplicate

	urls := m.Subscribers("t1")
	sort.Strings(urls)
	assert.Equal(t, []string{"http://a.example/cb", "http://b.example/cb"}, urls)

	m.Unsubscribe("t1")
	assert.Empty(t, m.Subscribers("t1"))
}

func TestNotifySubscribers_FanOut(t *testing.T) {
	received := make(chan Notification, 2)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var n Notification
		if err := json.Unmarshal(body, &n); err == nil {
			received <- n
		}
		w.WriteHeader(http.StatusOK)
	})
	first := httptest.NewServer(handler)
	defer first.Close()
	second := httptest.NewServer(handler)
	defer second.Close()

	m := NewSubscriptionManager(NewNotifier(testKey))
	m.Subscribe("t1", first.URL)
	m.Subscribe("t1", second.URL)

	m.NotifySubscribers(context.Background(), "t1", Notification{TaskID: "t1", State: a2a.TaskStateWorking})

	for i := 0; i < 2; i++ {
		select {
		case n := <-received:
			assert.Equal(t, "t1", n.TaskID)
		case <-time.After(2 * time.Second):
			t.Fatal("missing webhook delivery")
		}
	}
}

func TestBind_DeliversTerminalNotificationAndRetires(t *testing.T) {
	received := make(chan Notification, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var n Notification
		if err := json.Unmarshal(body, &n); err == nil {
			received <- n
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := task.NewStore(10)
	m := NewSubscriptionManager(NewNotifier(testKey))
	m.Bind(store)

	created := store.Create(a2a.NewUserTextMessage("hi"), nil)
	m.Subscribe(created.ID, server.URL)

	_, err := store.Transition(created.ID, a2a.TaskStateWorking, "Task started")
	require.NoError(t, err)
	require.NoError(t, store.AppendArtifact(created.ID, a2a.NewDataPart(map[string]any{"n": 1})))
	_, err = store.Transition(created.ID, a2a.TaskStateCompleted, "Task completed")
	require.NoError(t, err)

	var states []a2a.TaskState
	deadline := time.After(3 * time.Second)
	for len(states) < 2 {
		select {
		case n := <-received:
			states = append(states, n.State)
			if n.State == a2a.TaskStateCompleted {
				assert.NotNil(t, n.Result, "completed notification should carry the artifacts")
			}
		case <-deadline:
			t.Fatalf("notifications missing, saw %v", states)
		}
	}
	assert.Equal(t, []a2a.TaskState{a2a.TaskStateWorking, a2a.TaskStateCompleted}, states,
		"deliveries drain in commit order")

	// Terminal delivery retires the subscription.
	assert.Eventually(t, func() bool {
		return len(m.Subscribers(created.ID)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBind_SlowWebhookKeepsCommitOrder(t *testing.T) {
	received := make(chan Notification, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var n Notification
		if err := json.Unmarshal(body, &n); err == nil {
			// Stall the first notification so a later one could overtake
			// it if deliveries were not serialized per task.
			if n.State == a2a.TaskStateWorking {
				time.Sleep(300 * time.Millisecond)
			}
			received <- n
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := task.NewStore(10)
	m := NewSubscriptionManager(NewNotifier(testKey))
	m.Bind(store)

	created := store.Create(a2a.NewUserTextMessage("hi"), nil)
	m.Subscribe(created.ID, server.URL)

	_, err := store.Transition(created.ID, a2a.TaskStateWorking, "")
	require.NoError(t, err)
	_, err = store.Transition(created.ID, a2a.TaskStateCompleted, "")
	require.NoError(t, err)

	var states []a2a.TaskState
	deadline := time.After(3 * time.Second)
	for len(states) < 2 {
		select {
		case n := <-received:
			states = append(states, n.State)
		case <-deadline:
			t.Fatalf("notifications missing, saw %v", states)
		}
	}
	assert.Equal(t, []a2a.TaskState{a2a.TaskStateWorking, a2a.TaskStateCompleted}, states)
}

func TestBind_FailureCarriesError(t *testing.T) {
	received := make(chan Notification, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var n Notification
		if err := json.Unmarshal(body, &n); err == nil {
			received <- n
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := task.NewStore(10)
	m := NewSubscriptionManager(NewNotifier(testKey))
	m.Bind(store)

	created := store.Create(a2a.NewUserTextMessage("hi"), nil)
	m.Subscribe(created.ID, server.URL)

	_, err := store.Transition(created.ID, a2a.TaskStateWorking, "Task started")
	require.NoError(t, err)
	_, err = store.Transition(created.ID, a2a.TaskStateFailed, "executor unreachable")
	require.NoError(t, err)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case n := <-received:
			if n.State == a2a.TaskStateFailed {
				assert.Equal(t, "executor unreachable", n.Error)
				return
			}
		case <-deadline:
			t.Fatal("failed notification never arrived")
		}
	}
}
