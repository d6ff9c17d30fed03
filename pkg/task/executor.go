package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/bridge"
)

// Executor drives tasks through the bridge. Each task runs on its own
// goroutine with a cancelable context; Cancel signals the context and
// the bridge observes it at I/O boundaries.
type Executor struct {
	store  *Store
	bridge bridge.Bridge

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewExecutor creates an executor over the store and bridge.
func NewExecutor(store *Store, b bridge.Bridge) *Executor {
	return &Executor{
		store:   store,
		bridge:  b,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start launches execution of the task in the background.
func (e *Executor) Start(taskID string) {
	go e.Execute(taskID)
}

// Execute runs the task to a terminal state, blocking the caller. Used
// by tasks/send, which returns the final task in one round trip.
func (e *Executor) Execute(taskID string) {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[taskID] = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.cancels, taskID)
		e.mu.Unlock()
	}()
	e.run(ctx, taskID)
}

// Cancel transitions the task to canceled and signals its context so an
// in-flight bridge call aborts.
func (e *Executor) Cancel(taskID, reason string) (*a2a.Task, error) {
	t, err := e.store.Cancel(taskID, reason)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	cancel, ok := e.cancels[taskID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return t, nil
}

// run executes the task to a terminal state. Bridge errors become failed
// transitions with an error artifact, never process-level crashes.
func (e *Executor) run(ctx context.Context, taskID string) {
	t, err := e.store.Get(taskID)
	if err != nil {
		slog.Error("executor lost task", "taskId", taskID, "error", err)
		return
	}

	if _, err := e.store.Transition(taskID, a2a.TaskStateWorking, "Task started"); err != nil {
		// Already canceled before the executor picked it up.
		if IsInvalidTransition(err) {
			return
		}
		slog.Error("failed to start task", "taskId", taskID, "error", err)
		return
	}

	result, err := e.execute(ctx, t)
	if err != nil {
		e.fail(taskID, err)
		return
	}

	for _, part := range result.Parts() {
		// A task canceled while the bridge ran keeps its canceled state
		// and drops the late output.
		if err := e.store.AppendArtifact(taskID, part); err != nil {
			if IsTerminalTask(err) {
				return
			}
			slog.Warn("failed to append artifact", "taskId", taskID, "error", err)
		}
	}
	if _, err := e.store.Transition(taskID, a2a.TaskStateCompleted, "Task completed"); err != nil && !IsInvalidTransition(err) {
		slog.Error("failed to complete task", "taskId", taskID, "error", err)
	}
}

// execute routes the task to the bridge: a skill id in the metadata runs
// that skill, otherwise the message text goes to the natural-language
// path.
func (e *Executor) execute(ctx context.Context, t *a2a.Task) (*bridge.Result, error) {
	if len(t.Messages) == 0 {
		return nil, fmt.Errorf("task has no input message")
	}
	input := t.Messages[0]

	if skillID, ok := t.Metadata[a2a.MetadataSkillKey].(string); ok && skillID != "" {
		return e.bridge.Execute(ctx, skillID, bridge.ParamsFromMessage(input))
	}

	text := a2a.ExtractText(input)
	if text == "" {
		return nil, fmt.Errorf("task has no skill id and no text input")
	}
	return e.bridge.ExecuteNatural(ctx, text)
}

// fail records the error as an artifact and transitions to failed. A
// task canceled mid-flight keeps its canceled state.
func (e *Executor) fail(taskID string, execErr error) {
	if errors.Is(execErr, context.Canceled) {
		return
	}

	errPart := a2a.NewDataPart(map[string]any{"error": execErr.Error()})
	if err := e.store.AppendArtifact(taskID, errPart); err != nil && !IsTerminalTask(err) {
		slog.Warn("failed to append error artifact", "taskId", taskID, "error", err)
	}
	if _, err := e.store.Transition(taskID, a2a.TaskStateFailed, execErr.Error()); err != nil && !IsInvalidTransition(err) {
		slog.Error("failed to fail task", "taskId", taskID, "error", err)
	}
}
