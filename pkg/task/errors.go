package task

import (
	"errors"
	"fmt"

	"github.com/xactions/xactions-a2a/pkg/a2a"
)

// ErrNotFound is returned when no task exists with the requested id.
var ErrNotFound = errors.New("task not found")

// InvalidTransitionError reports a transition the state table forbids.
type InvalidTransitionError struct {
	TaskID string
	From   a2a.TaskState
	To     a2a.TaskState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s: invalid transition %s -> %s", e.TaskID, e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// TerminalTaskError reports a mutation attempted on a task that already
// reached a terminal state.
type TerminalTaskError struct {
	TaskID string
	State  a2a.TaskState
}

func (e *TerminalTaskError) Error() string {
	return fmt.Sprintf("task %s is %s and accepts no further mutation", e.TaskID, e.State)
}

// IsTerminalTask reports whether err is a TerminalTaskError.
func IsTerminalTask(err error) bool {
	var tte *TerminalTaskError
	return errors.As(err, &tte)
}
