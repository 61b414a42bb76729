package concurrency

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrInvalidWorkerCount is returned by NewPool when fewer than one worker is requested.
	ErrInvalidWorkerCount = errors.New("worker count must be at least 1")

	// ErrNilTask is returned when a nil Task is submitted.
	ErrNilTask = errors.New("task cannot be nil")

	// ErrRejected is returned by Submit once shutdown has begun. The task was
	// not queued and will never run.
	ErrRejected = errors.New("pool is closed: task rejected")

	// ErrDispatch is returned when the queue has no consumers left. The task
	// was not queued and will never run.
	ErrDispatch = errors.New("queue has no consumers: task not dispatched")

	errAbandoned = errors.New("pool released without Shutdown")
)

// TaskFault reports a task that panicked or exited its goroutine while
// running on a worker. The worker keeps serving after a fault.
type TaskFault struct {
	WorkerID int
	Task     string
	// Value is the recovered panic value, nil when the task called runtime.Goexit.
	Value interface{}
	cause error
}

func newTaskFault(workerID int, task string, value interface{}, goexit bool) *TaskFault {
	var cause error
	switch {
	case goexit:
		cause = pkgerrors.New("task called runtime.Goexit")
	default:
		if err, ok := value.(error); ok {
			cause = pkgerrors.WithStack(err)
		} else {
			cause = pkgerrors.Errorf("panic: %v", value)
		}
	}
	return &TaskFault{
		WorkerID: workerID,
		Task:     task,
		Value:    value,
		cause:    cause,
	}
}

func (f *TaskFault) Error() string {
	return fmt.Sprintf("worker %d: task %s faulted: %v", f.WorkerID, f.Task, f.cause)
}

// Unwrap returns the underlying cause, so errors.Is sees a panicked error value.
func (f *TaskFault) Unwrap() error {
	return pkgerrors.Cause(f.cause)
}

// Format prints the fault; %+v includes the stack captured at recovery.
func (f *TaskFault) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "worker %d: task %s faulted: %+v", f.WorkerID, f.Task, f.cause)
		return
	}
	fmt.Fprint(s, f.Error())
}
