package concurrency

import (
	"time"
)

// EventKind identifies a lifecycle event emitted by a Pool or one of its workers.
type EventKind int

const (
	EventWorkerStarted EventKind = iota
	EventTaskSubmitted
	EventTaskRejected
	EventTaskDispatched
	EventTaskCompleted
	EventTaskFailed
	EventWorkerStopping
	EventWorkerStopped
	EventPoolClosing
	EventPoolClosed
)

var eventKindNames = [...]string{
	EventWorkerStarted:  "worker-started",
	EventTaskSubmitted:  "task-submitted",
	EventTaskRejected:   "task-rejected",
	EventTaskDispatched: "task-dispatched",
	EventTaskCompleted:  "task-completed",
	EventTaskFailed:     "task-failed",
	EventWorkerStopping: "worker-stopping",
	EventWorkerStopped:  "worker-stopped",
	EventPoolClosing:    "pool-closing",
	EventPoolClosed:     "pool-closed",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// NoWorker is the WorkerID of events raised by the pool itself.
const NoWorker = -1

// Event describes one step in the life of a pool, a worker or a task.
type Event struct {
	Kind     EventKind
	Pool     string
	WorkerID int
	// Task is the task name for task events, empty otherwise.
	Task string
	// Err is set for EventTaskRejected (ErrRejected or ErrDispatch) and
	// EventTaskFailed (*TaskFault).
	Err error
	// Duration is the run time for EventTaskCompleted and EventTaskFailed.
	Duration time.Duration
	Time     time.Time
}

// Observer receives pool events. Observe is called synchronously from the
// constructing, submitting and shutting-down goroutines and from workers,
// so it must be quick and safe for concurrent use. It is never called with
// the pool's lock held and may call Submit. Like a task, it must not call
// Shutdown for an event emitted by a worker.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// Observers fans every event out to each non-nil observer in order.
func Observers(observers ...Observer) Observer {
	list := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	switch len(list) {
	case 0:
		return nopObserver{}
	case 1:
		return list[0]
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
