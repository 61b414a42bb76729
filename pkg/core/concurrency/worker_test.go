package concurrency

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fluxorio/poold/pkg/core"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) of(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestWorker_PanicIsIsolated(t *testing.T) {
	rec := &eventRecorder{}
	pool := newTestPool(t, 1, WithObserver(rec))

	if err := pool.Submit(NewNamedTask("boom", func() { panic("boom") })); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	var ran int64
	if err := pool.Submit(TaskFunc(func() { atomic.AddInt64(&ran, 1) })); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	pool.Shutdown()

	if atomic.LoadInt64(&ran) != 1 {
		t.Error("task after a panicking task did not run on the single worker")
	}

	failed := rec.of(EventTaskFailed)
	if len(failed) != 1 {
		t.Fatalf("task-failed events = %d, want 1", len(failed))
	}
	var fault *TaskFault
	if !errors.As(failed[0].Err, &fault) {
		t.Fatalf("task-failed Err = %T, want *TaskFault", failed[0].Err)
	}
	if fault.Task != "boom" || fault.WorkerID != 0 || fault.Value != "boom" {
		t.Errorf("fault = %+v", *fault)
	}

	stats := pool.Stats()
	if stats.Failed != 1 || stats.Completed != 1 {
		t.Errorf("Stats() failed=%d completed=%d, want 1 and 1", stats.Failed, stats.Completed)
	}
	if len(rec.of(EventWorkerStarted)) != 1 {
		t.Errorf("worker restarted after a panic")
	}
}

func TestWorker_PanicWithErrorUnwraps(t *testing.T) {
	errBoom := errors.New("disk on fire")
	rec := &eventRecorder{}
	pool := newTestPool(t, 2, WithObserver(rec))

	_ = pool.Submit(TaskFunc(func() { panic(errBoom) }))
	pool.Shutdown()

	failed := rec.of(EventTaskFailed)
	if len(failed) != 1 {
		t.Fatalf("task-failed events = %d, want 1", len(failed))
	}
	if !errors.Is(failed[0].Err, errBoom) {
		t.Errorf("errors.Is(%v, errBoom) = false", failed[0].Err)
	}
	if verbose := fmt.Sprintf("%+v", failed[0].Err); !strings.Contains(verbose, "worker_test.go") {
		t.Errorf("%%+v output should carry a stack, got %q", verbose)
	}
}

func TestWorker_GoexitKeepsCapacity(t *testing.T) {
	rec := &eventRecorder{}
	pool := newTestPool(t, 1, WithObserver(rec))

	_ = pool.Submit(TaskFunc(func() { runtime.Goexit() }))
	var ran int64
	_ = pool.Submit(TaskFunc(func() { atomic.AddInt64(&ran, 1) }))
	pool.Shutdown()

	if atomic.LoadInt64(&ran) != 1 {
		t.Error("worker did not keep serving after runtime.Goexit")
	}
	failed := rec.of(EventTaskFailed)
	if len(failed) != 1 {
		t.Fatalf("task-failed events = %d, want 1", len(failed))
	}
	var fault *TaskFault
	if !errors.As(failed[0].Err, &fault) || fault.Value != nil {
		t.Errorf("Goexit fault = %v", failed[0].Err)
	}
	if got := len(rec.of(EventWorkerStopped)); got != 1 {
		t.Errorf("worker-stopped events = %d, want 1", got)
	}
	if got := len(rec.of(EventWorkerStarted)); got != 1 {
		t.Errorf("worker-started events = %d, want 1 (replacement is not a new worker)", got)
	}
	if alive := pool.Stats().Alive; alive != 0 {
		t.Errorf("Stats().Alive = %d, want 0", alive)
	}
}

func TestWorker_EventSequence(t *testing.T) {
	rec := &eventRecorder{}
	pool := newTestPool(t, 1, WithName("seq"), WithObserver(rec))

	_ = pool.Submit(NewNamedTask("one", func() {}))
	pool.Shutdown()

	var kinds []string
	rec.mu.Lock()
	for _, e := range rec.events {
		if e.Pool != "seq" {
			t.Errorf("event %s has pool %q, want seq", e.Kind, e.Pool)
		}
		if e.Time.IsZero() {
			t.Errorf("event %s has no timestamp", e.Kind)
		}
		kinds = append(kinds, e.Kind.String())
	}
	rec.mu.Unlock()

	// task-submitted and pool-closing come from other goroutines and may
	// interleave with the worker's own sequence.
	pos := func(kind string) int {
		for i, k := range kinds {
			if k == kind {
				return i
			}
		}
		t.Fatalf("events %v missing %s", kinds, kind)
		return -1
	}
	order := []string{"worker-started", "task-dispatched", "task-completed", "worker-stopping", "worker-stopped", "pool-closed"}
	for i := 1; i < len(order); i++ {
		if pos(order[i-1]) > pos(order[i]) {
			t.Errorf("%s after %s in %v", order[i-1], order[i], kinds)
		}
	}
	if pos("pool-closing") > pos("worker-stopping") {
		t.Errorf("pool-closing after worker-stopping in %v", kinds)
	}
}

func TestObserverPanicDoesNotKillWorker(t *testing.T) {
	pool := newTestPool(t, 1, WithObserver(ObserverFunc(func(e Event) {
		if e.Kind == EventTaskCompleted {
			panic("observer bug")
		}
	})))

	var ran int64
	for i := 0; i < 3; i++ {
		_ = pool.Submit(TaskFunc(func() { atomic.AddInt64(&ran, 1) }))
	}
	pool.Shutdown()

	if got := atomic.LoadInt64(&ran); got != 3 {
		t.Errorf("tasks run = %d, want 3", got)
	}
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	pool, err := New(1, WithName("logged"), WithLogger(core.NewLogger(&buf, core.LevelDebug)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_ = pool.Submit(NewNamedTask("fine", func() {}))
	_ = pool.Submit(NewNamedTask("broken", func() { panic("nope") }))
	pool.Shutdown()
	_ = pool.Submit(NewNamedTask("late", func() {}))

	out := buf.String()
	for _, want := range []string{
		"[INFO] ",
		"[logged] worker 0 worker-started",
		"completed fine",
		"[ERROR] ",
		"task broken faulted",
		"[WARN] ",
		"task late rejected",
		"[logged] pool-closed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestTaskNames(t *testing.T) {
	if got := taskName(TaskFunc(func() {})); got != "task" {
		t.Errorf("taskName(TaskFunc) = %q, want task", got)
	}
	if got := taskName(NewNamedTask("conn", func() {})); got != "conn" {
		t.Errorf("taskName(named) = %q, want conn", got)
	}
	if got := taskName(NewNamedTask("", func() {})); got != "task" {
		t.Errorf("taskName(empty name) = %q, want task", got)
	}
}

func TestEventKindString(t *testing.T) {
	if got := EventTaskFailed.String(); got != "task-failed" {
		t.Errorf("String() = %q", got)
	}
	if got := EventKind(99).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}

func TestWorker_StartedPrecedesPoolClosing(t *testing.T) {
	for i := 0; i < 20; i++ {
		rec := &eventRecorder{}
		pool, err := New(2, WithLogger(core.NewNopLogger()), WithObserver(rec))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		for j := 0; j < 5; j++ {
			_ = pool.Submit(TaskFunc(func() {}))
		}
		pool.Shutdown()

		rec.mu.Lock()
		started, closing := 0, -1
		for k, e := range rec.events {
			switch e.Kind {
			case EventWorkerStarted:
				if closing >= 0 {
					t.Errorf("run %d: worker %d started after pool-closing (event %d)", i, e.WorkerID, k)
				}
				started++
			case EventPoolClosing:
				closing = k
			}
		}
		rec.mu.Unlock()

		if started != 2 || closing < 0 {
			t.Fatalf("run %d: worker-started = %d, pool-closing at %d", i, started, closing)
		}
	}
}

func TestObserverMaySubmitOnPoolClosing(t *testing.T) {
	var pool *Pool
	errCh := make(chan error, 1)
	observer := ObserverFunc(func(e Event) {
		if e.Kind == EventPoolClosing {
			errCh <- pool.Submit(TaskFunc(func() {}))
		}
	})

	var err error
	pool, err = New(1, WithLogger(core.NewNopLogger()), WithObserver(observer))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown deadlocked on an observer that submits")
	}
	if err := <-errCh; !errors.Is(err, ErrRejected) {
		t.Errorf("Submit from pool-closing observer = %v, want ErrRejected", err)
	}
}
