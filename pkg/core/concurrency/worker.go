package concurrency

import (
	"time"
)

// worker is the handle the pool keeps for one worker goroutine.
// done is closed when the worker has consumed its stop signal and exited.
type worker struct {
	id   int
	done chan struct{}
}

func newWorker(id int) *worker {
	return &worker{
		id:   id,
		done: make(chan struct{}),
	}
}

// run starts the goroutine for w. worker-started is emitted here, before the
// pool can be closed, so it always precedes pool-closing.
func (p *pool) run(w *worker) {
	p.alive.Add(1)
	p.emit(Event{Kind: EventWorkerStarted, WorkerID: w.id})
	go p.loop(w)
}

// loop is the worker state machine: Waiting in receive, Executing in
// execute, Terminated on stop.
func (p *pool) loop(w *worker) {
	stopped := false
	defer func() {
		if !stopped {
			// A task ended this goroutine with runtime.Goexit. Put a fresh
			// goroutine behind the same handle so the stop accounting holds.
			go p.loop(w)
			return
		}
		p.alive.Add(-1)
		p.emit(Event{Kind: EventWorkerStopped, WorkerID: w.id})
		close(w.done)
	}()

	for {
		m := p.queue.receive()
		if m.kind == stopMessage {
			p.emit(Event{Kind: EventWorkerStopping, WorkerID: w.id})
			stopped = true
			return
		}
		p.execute(w.id, m.task)
	}
}

// execute runs one task with fault isolation. A panic or Goexit inside the
// task is reported as a *TaskFault and never reaches the worker loop's
// control flow, except that Goexit cannot be stopped from unwinding.
func (p *pool) execute(id int, t Task) {
	name := taskName(t)
	p.emit(Event{Kind: EventTaskDispatched, WorkerID: id, Task: name})

	p.busy.Add(1)
	start := time.Now()
	returned := false

	defer func() {
		p.busy.Add(-1)
		r := recover()
		elapsed := time.Since(start)

		if returned {
			p.completed.Add(1)
			p.emit(Event{Kind: EventTaskCompleted, WorkerID: id, Task: name, Duration: elapsed})
			return
		}

		// panic(nil) surfaces as *runtime.PanicNilError, so a nil r means Goexit.
		fault := newTaskFault(id, name, r, r == nil)
		p.failed.Add(1)
		p.emit(Event{Kind: EventTaskFailed, WorkerID: id, Task: name, Err: fault, Duration: elapsed})
	}()

	t.Run()
	returned = true
}
