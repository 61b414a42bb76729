package concurrency

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxorio/poold/pkg/core"
)

// PoolConfig configures a Pool
type PoolConfig struct {
	Name    string // Used in events and logs
	Workers int    // Number of worker goroutines, at least 1

	// Logger receives pool events through a logging observer.
	// Nil means core.NewDefaultLogger().
	Logger core.Logger

	// Observer receives every event in addition to the logger. Optional.
	Observer Observer
}

// DefaultPoolConfig returns default pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Name:    "pool",
		Workers: 8,
	}
}

// Option adjusts a PoolConfig built by New.
type Option func(*PoolConfig)

// WithName sets the pool name reported in events.
func WithName(name string) Option {
	return func(c *PoolConfig) { c.Name = name }
}

// WithLogger sets the logger that receives pool events.
func WithLogger(logger core.Logger) Option {
	return func(c *PoolConfig) { c.Logger = logger }
}

// WithObserver adds an event observer.
func WithObserver(o Observer) Option {
	return func(c *PoolConfig) { c.Observer = o }
}

// Pool runs submitted tasks on a fixed set of worker goroutines that share
// one unbounded FIFO queue.
//
// A Pool is Running until Shutdown is first called and Closed afterwards.
// Every task accepted by Submit runs exactly once, including tasks accepted
// just before a concurrent Shutdown: submission and the stop signals are
// ordered by the same lock, so accepted tasks are always queued ahead of
// every stop signal. Tasks submitted after Shutdown has begun are rejected.
//
// Call Shutdown (or Close) when done. A Pool that becomes unreachable
// without it is shut down by a runtime cleanup, which is a safety net and
// not a substitute for deterministic teardown.
type Pool struct {
	p *pool
}

type pool struct {
	name     string
	observer Observer

	// mu orders the state transition and every send on the queue.
	mu      sync.Mutex
	state   atomic.Int32
	queue   *queue
	workers []*worker
	done    chan struct{}

	alive     atomic.Int64
	busy      atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	size      int
}

// New creates a pool with the given number of workers.
func New(workers int, opts ...Option) (*Pool, error) {
	config := DefaultPoolConfig()
	config.Workers = workers
	for _, opt := range opts {
		opt(&config)
	}
	return NewPool(config)
}

// NewPool creates a Pool and starts its workers.
// Returns ErrInvalidWorkerCount if config.Workers < 1.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.Workers < 1 {
		return nil, fmt.Errorf("new pool with %d workers: %w", config.Workers, ErrInvalidWorkerCount)
	}
	if config.Name == "" {
		config.Name = DefaultPoolConfig().Name
	}
	if config.Logger == nil {
		config.Logger = core.NewDefaultLogger()
	}

	p := &pool{
		name:     config.Name,
		observer: Observers(NewLoggingObserver(config.Logger), config.Observer),
		queue:    newQueue(),
		workers:  make([]*worker, config.Workers),
		done:     make(chan struct{}),
		size:     config.Workers,
	}
	for i := range p.workers {
		p.workers[i] = newWorker(i)
		p.run(p.workers[i])
	}

	handle := &Pool{p: p}
	runtime.AddCleanup(handle, func(p *pool) {
		// Cleanups share one goroutine; joining may take as long as the
		// slowest running task.
		go p.abandon()
	}, p)
	return handle, nil
}

// Submit queues task for execution and returns without waiting for it to
// start. It returns ErrNilTask for a nil task, ErrRejected once Shutdown has
// begun, and ErrDispatch if no worker is left to receive it. In every error
// case the task is not queued and will not run.
func (p *Pool) Submit(task Task) error {
	return p.p.submit(task)
}

// Shutdown stops the pool: it rejects further submissions, sends one stop
// signal per worker behind every task already queued, and blocks until all
// workers have exited. Calling it again, concurrently or later, blocks until
// that first shutdown has completed and has no other effect.
//
// Shutdown must not be called from inside a task running on the same pool.
func (p *Pool) Shutdown() {
	_ = p.p.shutdown(context.Background())
}

// ShutdownContext is Shutdown with a bound on the wait. If ctx ends first
// the pool is still Closed and its workers keep draining in the background;
// the returned error wraps ctx.Err().
func (p *Pool) ShutdownContext(ctx context.Context) error {
	return p.p.shutdown(ctx)
}

// Close implements io.Closer. It is Shutdown and always returns nil.
func (p *Pool) Close() error {
	p.Shutdown()
	return nil
}

// Done returns a channel closed once every worker has exited after Shutdown.
func (p *Pool) Done() <-chan struct{} {
	return p.p.done
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.p.name
}

// Workers returns the configured number of workers.
func (p *Pool) Workers() int {
	return p.p.size
}

// IsRunning reports whether the pool still accepts submissions.
func (p *Pool) IsRunning() bool {
	return State(p.p.state.Load()) == StateRunning
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return p.p.stats()
}

func (p *pool) submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	name := taskName(task)

	p.mu.Lock()
	err := p.enqueueLocked(task)
	p.mu.Unlock()

	if err != nil {
		p.rejected.Add(1)
		p.emit(Event{Kind: EventTaskRejected, WorkerID: NoWorker, Task: name, Err: err})
		return err
	}
	p.emit(Event{Kind: EventTaskSubmitted, WorkerID: NoWorker, Task: name})
	return nil
}

func (p *pool) enqueueLocked(task Task) error {
	if State(p.state.Load()) == StateClosed {
		return ErrRejected
	}
	if err := p.queue.send(runMsg(task)); err != nil {
		return err
	}
	p.submitted.Add(1)
	return nil
}

// close flips the pool to Closed and queues one stop per worker.
// It reports whether this call performed the transition.
//
// Every accepted task was queued before the flip, so the stops sent after
// it still land behind all of them. pool-closing is emitted with mu
// released; an observer may call Submit and gets ErrRejected.
func (p *pool) close(reason error) bool {
	p.mu.Lock()
	closed := p.state.CompareAndSwap(int32(StateRunning), int32(StateClosed))
	p.mu.Unlock()
	if !closed {
		return false
	}

	p.emit(Event{Kind: EventPoolClosing, WorkerID: NoWorker, Err: reason})

	p.mu.Lock()
	defer p.mu.Unlock()
	for range p.workers {
		// Cannot fail: the queue is only detached after every worker stopped.
		_ = p.queue.send(stopMsg())
	}
	return true
}

func (p *pool) shutdown(ctx context.Context) error {
	if p.close(nil) {
		go p.join()
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown %s: %w", p.name, ctx.Err())
	}
}

// join waits for every worker, in order, then releases the handles.
func (p *pool) join() {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()

	for _, w := range workers {
		<-w.done
	}

	p.queue.detach()

	p.mu.Lock()
	p.workers = nil
	p.mu.Unlock()

	p.emit(Event{Kind: EventPoolClosed, WorkerID: NoWorker})
	close(p.done)
}

// abandon is the runtime cleanup path for a Pool dropped without Shutdown.
func (p *pool) abandon() {
	if p.close(errAbandoned) {
		p.join()
	}
}

func (p *pool) stats() PoolStats {
	return PoolStats{
		Name:      p.name,
		State:     State(p.state.Load()),
		Workers:   p.size,
		Alive:     int(p.alive.Load()),
		Busy:      int(p.busy.Load()),
		Queued:    p.queue.pendingTasks(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// emit stamps e and hands it to the observer. An observer panic is
// swallowed so it cannot take a worker down with it.
func (p *pool) emit(e Event) {
	e.Pool = p.name
	e.Time = time.Now()
	defer func() { _ = recover() }()
	p.observer.Observe(e)
}
