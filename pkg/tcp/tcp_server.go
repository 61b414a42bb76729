package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxorio/poold/pkg/core"
	"github.com/fluxorio/poold/pkg/core/concurrency"
	"github.com/fluxorio/poold/pkg/core/failfast"
)

var (
	// ErrServerClosed is returned by Start after Stop has been called.
	ErrServerClosed = errors.New("tcp: server closed")

	// ErrServerStarted is returned by a second call to Start.
	ErrServerStarted = errors.New("tcp: server already started")
)

// TCPServer accepts connections on a single goroutine and hands each one to
// a fixed-size worker pool as a task. The accept loop never handles a
// connection itself.
type TCPServer struct {
	addr   string
	config *TCPServerConfig
	logger core.Logger

	pool         *concurrency.Pool
	backpressure *BackpressureController

	// ctx is the parent of every ConnContext.Context; cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	listener    net.Listener
	started     bool
	stopping    bool
	handler     ConnectionHandler
	middlewares []Middleware
	effective   ConnectionHandler
	onReject    RejectHandler

	stopOnce sync.Once
	stopErr  error

	// Metrics (atomic for thread-safety)
	totalAccepted       atomic.Int64
	rejectedConnections atomic.Int64
	handledConnections  atomic.Int64
	errorConnections    atomic.Int64
}

// TCPServerConfig configures the TCP server.
type TCPServerConfig struct {
	Addr string

	// Workers is the fixed number of pool workers handling connections.
	Workers int
	// MaxConns bounds connections that are queued or being handled.
	// 0 means unlimited.
	MaxConns int

	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	// Connection settings.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ShutdownTimeout bounds how long Stop and Start wait for queued and
	// in-flight connections. 0 waits until they are all done.
	ShutdownTimeout time.Duration
}

// DefaultTCPServerConfig returns a configuration with 8 workers and a
// 500ms read deadline per connection.
func DefaultTCPServerConfig(addr string) *TCPServerConfig {
	if addr == "" {
		addr = ":9000"
	}
	return &TCPServerConfig{
		Addr:         addr,
		Workers:      8,
		MaxConns:     0,
		TLSConfig:    nil,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

// Option customizes a TCPServer.
type Option func(*serverOptions)

type serverOptions struct {
	logger   core.Logger
	observer concurrency.Observer
	poolName string
}

// WithLogger sets the logger used by the server and its pool.
func WithLogger(logger core.Logger) Option {
	return func(o *serverOptions) { o.logger = logger }
}

// WithObserver adds an observer for the server's pool events.
func WithObserver(observer concurrency.Observer) Option {
	return func(o *serverOptions) { o.observer = observer }
}

// WithPoolName sets the name the pool reports in events and metrics.
func WithPoolName(name string) Option {
	return func(o *serverOptions) { o.poolName = name }
}

// NewTCPServer creates a TCP server and starts its worker pool.
func NewTCPServer(config *TCPServerConfig, opts ...Option) (*TCPServer, error) {
	if config == nil {
		config = DefaultTCPServerConfig("")
	}
	defaults := DefaultTCPServerConfig(config.Addr)
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.Workers < 1 {
		return nil, fmt.Errorf("tcp server: %w", concurrency.ErrInvalidWorkerCount)
	}
	if config.MaxConns < 0 {
		config.MaxConns = 0
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	o := serverOptions{poolName: "tcp-server"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = core.NewDefaultLogger()
	}

	pool, err := concurrency.NewPool(concurrency.PoolConfig{
		Name:     o.poolName,
		Workers:  config.Workers,
		Logger:   o.logger,
		Observer: o.observer,
	})
	if err != nil {
		return nil, fmt.Errorf("tcp server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &TCPServer{
		addr:         config.Addr,
		config:       config,
		logger:       o.logger,
		pool:         pool,
		backpressure: NewBackpressureController(config.MaxConns),
		ctx:          ctx,
		cancel:       cancel,
		handler:      defaultConnectionHandler,
		onReject:     defaultRejectHandler,
	}
	s.effective = s.handler
	return s, nil
}

func defaultConnectionHandler(ctx *ConnContext) error {
	// Default: do nothing. Connection will be closed by server.
	return nil
}

func defaultRejectHandler(net.Conn, error) {}

// SetHandler sets the connection handler (fail-fast on nil).
func (s *TCPServer) SetHandler(handler ConnectionHandler) {
	failfast.NotNil(handler, "tcp handler")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	s.rebuildHandlerLocked()
}

// Use adds middleware to the TCP server. Call before Start().
// Fail-fast: panics if any middleware is nil.
func (s *TCPServer) Use(mw ...Middleware) {
	if len(mw) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mw {
		failfast.NotNil(m, "tcp middleware")
		s.middlewares = append(s.middlewares, m)
	}
	s.rebuildHandlerLocked()
}

// OnReject sets the handler for connections that will not be served.
// A nil handler restores the default, which only closes the connection.
func (s *TCPServer) OnReject(h RejectHandler) {
	if h == nil {
		h = defaultRejectHandler
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReject = h
}

func (s *TCPServer) rebuildHandlerLocked() {
	h := s.handler
	// First added runs outermost.
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		h = s.middlewares[i](h)
	}
	s.effective = h
}

// ListeningAddr returns the actual listening address (useful when Addr is ":0").
// Returns empty string if not currently listening.
func (s *TCPServer) ListeningAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Pool returns the worker pool that runs connection tasks.
func (s *TCPServer) Pool() *concurrency.Pool {
	return s.pool
}

// Start listens on the configured address and runs the accept loop until
// Stop is called or accepting fails. It blocks. When the loop exits the
// pool is shut down, so every connection already accepted is still handled
// before Start returns, unless ShutdownTimeout runs out first. Start then
// returns the shutdown error.
func (s *TCPServer) Start() error {
	s.mu.Lock()
	switch {
	case s.stopping:
		s.mu.Unlock()
		return ErrServerClosed
	case s.started:
		s.mu.Unlock()
		return ErrServerStarted
	}
	s.started = true
	s.mu.Unlock()

	ln, err := s.listen()
	if err != nil {
		_ = s.shutdownPool()
		return fmt.Errorf("tcp listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = ln.Close()
		_ = s.shutdownPool()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Infof("tcp server listening on %s with %d workers", ln.Addr(), s.pool.Workers())

	err = s.acceptLoop(ln)
	if serr := s.shutdownPool(); err == nil {
		err = serr
	}
	return err
}

// shutdownPool shuts the pool down, waiting at most ShutdownTimeout.
// Workers still busy after that keep draining in the background.
func (s *TCPServer) shutdownPool() error {
	ctx := context.Background()
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	return s.pool.ShutdownContext(ctx)
}

func (s *TCPServer) listen() (net.Listener, error) {
	if s.config.TLSConfig != nil {
		return tls.Listen("tcp", s.addr, s.config.TLSConfig)
	}
	return net.Listen("tcp", s.addr)
}

func (s *TCPServer) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isStopping() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("tcp accept: %w", err)
		}
		s.totalAccepted.Add(1)
		s.dispatch(conn)
	}
}

// dispatch submits conn to the pool, or rejects it.
func (s *TCPServer) dispatch(conn net.Conn) {
	if !s.backpressure.TryAcquire() {
		s.reject(conn, ErrTooManyConnections)
		return
	}

	task := &connTask{server: s, conn: conn, id: core.NewConnID()}
	s.logger.Debugf("tcp conn %s: accepted from %s", task.id, conn.RemoteAddr())
	if err := s.pool.Submit(task); err != nil {
		s.backpressure.Release()
		s.reject(conn, err)
	}
}

func (s *TCPServer) reject(conn net.Conn, err error) {
	s.rejectedConnections.Add(1)

	s.mu.RLock()
	h := s.onReject
	s.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("panic in tcp reject handler (isolated): %v", r)
		}
		_ = conn.Close()
	}()
	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	h(conn, err)
}

// Stop closes the listener, which ends the accept loop, and waits for the
// pool to finish every accepted connection. It is safe to call more than
// once; later calls return the first call's result.
func (s *TCPServer) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		ln := s.listener
		s.listener = nil
		s.mu.Unlock()

		if ln != nil {
			_ = ln.Close()
		}

		s.stopErr = s.shutdownPool()
		s.cancel()
	})
	return s.stopErr
}

func (s *TCPServer) isStopping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopping
}

// Metrics returns current server metrics.
func (s *TCPServer) Metrics() ServerMetrics {
	stats := s.pool.Stats()
	bp := s.backpressure.GetMetrics()
	return ServerMetrics{
		Workers:             stats.Workers,
		BusyWorkers:         stats.Busy,
		QueuedConnections:   stats.Queued,
		ActiveConnections:   bp.CurrentLoad,
		MaxConns:            int(bp.Capacity),
		ConnUtilization:     bp.Utilization,
		TotalAccepted:       s.totalAccepted.Load(),
		RejectedConnections: s.rejectedConnections.Load(),
		HandledConnections:  s.handledConnections.Load(),
		ErrorConnections:    s.errorConnections.Load(),
		FaultedConnections:  stats.Failed,
	}
}

// connTask is the pool task for one accepted connection.
type connTask struct {
	server *TCPServer
	conn   net.Conn
	id     string
}

func (t *connTask) Name() string {
	return "conn " + t.id
}

// Run handles the connection. A handler panic is not recovered here; the
// connection is still closed and the pool reports the fault.
func (t *connTask) Run() {
	s := t.server
	defer func() {
		_ = t.conn.Close()
		s.backpressure.Release()
	}()

	s.mu.RLock()
	h := s.effective
	s.mu.RUnlock()

	now := time.Now()
	_ = t.conn.SetReadDeadline(now.Add(s.config.ReadTimeout))
	_ = t.conn.SetWriteDeadline(now.Add(s.config.WriteTimeout))

	cctx := &ConnContext{
		Context:    core.WithConnID(s.ctx, t.id),
		Conn:       t.conn,
		ID:         t.id,
		Logger:     s.logger,
		LocalAddr:  t.conn.LocalAddr(),
		RemoteAddr: t.conn.RemoteAddr(),
	}

	err := h(cctx)
	s.handledConnections.Add(1)
	if err != nil {
		s.errorConnections.Add(1)
		s.logger.Errorf("tcp conn %s from %s: %v", t.id, cctx.RemoteAddr, err)
	}
}
