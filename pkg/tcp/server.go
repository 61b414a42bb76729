package tcp

import (
	"context"
	"net"

	"github.com/fluxorio/poold/pkg/core"
)

// Server represents a TCP server abstraction.
type Server interface {
	// Start starts the server (blocking, like HTTP servers).
	Start() error

	// Stop stops the server gracefully.
	Stop() error

	// SetHandler sets the connection handler (fail-fast on nil).
	SetHandler(handler ConnectionHandler)

	// Metrics returns current server metrics.
	Metrics() ServerMetrics
}

// ConnectionHandler handles a single TCP connection on a pool worker.
// Implementations should be fail-fast and must not block forever.
// The server closes the connection after handler returns.
type ConnectionHandler func(ctx *ConnContext) error

// Middleware wraps a ConnectionHandler.
type Middleware func(next ConnectionHandler) ConnectionHandler

// RejectHandler is called on the accept goroutine for a connection that
// will not be handled, either because the pool refused it or because the
// connection limit was reached. err is concurrency.ErrRejected,
// concurrency.ErrDispatch or ErrTooManyConnections. The server closes conn
// after it returns, so it must be quick.
type RejectHandler func(conn net.Conn, err error)

// ConnContext carries one accepted connection into its handler.
type ConnContext struct {
	// Context is cancelled when the server stops and carries the connection
	// id (core.ConnID).
	Context context.Context
	Conn    net.Conn
	ID      string
	Logger  core.Logger

	LocalAddr  net.Addr
	RemoteAddr net.Addr
}

// ServerMetrics provides TCP server performance metrics.
type ServerMetrics struct {
	Workers             int     // Number of pool workers
	BusyWorkers         int     // Workers currently handling a connection
	QueuedConnections   int     // Accepted connections waiting for a worker
	ActiveConnections   int64   // Queued plus in-flight connections
	MaxConns            int     // Connection limit, 0 when unlimited
	ConnUtilization     float64 // ActiveConnections relative to MaxConns, in percent
	TotalAccepted       int64   // Total connections accepted
	RejectedConnections int64   // Connections refused by the pool or the limit
	HandledConnections  int64   // Handlers that returned
	ErrorConnections    int64   // Handlers that returned an error
	FaultedConnections  int64   // Handlers that panicked
}
