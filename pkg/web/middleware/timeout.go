package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fluxorio/poold/pkg/core"
	"github.com/fluxorio/poold/pkg/core/failfast"
	"github.com/fluxorio/poold/pkg/tcp"
)

// ErrConnTimeout wraps the handler error of a connection that ran past its
// Timeout.
var ErrConnTimeout = errors.New("connection timeout")

// TimeoutConfig configures connection timeout middleware
type TimeoutConfig struct {
	// Timeout bounds the whole connection, reading and writing included.
	Timeout time.Duration

	// Logger is the logger to use for timeout logging (default: core.NewDefaultLogger())
	Logger core.Logger
}

// DefaultTimeoutConfig returns a default timeout configuration
func DefaultTimeoutConfig(timeout time.Duration) TimeoutConfig {
	return TimeoutConfig{
		Timeout: timeout,
		Logger:  core.NewDefaultLogger(),
	}
}

// Timeout puts one absolute deadline on the connection and on ctx.Context.
// The deadline replaces the server's per-direction read and write
// deadlines, so a slow client cannot hold a worker longer than Timeout.
func Timeout(config TimeoutConfig) tcp.Middleware {
	failfast.If(config.Timeout > 0, "timeout must be positive, got %s", config.Timeout)

	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next tcp.ConnectionHandler) tcp.ConnectionHandler {
		return func(ctx *tcp.ConnContext) error {
			deadline := time.Now().Add(config.Timeout)
			_ = ctx.Conn.SetDeadline(deadline)

			parent := ctx.Context
			timeoutCtx, cancel := context.WithDeadline(parent, deadline)
			ctx.Context = timeoutCtx
			defer func() {
				cancel()
				ctx.Context = parent
			}()

			err := next(ctx)
			if err != nil && !time.Now().Before(deadline) {
				logger.Warnf("conn %s: timed out after %s", ctx.ID, config.Timeout)
				return fmt.Errorf("%w after %s: %v", ErrConnTimeout, config.Timeout, err)
			}
			return err
		}
	}
}
