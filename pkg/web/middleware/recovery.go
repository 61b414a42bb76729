package middleware

import (
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/poold/pkg/core"
	"github.com/fluxorio/poold/pkg/tcp"
	"github.com/fluxorio/poold/pkg/web"
)

// RecoveryConfig configures panic recovery middleware
type RecoveryConfig struct {
	// Logger is the logger to use for panic logging (default: core.NewDefaultLogger())
	Logger core.Logger

	// Swallow stops the panic here instead of passing it on to the pool.
	// The pool then never sees the fault.
	Swallow bool
}

// DefaultRecoveryConfig returns a default recovery configuration
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Logger: core.NewDefaultLogger(),
	}
}

// Recovery answers a connection whose handler panicked with a best-effort
// 500 response. Unless Swallow is set the panic is re-raised afterwards so
// the worker pool still records it as a task fault.
func Recovery(config RecoveryConfig) tcp.Middleware {
	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next tcp.ConnectionHandler) tcp.ConnectionHandler {
		return func(ctx *tcp.ConnContext) error {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				logger.Warnf("conn %s from %s: handler panicked: %v", ctx.ID, ctx.RemoteAddr, r)

				// Error intentionally ignored - best effort response for panic recovery
				_ = web.WriteStatus(ctx.Conn, fasthttp.StatusInternalServerError)

				if !config.Swallow {
					panic(r)
				}
			}()

			return next(ctx)
		}
	}
}
