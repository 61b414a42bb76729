package prometheus

import (
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxorio/poold/pkg/tcp"
)

// ConnectionMiddleware records per-connection metrics around the handler.
// A panicking handler is counted and the panic continues to the pool.
func ConnectionMiddleware(m *Metrics) tcp.Middleware {
	if m == nil {
		m = GetMetrics()
	}
	return func(next tcp.ConnectionHandler) tcp.ConnectionHandler {
		return func(ctx *tcp.ConnContext) (err error) {
			start := time.Now()
			m.ConnectionsInFlight.Inc()

			result := "panic"
			defer func() {
				m.ConnectionsInFlight.Dec()
				m.ConnectionsTotal.WithLabelValues(result).Inc()
				m.ConnectionDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
			}()

			err = next(ctx)
			if err != nil {
				result = "error"
			} else {
				result = "ok"
			}
			return err
		}
	}
}

// CountRejects wraps a reject handler so every refused connection is
// counted by reason before next runs.
func CountRejects(m *Metrics, next tcp.RejectHandler) tcp.RejectHandler {
	if m == nil {
		m = GetMetrics()
	}
	return func(conn net.Conn, err error) {
		m.ConnectionsRejected.WithLabelValues(rejectReason(err)).Inc()
		if next != nil {
			next(conn, err)
		}
	}
}

// Handler serves the metrics in gatherer in the Prometheus text format.
// A nil gatherer means DefaultRegistry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = DefaultRegistry
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
