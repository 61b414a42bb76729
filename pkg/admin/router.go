// Package admin serves the operational HTTP endpoints of poold:
// /metrics, /healthz and /stats.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/poold/pkg/core/concurrency"
	promx "github.com/fluxorio/poold/pkg/observability/prometheus"
	"github.com/fluxorio/poold/pkg/tcp"
)

// Source is what the admin endpoints report on. *tcp.TCPServer implements it.
type Source interface {
	Metrics() tcp.ServerMetrics
	Pool() *concurrency.Pool
}

// PoolStatus is the JSON form of concurrency.PoolStats.
type PoolStatus struct {
	Name        string  `json:"name"`
	State       string  `json:"state"`
	Workers     int     `json:"workers"`
	Alive       int     `json:"alive"`
	Busy        int     `json:"busy"`
	Queued      int     `json:"queued"`
	Submitted   int64   `json:"submitted"`
	Completed   int64   `json:"completed"`
	Failed      int64   `json:"failed"`
	Rejected    int64   `json:"rejected"`
	Utilization float64 `json:"utilization"`
}

// ConnStatus is the JSON form of the connection counters in tcp.ServerMetrics.
type ConnStatus struct {
	Active      int64   `json:"active"`
	MaxConns    int     `json:"max_conns"`
	Utilization float64 `json:"utilization"`
	Accepted    int64   `json:"accepted"`
	Rejected    int64   `json:"rejected"`
	Handled     int64   `json:"handled"`
	Errors      int64   `json:"errors"`
	Faulted     int64   `json:"faulted"`
}

// Stats is the /stats response body.
type Stats struct {
	Pool        PoolStatus `json:"pool"`
	Connections ConnStatus `json:"connections"`
}

type health struct {
	Status string `json:"status"`
}

// NewRouter builds the admin routes. A nil gatherer serves the default
// poold registry on /metrics.
func NewRouter(src Source, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promx.Handler(gatherer)).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthHandler(src)).Methods(http.MethodGet)
	router.HandleFunc("/stats", statsHandler(src)).Methods(http.MethodGet)
	return router
}

// healthHandler answers 200 while the pool accepts work and 503 once it is
// draining or closed.
func healthHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src.Pool().IsRunning() {
			sendJSON(w, http.StatusOK, health{Status: "ok"})
			return
		}
		sendJSON(w, http.StatusServiceUnavailable, health{Status: "draining"})
	}
}

func statsHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, http.StatusOK, snapshot(src))
	}
}

func snapshot(src Source) Stats {
	ps := src.Pool().Stats()
	sm := src.Metrics()
	return Stats{
		Pool: PoolStatus{
			Name:        ps.Name,
			State:       ps.State.String(),
			Workers:     ps.Workers,
			Alive:       ps.Alive,
			Busy:        ps.Busy,
			Queued:      ps.Queued,
			Submitted:   ps.Submitted,
			Completed:   ps.Completed,
			Failed:      ps.Failed,
			Rejected:    ps.Rejected,
			Utilization: ps.Utilization(),
		},
		Connections: ConnStatus{
			Active:      sm.ActiveConnections,
			MaxConns:    sm.MaxConns,
			Utilization: sm.ConnUtilization,
			Accepted:    sm.TotalAccepted,
			Rejected:    sm.RejectedConnections,
			Handled:     sm.HandledConnections,
			Errors:      sm.ErrorConnections,
			Faulted:     sm.FaultedConnections,
		},
	}
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
