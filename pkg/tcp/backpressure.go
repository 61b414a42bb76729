package tcp

import (
	"errors"
	"sync/atomic"
)

// ErrTooManyConnections is passed to the RejectHandler when MaxConns is reached.
var ErrTooManyConnections = errors.New("tcp: connection limit reached")

// BackpressureController bounds the number of connections that are queued
// on or being handled by the pool. The pool queue itself is unbounded, so
// this is the only admission control between the listener and the workers.
type BackpressureController struct {
	capacity int64 // 0 means unlimited
	current  atomic.Int64
	rejected atomic.Int64
}

// NewBackpressureController creates a controller admitting up to capacity
// connections at once. capacity <= 0 admits everything and only counts.
func NewBackpressureController(capacity int) *BackpressureController {
	if capacity < 0 {
		capacity = 0
	}
	return &BackpressureController{capacity: int64(capacity)}
}

// TryAcquire reserves a slot (fail-fast). It returns false when the
// controller is at capacity.
func (bc *BackpressureController) TryAcquire() bool {
	if bc.capacity == 0 {
		bc.current.Add(1)
		return true
	}
	for {
		cur := bc.current.Load()
		if cur >= bc.capacity {
			bc.rejected.Add(1)
			return false
		}
		if bc.current.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release returns a slot taken by TryAcquire.
func (bc *BackpressureController) Release() {
	bc.current.Add(-1)
}

// GetMetrics returns current backpressure metrics.
func (bc *BackpressureController) GetMetrics() BackpressureMetrics {
	current := bc.current.Load()
	util := 0.0
	if bc.capacity > 0 {
		util = float64(current) / float64(bc.capacity) * 100
	}
	return BackpressureMetrics{
		Capacity:      bc.capacity,
		CurrentLoad:   current,
		RejectedCount: bc.rejected.Load(),
		Utilization:   util,
	}
}

// BackpressureMetrics provides backpressure statistics.
type BackpressureMetrics struct {
	Capacity      int64   // 0 when unlimited
	CurrentLoad   int64   // Slots in use
	RejectedCount int64   // TryAcquire calls that failed
	Utilization   float64 // CurrentLoad relative to Capacity, in percent
}
