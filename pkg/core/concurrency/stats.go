package concurrency

// State is the lifecycle state of a Pool.
type State int32

const (
	// StateRunning accepts submissions.
	StateRunning State = iota
	// StateClosed rejects submissions. A pool enters it exactly once.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PoolStats is a point-in-time snapshot of a pool.
type PoolStats struct {
	Name      string
	State     State
	Workers   int   // Configured worker count
	Alive     int   // Workers that have not yet consumed a stop signal
	Busy      int   // Workers currently running a task
	Queued    int   // Tasks waiting in the queue
	Submitted int64 // Tasks accepted by Submit
	Completed int64 // Tasks that returned normally
	Failed    int64 // Tasks that faulted (TaskFault)
	Rejected  int64 // Submissions refused (ErrRejected or ErrDispatch)
}

// Utilization is the busy share of live workers, in percent.
func (s PoolStats) Utilization() float64 {
	if s.Alive == 0 {
		return 0
	}
	return float64(s.Busy) / float64(s.Alive) * 100
}
