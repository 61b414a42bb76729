package concurrency

import (
	"github.com/fluxorio/poold/pkg/core"
)

// loggingObserver writes pool events to a core.Logger.
// Faults go to Error, rejections to Warn, worker and pool lifecycle to Info
// and per-task traffic to Debug.
type loggingObserver struct {
	logger core.Logger
}

// NewLoggingObserver returns an Observer that logs every event.
func NewLoggingObserver(logger core.Logger) Observer {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	return &loggingObserver{logger: logger}
}

func (o *loggingObserver) Observe(e Event) {
	switch e.Kind {
	case EventTaskFailed:
		o.logger.Errorf("[%s] %+v", e.Pool, e.Err)
	case EventTaskRejected:
		o.logger.Warnf("[%s] task %s rejected: %v", e.Pool, e.Task, e.Err)
	case EventWorkerStarted, EventWorkerStopping, EventWorkerStopped:
		o.logger.Infof("[%s] worker %d %s", e.Pool, e.WorkerID, e.Kind)
	case EventPoolClosing, EventPoolClosed:
		if e.Err != nil {
			o.logger.Warnf("[%s] %s: %v", e.Pool, e.Kind, e.Err)
			return
		}
		o.logger.Infof("[%s] %s", e.Pool, e.Kind)
	case EventTaskCompleted:
		o.logger.Debugf("[%s] worker %d completed %s in %s", e.Pool, e.WorkerID, e.Task, e.Duration)
	case EventTaskDispatched:
		o.logger.Debugf("[%s] worker %d running %s", e.Pool, e.WorkerID, e.Task)
	default:
		o.logger.Debugf("[%s] %s %s", e.Pool, e.Kind, e.Task)
	}
}
