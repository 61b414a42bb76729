package concurrency

import (
	"sync"
)

type messageKind uint8

const (
	runMessage messageKind = iota
	stopMessage
)

// message is the unit carried by the queue: either a task to run or a stop
// instruction for exactly one worker.
type message struct {
	kind messageKind
	task Task
}

func runMsg(t Task) message { return message{kind: runMessage, task: t} }

func stopMsg() message { return message{kind: stopMessage} }

// queue is an unbounded FIFO shared by every worker of a pool.
// Producers never wait for space; consumers park on a condition variable
// while the queue is empty. The mutex is only held long enough to push or
// pop a single message.
type queue struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	items    []message
	head     int
	runs     int // queued run messages
	detached bool
}

func newQueue() *queue {
	q := &queue{}
	q.nonEmpty = sync.NewCond(&q.mu)
	return q
}

// send appends m. It fails with ErrDispatch once the consumer side is gone.
func (q *queue) send(m message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.detached {
		return ErrDispatch
	}
	q.items = append(q.items, m)
	if m.kind == runMessage {
		q.runs++
	}
	q.nonEmpty.Signal()
	return nil
}

// receive blocks until a message is available and hands it to exactly one
// caller. Once the queue is detached it returns a stop message.
func (q *queue) receive() message {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.detached {
		q.nonEmpty.Wait()
	}
	if q.head == len(q.items) {
		return stopMsg()
	}
	m := q.items[q.head]
	q.items[q.head] = message{}
	q.head++
	if m.kind == runMessage {
		q.runs--
	}

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		for i := n; i < len(q.items); i++ {
			q.items[i] = message{}
		}
		q.items = q.items[:n]
		q.head = 0
	}
	return m
}

// detach marks the consumer side as gone. Pending messages are dropped and
// their count returned; blocked receivers wake up with a stop message.
// Safe to call more than once.
func (q *queue) detach() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.detached {
		return 0
	}
	q.detached = true
	n := len(q.items) - q.head
	q.items = nil
	q.head = 0
	q.runs = 0
	q.nonEmpty.Broadcast()
	return n
}

// len returns the number of messages waiting to be received.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// pendingTasks counts queued run messages, ignoring stop instructions.
func (q *queue) pendingTasks() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.runs
}
