package concurrency

// Task represents a unit of work that can be executed by a Pool.
// Implementations are handed to another goroutine and must not rely on
// goroutine-local state.
type Task interface {
	// Run performs the work. The pool does not observe a result.
	Run()
}

// Named is implemented by tasks that want a readable name in events and logs.
type Named interface {
	Name() string
}

// TaskFunc is a function type that implements Task
// Allows functions to be used as tasks without creating a struct
type TaskFunc func()

// Run implements Task interface for TaskFunc
func (f TaskFunc) Run() {
	f()
}

// namedTask wraps a function with a custom name
type namedTask struct {
	name string
	fn   func()
}

// NewNamedTask creates a Task that reports name through the Named interface.
func NewNamedTask(name string, fn func()) Task {
	return &namedTask{
		name: name,
		fn:   fn,
	}
}

func (nt *namedTask) Run() {
	nt.fn()
}

func (nt *namedTask) Name() string {
	return nt.name
}

const defaultTaskName = "task"

func taskName(t Task) string {
	if n, ok := t.(Named); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	return defaultTaskName
}
