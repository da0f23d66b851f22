package snapshot

import (
	"errors"
	"sync"
)

// Executor errors.
var (
	ErrExecutorClosed    = errors.New("snapshot: executor closed")
	ErrExecutorSaturated = errors.New("snapshot: executor queue full")
)

// Executor runs asynchronous snapshot phases on a bounded worker pool.
// Submit never blocks; Close drains queued tasks before returning.
type Executor struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewExecutor creates an executor with the given worker count and queue
// depth. Non-positive values fall back to 1 worker and a queue of 16.
func NewExecutor(workers, depth int) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 16
	}
	e := &Executor{tasks: make(chan func(), depth)}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for task := range e.tasks {
		task()
	}
}

// Submit enqueues a task for asynchronous execution.
func (e *Executor) Submit(task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	select {
	case e.tasks <- task:
		return nil
	default:
		return ErrExecutorSaturated
	}
}

// Close stops accepting tasks, runs everything already queued, and
// waits for the workers to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.wg.Wait()
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()
	e.wg.Wait()
}
