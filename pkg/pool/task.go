package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// EventSentToWorker is delivered to Task.OnEvent once the task message
// has been posted to a worker.
const EventSentToWorker = "sent to worker"

// Task describes a unit of work to execute in a worker. A Task must not
// be mutated after submission; resubmitting the same *Task before it
// reaches a terminal state returns the original completion.
type Task struct {
	// Type routes the task to a worker-side handler.
	Type string

	// Data is the payload handed to the worker verbatim.
	Data any

	// Priority orders the task in a priority wait list; lower values are
	// dispatched first. Ignored in FIFO mode.
	Priority int

	// Ctx optionally carries the caller's cancellation. A context
	// already canceled at submission rejects the task immediately with
	// ErrAborted; cancellation afterwards aborts it cooperatively.
	Ctx context.Context

	// Transfer holds handles passed to the worker without copying.
	Transfer []any

	// OnEvent, if set, receives progress events from the worker. It is
	// invoked on the pool's control context and must not block or call
	// back into the pool synchronously.
	OnEvent func(event string, data any)
}

// AbortFlag is the atomic word shared between the pool and a worker.
// The pool writes it 0 to 1 exactly once; the worker polls it at safe
// points inside user code.
type AbortFlag struct {
	v atomic.Uint32
}

// Set raises the flag.
func (f *AbortFlag) Set() { f.v.Store(1) }

// Raised reports whether the flag has been set.
func (f *AbortFlag) Raised() bool { return f.v.Load() != 0 }

// Completion is the single-shot handle for a submitted task. It resolves
// with the worker's result or fails with an error, exactly once.
type Completion struct {
	done chan struct{}
	once sync.Once
	data any
	err  error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func failedCompletion(err error) *Completion {
	c := newCompletion()
	c.fail(err)
	return c
}

// Done is closed once the task has reached a terminal state.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Result returns the task outcome. Valid only after Done is closed.
func (c *Completion) Result() (any, error) { return c.data, c.err }

// Wait blocks until the task is terminal or ctx is done.
func (c *Completion) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.data, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Completion) resolve(data any) {
	c.once.Do(func() {
		c.data = data
		close(c.done)
	})
}

func (c *Completion) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// taskInfo is the pool-owned state of a registered task. All fields are
// owned by the control context.
type taskInfo struct {
	id         uint64
	task       *Task
	completion *Completion
	abortFlag  *AbortFlag
	aborted    bool

	// stopWatch detaches the abort subscription; nil when the task has
	// no context or the watcher is already stopped.
	stopWatch chan struct{}

	dispatchedAt time.Time
}
