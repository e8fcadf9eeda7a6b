// Package runner implements the worker-side task dispatcher: it receives
// task messages from the pool, routes them to registered handlers by
// task type, and posts results and progress events back.
package runner

import (
	"github.com/nqb9811/worker-pool/pkg/pool"
)

// Handler executes one task type. Returning an error fails the task with
// that error. A panic is a worker-level fault: the pool rejects the task
// and replaces the worker.
type Handler func(tc *TaskContext) (any, error)

// TaskContext is a handler's view of its dispatched task.
type TaskContext struct {
	// Type and Data mirror the submitted task.
	Type string
	Data any

	// Transfer holds handles moved from the submitter.
	Transfer []any

	emit func(pool.WorkerMessage)
	flag *pool.AbortFlag
}

// EmitEvent posts a progress event, delivered to the task's OnEvent
// callback on the pool's control context.
func (tc *TaskContext) EmitEvent(event string, data any) {
	tc.emit(pool.WorkerMessage{Type: pool.MessageEvent, Event: event, Data: data})
}

// CheckAbort returns ErrAborted once the pool has raised the task's
// abort flag. Long computations should call it at safe points and bail
// out with the returned error.
func (tc *TaskContext) CheckAbort() error {
	if tc.flag != nil && tc.flag.Raised() {
		return pool.ErrAborted
	}
	return nil
}

// Runner routes task messages to handlers by task type.
type Runner struct {
	handlers map[string]Handler
}

// New builds a Runner over the given handler table.
func New(handlers map[string]Handler) *Runner {
	h := make(map[string]Handler, len(handlers))
	for name, fn := range handlers {
		h[name] = fn
	}
	return &Runner{handlers: h}
}

// Factory adapts the runner to the pool's worker factory; every worker
// shares the same handler table.
func (r *Runner) Factory(any) pool.Runner { return r }

// Run consumes task messages until the inbox is closed. Each message
// produces exactly one RESULT reply; a task of an unregistered type
// fails with an UnknownTaskTypeError.
func (r *Runner) Run(inbox <-chan pool.TaskMessage, emit func(pool.WorkerMessage)) {
	for msg := range inbox {
		h, ok := r.handlers[msg.Type]
		if !ok {
			emit(pool.WorkerMessage{
				Type: pool.MessageResult,
				Err:  &pool.UnknownTaskTypeError{TaskType: msg.Type},
			})
			continue
		}
		tc := &TaskContext{
			Type:     msg.Type,
			Data:     msg.Data,
			Transfer: msg.Transfer,
			emit:     emit,
			flag:     msg.AbortFlag,
		}
		data, err := h(tc)
		emit(pool.WorkerMessage{Type: pool.MessageResult, Err: err, Data: data})
	}
}
