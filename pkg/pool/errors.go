package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed reports a submission or acquisition against a closed
	// pool. Tasks still registered at close time fail with it as well.
	ErrClosed = errors.New("pool: closed")

	// ErrAborted reports caller cancellation, either before dispatch or
	// observed cooperatively inside the worker.
	ErrAborted = errors.New("pool: task aborted")

	errNilTask = errors.New("pool: nil task")
)

// DispatchError reports a synchronous failure to post a task message to
// a worker. The task fails with it and the worker returns to the idle
// set.
type DispatchError struct {
	Cause error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("pool: dispatch failed: %v", e.Cause)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// CrashError reports a worker-level fault. The task bound to the crashed
// worker fails with it and the worker is replaced.
type CrashError struct {
	WorkerID int
	Value    any
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("pool: worker %d crashed: %v", e.WorkerID, e.Value)
}

// UnknownTaskTypeError is posted by the worker-side dispatcher when no
// handler is registered for a task's type.
type UnknownTaskTypeError struct {
	TaskType string
}

func (e *UnknownTaskTypeError) Error() string {
	return fmt.Sprintf("pool: unknown task type %q", e.TaskType)
}
