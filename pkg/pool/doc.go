/*
Package pool provides a pool of isolated execution workers for
offloading CPU-intensive work from the caller's goroutines.

Callers submit typed tasks; the pool dispatches each one to a worker
with its own runner, collects the result or error, and reports it
through a single-shot completion handle. Workers communicate with the
pool only through discrete messages, so the control core stays a single
cooperative context with no shared-state locking.

Basic usage:

	r := runner.New(map[string]runner.Handler{
		"add": func(tc *runner.TaskContext) (any, error) {
			in := tc.Data.(map[string]int)
			return in["a"] + in["b"], nil
		},
	})

	p := pool.New(r.Factory, 4)
	defer p.Close()

	result, err := p.Run(ctx, &pool.Task{Type: "add", Data: map[string]int{"a": 2, "b": 7}})

Completions:

Submit returns immediately with a *Completion. The completion resolves
with the worker's result or fails with an error, exactly once:

	c := p.Submit(task)
	select {
	case <-c.Done():
		data, err := c.Result()
		...
	case <-time.After(timeout):
		...
	}

Wait lists:

With the default configuration queued tasks run in submission order.
Setting Config.UsePriorityTaskQueue orders the wait list by
Task.Priority, lower values first; the order among equal priorities is
unspecified.

Cooperative abort:

A task carrying a context is aborted when that context is canceled. A
queued task is rejected in place. A dispatched task has its shared abort
flag raised; worker handlers observe it at their CheckAbort call points,
while the caller's completion fails with ErrAborted immediately. A
result racing the abort never overwrites the aborted outcome.

Dedicated workers:

AcquireWorker reserves a worker for exclusive use; tasks go to it with
SubmitTo, bypassing the wait list. Acquire requests outrank queued tasks
when a worker frees up and are served in FIFO order. ReleaseWorker
returns the worker to the pool.

Autoscaling:

With MinPoolSize/MaxPoolSize sizing the pool adds one worker whenever a
task or acquire request had to wait and no idle worker or crash
replacement is pending, up to MaxPoolSize. A periodic timer reclaims one
surplus idle worker per tick down to MinPoolSize. Workers that crash are
replaced automatically; their task fails with a CrashError.
*/
package pool
