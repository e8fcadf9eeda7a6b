/*
Package workerpool provides a pool of isolated execution workers for Go
applications, with ordered or priority wait lists, exclusive worker
acquisition, cooperative task abort and demand-driven autoscaling.

Pool core (pkg/pool):
  - typed task submission with single-shot completion handles
  - FIFO or priority wait lists
  - acquire/release of dedicated workers
  - crash detection and automatic worker replacement
  - auto-grow under load, timer-driven auto-shrink

Worker side (pkg/runner):
  - handler registry keyed by task type
  - progress events and cooperative abort checks

Instrumentation (pkg/metrics):
  - Prometheus gauges, counters and histograms per pool

Example usage:

	import (
		"github.com/nqb9811/worker-pool/pkg/pool"
		"github.com/nqb9811/worker-pool/pkg/runner"
	)

	r := runner.New(map[string]runner.Handler{
		"add": func(tc *runner.TaskContext) (any, error) {
			in := tc.Data.(map[string]int)
			return in["a"] + in["b"], nil
		},
	})

	p := pool.New(r.Factory, 4)
	defer p.Close()

	result, err := p.Run(ctx, &pool.Task{
		Type: "add",
		Data: map[string]int{"a": 2, "b": 7},
	})
*/
package workerpool
