package pool_test

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nqb9811/worker-pool/internal/testutil"
	"github.com/nqb9811/worker-pool/pkg/pool"
	"github.com/nqb9811/worker-pool/pkg/runner"
)

type addInput struct {
	A, B int
}

// newTestRunner builds the handler table used across the pool tests.
func newTestRunner() *runner.Runner {
	return runner.New(map[string]runner.Handler{
		"ping": func(tc *runner.TaskContext) (any, error) {
			return "pong", nil
		},
		"add": func(tc *runner.TaskContext) (any, error) {
			in := tc.Data.(addInput)
			return in.A + in.B, nil
		},
		"fail": func(tc *runner.TaskContext) (any, error) {
			return nil, errors.New("task says no")
		},
		"sleep": func(tc *runner.TaskContext) (any, error) {
			d := tc.Data.(time.Duration)
			deadline := time.Now().Add(d)
			for time.Now().Before(deadline) {
				if err := tc.CheckAbort(); err != nil {
					return nil, err
				}
				time.Sleep(time.Millisecond)
			}
			return nil, nil
		},
		// wait blocks until its gate channel is closed, checking the
		// abort flag so closed pools can reclaim the worker.
		"wait": func(tc *runner.TaskContext) (any, error) {
			gate := tc.Data.(chan struct{})
			for {
				select {
				case <-gate:
					return "done", nil
				default:
				}
				if err := tc.CheckAbort(); err != nil {
					return nil, err
				}
				time.Sleep(time.Millisecond)
			}
		},
		"spin": func(tc *runner.TaskContext) (any, error) {
			for {
				if err := tc.CheckAbort(); err != nil {
					return nil, err
				}
				time.Sleep(100 * time.Microsecond)
			}
		},
		"crash": func(tc *runner.TaskContext) (any, error) {
			panic("worker exploded")
		},
		"emit": func(tc *runner.TaskContext) (any, error) {
			tc.EmitEvent("progress", 50)
			tc.EmitEvent("progress", 100)
			return "finished", nil
		},
	})
}

func newTestPool(t *testing.T, cfg pool.Config) *pool.Pool {
	t.Helper()
	cfg.Factory = newTestRunner().Factory
	p, err := pool.NewWithConfig(cfg)
	testutil.AssertNoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestAddTasksFIFO(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 1})

	ping := p.Submit(&pool.Task{Type: "ping"})
	inputs := []addInput{{2, 7}, {10, 8}, {18, 9}}
	adds := make([]*pool.Completion, len(inputs))
	for i, in := range inputs {
		adds[i] = p.Submit(&pool.Task{Type: "add", Data: in})
	}

	data, err := ping.Wait(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, data.(string), "pong")

	results := make([]int, 0, len(adds))
	for _, c := range adds {
		data, err := c.Wait(ctx)
		testutil.AssertNoError(t, err)
		results = append(results, data.(int))
	}
	sort.Ints(results)
	testutil.AssertEqual(t, results[0], 9)
	testutil.AssertEqual(t, results[1], 18)
	testutil.AssertEqual(t, results[2], 27)
}

func TestPriorityDispatchOrder(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 1, UsePriorityTaskQueue: true})

	gate := make(chan struct{})
	occupier := p.Submit(&pool.Task{Type: "wait", Data: gate})

	var mu sync.Mutex
	var order []int
	adds := make([]*pool.Completion, 0, 3)
	for _, prio := range []int{2, 3, 1} {
		prio := prio
		adds = append(adds, p.Submit(&pool.Task{
			Type:     "add",
			Data:     addInput{prio, prio},
			Priority: prio,
			OnEvent: func(event string, data any) {
				if event == pool.EventSentToWorker {
					mu.Lock()
					order = append(order, prio)
					mu.Unlock()
				}
			},
		}))
	}

	close(gate)
	_, err := occupier.Wait(ctx)
	testutil.AssertNoError(t, err)
	for _, c := range adds {
		_, err := c.Wait(ctx)
		testutil.AssertNoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, len(order), 3)
	testutil.AssertEqual(t, order[0], 1)
	testutil.AssertEqual(t, order[1], 2)
	testutil.AssertEqual(t, order[2], 3)
}

func TestUserTaskFailureSurfacesVerbatim(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 1})

	_, err := p.Run(ctx, &pool.Task{Type: "fail"})
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, err.Error(), "task says no")
}

func TestUnknownTaskType(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 1})

	_, err := p.Run(ctx, &pool.Task{Type: "no-such-handler"})
	var unknown *pool.UnknownTaskTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("got %v, want UnknownTaskTypeError", err)
	}
	testutil.AssertEqual(t, unknown.TaskType, "no-such-handler")
}

func TestCrashReplacesWorker(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 1})

	_, err := p.Run(ctx, &pool.Task{Type: "crash"})
	var crash *pool.CrashError
	if !errors.As(err, &crash) {
		t.Fatalf("got %v, want CrashError", err)
	}

	testutil.Eventually(t, 100*time.Millisecond, func() bool {
		return p.Stats().AvailableWorkers == 1
	}, "crashed worker not replaced")

	data, err := p.Run(ctx, &pool.Task{Type: "add", Data: addInput{7, 2}})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, data.(int), 9)
}

func TestWaitForAvailableResourceOrdering(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 1})

	sleepTask := func() *pool.Task {
		return &pool.Task{Type: "sleep", Data: 10 * time.Millisecond}
	}

	c1 := p.Submit(sleepTask())
	c2 := p.Submit(sleepTask())

	w1done := make(chan struct{})
	w2done := make(chan struct{})
	go func() {
		if err := p.WaitForAvailableResource(ctx); err == nil {
			close(w1done)
		}
	}()
	time.Sleep(5 * time.Millisecond) // keep waiter order deterministic
	go func() {
		if err := p.WaitForAvailableResource(ctx); err == nil {
			close(w2done)
		}
	}()

	_, err := c1.Wait(ctx)
	testutil.AssertNoError(t, err)
	_, err = c2.Wait(ctx)
	testutil.AssertNoError(t, err)

	select {
	case <-w1done:
	case <-ctx.Done():
		t.Fatal("first waiter not resolved")
	}

	// One idle moment resolves exactly one waiter; the second must wait
	// for the next one.
	select {
	case <-w2done:
		t.Fatal("second waiter resolved without a new idle moment")
	case <-time.After(50 * time.Millisecond):
	}

	c3 := p.Submit(sleepTask())
	c4 := p.Submit(sleepTask())
	_, err = c3.Wait(ctx)
	testutil.AssertNoError(t, err)
	_, err = c4.Wait(ctx)
	testutil.AssertNoError(t, err)

	select {
	case <-w2done:
	case <-ctx.Done():
		t.Fatal("second waiter not resolved")
	}

	c5 := p.Submit(sleepTask())
	c6 := p.Submit(sleepTask())
	_, err = c5.Wait(ctx)
	testutil.AssertNoError(t, err)
	_, err = c6.Wait(ctx)
	testutil.AssertNoError(t, err)
}

func TestWaitForAvailableResourceImmediate(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 2})
	testutil.AssertNoError(t, p.WaitForAvailableResource(ctx))
}

func TestDispatchConservation(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 3})

	const numTasks = 20
	completions := make([]*pool.Completion, numTasks)
	for i := range completions {
		completions[i] = p.Submit(&pool.Task{Type: "sleep", Data: time.Millisecond})
	}
	for _, c := range completions {
		_, err := c.Wait(ctx)
		testutil.AssertNoError(t, err)
	}

	testutil.Eventually(t, time.Second, func() bool {
		s := p.Stats()
		return s.RunningTasks == 0 && s.QueuedTasks == 0 && s.IdleWorkers == 3
	}, "pool did not drain")
}

func TestResubmitReturnsSameCompletion(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 1})

	gate := make(chan struct{})
	task := &pool.Task{Type: "wait", Data: gate}
	c1 := p.Submit(task)
	c2 := p.Submit(task)
	if c1 != c2 {
		t.Fatal("resubmission allocated a new completion")
	}

	close(gate)
	_, err := c1.Wait(ctx)
	testutil.AssertNoError(t, err)
}

func TestTaskEvents(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 1})

	var mu sync.Mutex
	type ev struct {
		name string
		data any
	}
	var events []ev
	task := &pool.Task{
		Type: "emit",
		OnEvent: func(event string, data any) {
			mu.Lock()
			events = append(events, ev{event, data})
			mu.Unlock()
		},
	}

	data, err := p.Submit(task).Wait(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, data.(string), "finished")

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, len(events), 3)
	testutil.AssertEqual(t, events[0].name, pool.EventSentToWorker)
	testutil.AssertEqual(t, events[1].name, "progress")
	testutil.AssertEqual(t, events[1].data.(int), 50)
	testutil.AssertEqual(t, events[2].name, "progress")
	testutil.AssertEqual(t, events[2].data.(int), 100)
}

func TestStatsSnapshot(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 2})

	s := p.Stats()
	testutil.AssertEqual(t, s.AvailableWorkers, 2)
	testutil.AssertEqual(t, s.IdleWorkers, 2)
	testutil.AssertEqual(t, s.RunningTasks, 0)
	testutil.AssertEqual(t, s.QueuedTasks, 0)
	testutil.AssertEqual(t, s.Closed, false)

	gate := make(chan struct{})
	c1 := p.Submit(&pool.Task{Type: "wait", Data: gate})
	c2 := p.Submit(&pool.Task{Type: "wait", Data: gate})
	c3 := p.Submit(&pool.Task{Type: "ping"})

	s = p.Stats()
	testutil.AssertEqual(t, s.AvailableWorkers, 2)
	testutil.AssertEqual(t, s.IdleWorkers, 0)
	testutil.AssertEqual(t, s.RunningTasks, 2)
	testutil.AssertEqual(t, s.QueuedTasks, 1)

	close(gate)
	for _, c := range []*pool.Completion{c1, c2, c3} {
		_, err := c.Wait(ctx)
		testutil.AssertNoError(t, err)
	}
}

func TestNilTask(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	p := newTestPool(t, pool.Config{PoolSize: 1})
	_, err := p.Submit(nil).Wait(ctx)
	testutil.AssertError(t, err)
}
