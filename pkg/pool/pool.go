package pool

import (
	"context"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/nqb9811/worker-pool/internal/containers"
)

// taskList abstracts the FIFO and priority wait lists.
type taskList interface {
	Push(*taskInfo)
	Pop() (*taskInfo, bool)
	Len() int
	Clear()
}

// Stats is a consistent snapshot of the pool state.
type Stats struct {
	// AvailableWorkers is the number of live workers, whatever their
	// current state.
	AvailableWorkers int

	// IdleWorkers is the number of workers waiting for work.
	IdleWorkers int

	// RunningTasks is the number of tasks dispatched but not terminal.
	RunningTasks int

	// QueuedTasks is the number of tasks waiting for a worker.
	QueuedTasks int

	// Closed reports whether Close has been called.
	Closed bool
}

// Pool dispatches tasks to a set of isolated workers. All state below
// the events channel is owned by the control loop; public methods only
// communicate with it through events.
type Pool struct {
	cfg Config

	events   chan event
	closedCh chan struct{}
	closed   atomic.Bool

	shrinkCron *cron.Cron

	workers             map[*Worker]struct{}
	idleWorkers         *containers.RingBuffer[*Worker]
	acquiredWorkers     map[*Worker]struct{}
	runningTaskByWorker map[*Worker]*taskInfo
	runningTasks        map[*taskInfo]struct{}
	taskQueue           taskList
	queuedCount         int
	registry            map[*Task]*taskInfo
	acquireWaiters      *containers.Queue[chan acquireReply]
	availableWaiters    *containers.Queue[chan error]
	replacing           int
	shrinkPending       bool
	nextTaskID          uint64
	nextWorkerID        int
}

// eventKind discriminates control events.
type eventKind int

const (
	evSubmit eventKind = iota
	evMessage
	evError
	evReplaced
	evAcquire
	evRelease
	evWaitAvailable
	evAbort
	evStats
	evShrinkTick
	evCall
	evClose
)

// event is one unit of work for the control loop.
type event struct {
	kind eventKind

	task   *Task
	on     *Worker // explicit dispatch target for evSubmit
	worker *Worker
	msg    WorkerMessage
	crash  error

	// fn runs on the control context for evCall events.
	fn func()

	submitReply  chan *Completion
	acquireReply chan acquireReply
	errReply     chan error
	statsReply   chan Stats
}

// acquireReply is the control loop's answer to an acquire request.
type acquireReply struct {
	w   *Worker
	err error
}

// New creates a fixed-size pool whose workers run runners built by
// factory. It panics on an invalid configuration; use NewWithConfig for
// error handling.
func New(factory RunnerFactory, poolSize int) *Pool {
	p, err := NewWithConfig(Config{Factory: factory, PoolSize: poolSize})
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfig creates a pool from cfg. The pool starts MinPoolSize
// workers immediately and is ready for submissions when it returns.
func NewWithConfig(cfg Config) (*Pool, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:                 cfg,
		events:              make(chan event),
		closedCh:            make(chan struct{}),
		workers:             make(map[*Worker]struct{}),
		idleWorkers:         containers.NewRingBuffer[*Worker](cfg.MaxPoolSize),
		acquiredWorkers:     make(map[*Worker]struct{}),
		runningTaskByWorker: make(map[*Worker]*taskInfo),
		runningTasks:        make(map[*taskInfo]struct{}),
		registry:            make(map[*Task]*taskInfo),
		acquireWaiters:      containers.NewQueue[chan acquireReply](),
		availableWaiters:    containers.NewQueue[chan error](),
	}

	if cfg.UsePriorityTaskQueue {
		p.taskQueue = containers.NewPriorityQueue[*taskInfo](func(a, b *taskInfo) bool {
			return a.task.Priority < b.task.Priority
		})
	} else {
		p.taskQueue = containers.NewQueue[*taskInfo]()
	}

	for i := 0; i < cfg.MinPoolSize; i++ {
		w := p.spawnWorker()
		p.workerBecameIdle(w)
	}

	// The shrink timer only matters when the pool can actually scale.
	if cfg.MaxPoolSize > cfg.MinPoolSize {
		p.shrinkCron = cron.New()
		p.shrinkCron.Schedule(cron.Every(cfg.AutoShrinkInterval), cron.FuncJob(func() {
			p.post(event{kind: evShrinkTick})
		}))
		p.shrinkCron.Start()
	}

	go p.run()
	return p, nil
}

// post delivers ev to the control loop. It reports false once the pool
// is closed; the event is dropped in that case.
func (p *Pool) post(ev event) bool {
	select {
	case <-p.closedCh:
		return false
	default:
	}
	select {
	case p.events <- ev:
		return true
	case <-p.closedCh:
		return false
	}
}

// run is the control loop: the single goroutine mutating pool state.
func (p *Pool) run() {
	for ev := range p.events {
		switch ev.kind {
		case evSubmit:
			p.handleSubmit(ev.task, ev.on, ev.submitReply)
		case evMessage:
			p.handleWorkerMessage(ev.worker, ev.msg)
		case evError:
			p.handleWorkerError(ev.worker, ev.crash)
		case evReplaced:
			p.handleReplaced()
		case evAcquire:
			p.handleAcquire(ev.acquireReply)
		case evRelease:
			p.handleRelease(ev.worker)
		case evWaitAvailable:
			p.handleWaitAvailable(ev.errReply)
		case evAbort:
			p.handleAbort(ev.task)
		case evStats:
			ev.statsReply <- p.snapshot()
		case evShrinkTick:
			p.autoShrink()
		case evCall:
			ev.fn()
		case evClose:
			p.handleClose(ev.errReply)
			return
		}
	}
}

// Submit registers task and returns its completion handle. The task is
// dispatched to an idle worker immediately or queued until one frees up.
// Immediate failures (closed pool, pre-canceled context) are reported
// through the returned completion.
func (p *Pool) Submit(task *Task) *Completion {
	return p.submit(task, nil)
}

// SubmitTo runs task on a worker previously obtained from AcquireWorker,
// bypassing the wait list.
func (p *Pool) SubmitTo(w *Worker, task *Task) *Completion {
	if w == nil {
		return failedCompletion(errNilTask)
	}
	return p.submit(task, w)
}

// Run submits task and waits for its result.
func (p *Pool) Run(ctx context.Context, task *Task) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.Submit(task).Wait(ctx)
}

func (p *Pool) submit(task *Task, on *Worker) *Completion {
	if task == nil {
		return failedCompletion(errNilTask)
	}
	reply := make(chan *Completion, 1)
	if !p.post(event{kind: evSubmit, task: task, on: on, submitReply: reply}) {
		return failedCompletion(ErrClosed)
	}
	return <-reply
}

// AcquireWorker reserves a worker for exclusive use. When no worker is
// idle the caller waits, in FIFO order among acquirers, until one
// completes its current task. The worker must be handed back with
// ReleaseWorker.
func (p *Pool) AcquireWorker(ctx context.Context) (*Worker, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reply := make(chan acquireReply, 1)
	if !p.post(event{kind: evAcquire, acquireReply: reply}) {
		return nil, ErrClosed
	}
	select {
	case r := <-reply:
		return r.w, r.err
	case <-ctx.Done():
		// Hand the worker back if the grant lands after we gave up.
		go func() {
			if r := <-reply; r.w != nil {
				p.ReleaseWorker(r.w)
			}
		}()
		return nil, ctx.Err()
	}
}

// ReleaseWorker returns an acquired worker to the pool. Releasing a
// worker that is not acquired is a no-op; on a closed pool the worker
// has already been terminated.
func (p *Pool) ReleaseWorker(w *Worker) {
	if w == nil {
		return
	}
	p.post(event{kind: evRelease, worker: w})
}

// WaitForAvailableResource blocks until a worker is idle and the wait
// list is empty, so the next Submit dispatches immediately. Waiters are
// resolved one per qualifying idle moment, in FIFO order.
func (p *Pool) WaitForAvailableResource(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reply := make(chan error, 1)
	if !p.post(event{kind: evWaitAvailable, errReply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the pool state.
func (p *Pool) Stats() Stats {
	reply := make(chan Stats, 1)
	if !p.post(event{kind: evStats, statsReply: reply}) {
		return Stats{Closed: true}
	}
	return <-reply
}

// Close shuts the pool down: every registered task and pending waiter
// fails with ErrClosed, all workers are terminated and further
// submissions are rejected. Idempotent.
func (p *Pool) Close() {
	reply := make(chan error, 1)
	if !p.post(event{kind: evClose, errReply: reply}) {
		return
	}
	<-reply
}
