package pool

import "errors"

var (
	errWorkerDead  = errors.New("pool: worker terminated")
	errInboxFull   = errors.New("pool: worker inbox full")
	errNotAcquired = errors.New("pool: worker not acquired")
)

// Worker is an isolated execution context owned by the pool. Callers
// only see Worker values through AcquireWorker, and hand them back with
// ReleaseWorker.
type Worker struct {
	id    int
	inbox chan TaskMessage

	// Control-context state; only the pool's event loop touches it.
	acquired bool
	dead     bool
}

// ID returns the pool-unique worker identity.
func (w *Worker) ID() int { return w.id }

// postTask hands the task message to the worker without blocking the
// control context. The inbox holds a single message, so a worker that
// cannot accept one is wedged or gone.
func (w *Worker) postTask(msg TaskMessage) error {
	if w.dead {
		return errWorkerDead
	}
	select {
	case w.inbox <- msg:
		return nil
	default:
		return errInboxFull
	}
}

// terminate stops the worker's runner by closing its inbox. Idempotent.
func (w *Worker) terminate() {
	if w.dead {
		return
	}
	w.dead = true
	close(w.inbox)
}

// spawnWorker creates a worker, registers it in the live set and starts
// its runner goroutine. The caller decides where the worker goes next
// (idle list, acquire handover, queued task).
func (p *Pool) spawnWorker() *Worker {
	w := &Worker{
		id:    p.nextWorkerID,
		inbox: make(chan TaskMessage, 1),
	}
	p.nextWorkerID++
	p.workers[w] = struct{}{}
	go p.runWorker(w, p.cfg.Factory(p.cfg.WorkerOptions))
	return w
}

// runWorker bridges a runner to the control context. A panic escaping
// Run is converted into a worker fault event.
func (p *Pool) runWorker(w *Worker, r Runner) {
	defer func() {
		if rec := recover(); rec != nil {
			p.post(event{kind: evError, worker: w, crash: &CrashError{WorkerID: w.id, Value: rec}})
		}
	}()
	r.Run(w.inbox, func(msg WorkerMessage) {
		p.post(event{kind: evMessage, worker: w, msg: msg})
	})
}
