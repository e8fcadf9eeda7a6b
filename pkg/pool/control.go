package pool

import (
	"time"

	"go.uber.org/zap"
)

// handleSubmit registers the task and either dispatches it or queues it.
// Resubmitting a registered task returns its original completion.
func (p *Pool) handleSubmit(task *Task, on *Worker, reply chan *Completion) {
	if info, ok := p.registry[task]; ok {
		reply <- info.completion
		return
	}
	if task.Ctx != nil && task.Ctx.Err() != nil {
		reply <- failedCompletion(ErrAborted)
		return
	}
	if on != nil {
		if on.dead {
			reply <- failedCompletion(&DispatchError{Cause: errWorkerDead})
			return
		}
		if _, acquired := p.acquiredWorkers[on]; !acquired {
			reply <- failedCompletion(&DispatchError{Cause: errNotAcquired})
			return
		}
		if _, busy := p.runningTaskByWorker[on]; busy {
			reply <- failedCompletion(&DispatchError{Cause: errInboxFull})
			return
		}
	}

	info := &taskInfo{
		id:         p.nextTaskID,
		task:       task,
		completion: newCompletion(),
		abortFlag:  &AbortFlag{},
	}
	p.nextTaskID++
	p.registry[task] = info
	p.watchAbort(info)
	p.recordSubmitted()
	reply <- info.completion

	w := on
	if w == nil {
		w, _ = p.idleWorkers.Pop()
	}
	if w != nil {
		p.dispatch(w, info)
		return
	}

	p.taskQueue.Push(info)
	p.queuedCount++
	p.autoGrow(false)
	p.updateGauges()
}

// dispatch binds info to w and posts the task message. A synchronous
// post failure rejects the task and sends w back through the idle path.
func (p *Pool) dispatch(w *Worker, info *taskInfo) {
	p.runningTaskByWorker[w] = info
	p.runningTasks[info] = struct{}{}
	info.dispatchedAt = time.Now()

	msg := TaskMessage{
		Type:      info.task.Type,
		Data:      info.task.Data,
		Transfer:  info.task.Transfer,
		AbortFlag: info.abortFlag,
	}
	if err := w.postTask(msg); err != nil {
		delete(p.runningTaskByWorker, w)
		delete(p.runningTasks, info)
		p.deregister(info)
		p.recordFailed()
		info.completion.fail(&DispatchError{Cause: err})
		p.cfg.Logger.Warn("task dispatch failed",
			zap.Uint64("task_id", info.id),
			zap.Int("worker_id", w.id),
			zap.Error(err))
		if !w.acquired && !w.dead {
			p.workerBecameIdle(w)
		}
		return
	}

	p.notifyTaskEvent(info, EventSentToWorker, nil)
	p.updateGauges()
}

// handleWorkerMessage routes a worker message. An unknown message type
// means the channel to the worker is broken beyond recovery.
func (p *Pool) handleWorkerMessage(w *Worker, msg WorkerMessage) {
	switch msg.Type {
	case MessageResult:
		p.handleResult(w, msg)
	case MessageEvent:
		p.handleEvent(w, msg)
	default:
		p.cfg.Logger.Fatal("invalid message from worker",
			zap.Int("worker_id", w.id),
			zap.String("type", string(msg.Type)))
	}
}

// handleResult resolves the task bound to w. Messages arriving after an
// abort leave the completion untouched.
func (p *Pool) handleResult(w *Worker, msg WorkerMessage) {
	info, ok := p.runningTaskByWorker[w]
	if !ok {
		return
	}
	delete(p.runningTaskByWorker, w)

	if !info.aborted {
		delete(p.runningTasks, info)
		p.deregister(info)
		p.observeDuration(info)
		if msg.Err != nil {
			p.recordFailed()
			info.completion.fail(msg.Err)
		} else {
			p.recordCompleted()
			info.completion.resolve(msg.Data)
		}
	}

	if !w.acquired {
		p.workerBecameIdle(w)
	}
	p.updateGauges()
}

// handleEvent forwards a progress event to the task's callback.
func (p *Pool) handleEvent(w *Worker, msg WorkerMessage) {
	info, ok := p.runningTaskByWorker[w]
	if !ok || info.aborted {
		return
	}
	p.notifyTaskEvent(info, msg.Event, msg.Data)
}

// handleWorkerError retires a crashed worker, rejects its bound task and
// schedules a replacement. Autoscaling holds off until the replacement
// lands.
func (p *Pool) handleWorkerError(w *Worker, err error) {
	if _, live := p.workers[w]; !live {
		return
	}
	w.terminate()
	delete(p.workers, w)
	delete(p.acquiredWorkers, w)
	p.idleWorkers.Filter(func(x *Worker) bool { return x != w })

	p.recordCrash()
	if info, ok := p.runningTaskByWorker[w]; ok {
		delete(p.runningTaskByWorker, w)
		if !info.aborted {
			delete(p.runningTasks, info)
			p.deregister(info)
			p.recordFailed()
			info.completion.fail(err)
		}
	}

	p.cfg.Logger.Warn("worker crashed",
		zap.Int("worker_id", w.id),
		zap.Error(err))

	p.replacing++
	go p.post(event{kind: evReplaced})
	p.updateGauges()
}

// handleReplaced spawns the replacement worker and releases the
// autoscaling barrier.
func (p *Pool) handleReplaced() {
	p.replacing--
	w := p.spawnWorker()
	p.recordReplacement()
	p.cfg.Logger.Info("worker replaced", zap.Int("worker_id", w.id))
	p.workerBecameIdle(w)
	if p.replacing == 0 && p.shrinkPending {
		p.shrinkPending = false
		p.autoShrink()
	}
	p.updateGauges()
}

// workerBecameIdle applies the idle handover policy: pending acquires
// first, then queued tasks, then at most one available-resource waiter.
func (p *Pool) workerBecameIdle(w *Worker) {
	if w.dead {
		return
	}

	if waiter, ok := p.acquireWaiters.Pop(); ok {
		w.acquired = true
		p.acquiredWorkers[w] = struct{}{}
		waiter <- acquireReply{w: w}
		p.updateGauges()
		return
	}

	w.acquired = false
	delete(p.acquiredWorkers, w)
	p.pushIdle(w)

	for {
		info, ok := p.taskQueue.Pop()
		if !ok {
			break
		}
		if p.registry[info.task] != info {
			// Tombstone left behind by an abort.
			continue
		}
		p.queuedCount--
		idle, _ := p.idleWorkers.Pop()
		p.dispatch(idle, info)
		return
	}

	if p.idleWorkers.Len() > 0 {
		if waiter, ok := p.availableWaiters.Pop(); ok {
			waiter <- nil
		}
	}
	p.updateGauges()
}

// handleAcquire grants an idle worker or enrolls the caller in the
// acquire queue.
func (p *Pool) handleAcquire(reply chan acquireReply) {
	if w, ok := p.idleWorkers.Pop(); ok {
		w.acquired = true
		p.acquiredWorkers[w] = struct{}{}
		reply <- acquireReply{w: w}
		p.updateGauges()
		return
	}
	p.acquireWaiters.Push(reply)
	p.autoGrow(true)
}

// handleRelease returns an acquired worker through the idle path.
func (p *Pool) handleRelease(w *Worker) {
	if _, ok := p.acquiredWorkers[w]; !ok {
		return
	}
	delete(p.acquiredWorkers, w)
	w.acquired = false
	if _, busy := p.runningTaskByWorker[w]; busy {
		// Rejoins the pool when its current task finishes.
		return
	}
	p.workerBecameIdle(w)
}

// handleWaitAvailable resolves immediately when a worker is idle,
// nothing is queued and no earlier waiter is pending, otherwise enrolls
// the waiter behind the ones already in line.
func (p *Pool) handleWaitAvailable(reply chan error) {
	if p.availableWaiters.Len() == 0 && p.idleWorkers.Len() > 0 && p.queuedCount == 0 {
		reply <- nil
		return
	}
	p.availableWaiters.Push(reply)
}

// handleAbort moves a registered task to its terminal aborted state. A
// dispatched task keeps its worker binding until the worker reports
// back; the late message is then ignored.
func (p *Pool) handleAbort(task *Task) {
	info, ok := p.registry[task]
	if !ok {
		return
	}
	info.aborted = true
	info.abortFlag.Set()
	if _, running := p.runningTasks[info]; running {
		delete(p.runningTasks, info)
	} else {
		p.queuedCount--
	}
	p.deregister(info)
	p.recordAborted()
	info.completion.fail(ErrAborted)
	p.updateGauges()
}

// autoGrow spawns one worker when demand outstrips the current set: no
// idle worker, headroom below MaxPoolSize, no crash replacement in
// flight, and either queued work or a pending acquire.
func (p *Pool) autoGrow(forAcquire bool) {
	if p.replacing > 0 {
		return
	}
	if forAcquire {
		if p.acquireWaiters.Len() == 0 {
			return
		}
	} else if p.queuedCount == 0 {
		return
	}
	if len(p.workers) >= p.cfg.MaxPoolSize {
		return
	}
	if p.idleWorkers.Len() > 0 {
		return
	}
	w := p.spawnWorker()
	p.cfg.Logger.Debug("pool grew",
		zap.Int("worker_id", w.id),
		zap.Int("workers", len(p.workers)))
	p.workerBecameIdle(w)
}

// autoShrink removes at most one idle worker per tick, waiting out any
// crash replacement first.
func (p *Pool) autoShrink() {
	if p.replacing > 0 {
		p.shrinkPending = true
		return
	}
	if p.queuedCount != 0 || len(p.workers) <= p.cfg.MinPoolSize || p.idleWorkers.Len() <= 1 {
		return
	}
	w, _ := p.idleWorkers.Pop()
	delete(p.workers, w)
	w.terminate()
	p.cfg.Logger.Debug("pool shrank",
		zap.Int("worker_id", w.id),
		zap.Int("workers", len(p.workers)))
	p.updateGauges()
}

// handleClose rejects everything, terminates all workers and stops the
// control loop.
func (p *Pool) handleClose(reply chan error) {
	p.closed.Store(true)
	if p.shrinkCron != nil {
		p.shrinkCron.Stop()
	}

	for _, info := range p.registry {
		// Raise the abort flag so cooperative worker loops observe the
		// shutdown, then fail the completion.
		info.abortFlag.Set()
		info.completion.fail(ErrClosed)
		if info.stopWatch != nil {
			close(info.stopWatch)
			info.stopWatch = nil
		}
	}
	p.registry = make(map[*Task]*taskInfo)
	p.runningTasks = make(map[*taskInfo]struct{})
	p.runningTaskByWorker = make(map[*Worker]*taskInfo)
	p.taskQueue.Clear()
	p.queuedCount = 0

	for w := range p.workers {
		w.terminate()
	}
	p.workers = make(map[*Worker]struct{})
	p.idleWorkers.Clear()
	p.acquiredWorkers = make(map[*Worker]struct{})

	for {
		waiter, ok := p.acquireWaiters.Pop()
		if !ok {
			break
		}
		waiter <- acquireReply{err: ErrClosed}
	}
	for {
		waiter, ok := p.availableWaiters.Pop()
		if !ok {
			break
		}
		waiter <- ErrClosed
	}

	p.updateGauges()
	close(p.closedCh)
	reply <- nil
}

// snapshot builds a Stats value from the live indices.
func (p *Pool) snapshot() Stats {
	return Stats{
		AvailableWorkers: len(p.workers),
		IdleWorkers:      p.idleWorkers.Len(),
		RunningTasks:     len(p.runningTasks),
		QueuedTasks:      p.queuedCount,
		Closed:           p.closed.Load(),
	}
}

// pushIdle adds w to the idle ring. The ring's capacity equals
// MaxPoolSize, so a rejection means a worker-set invariant was broken.
func (p *Pool) pushIdle(w *Worker) {
	if err := p.idleWorkers.Push(w); err != nil {
		p.cfg.Logger.Error("idle ring rejected worker",
			zap.Int("worker_id", w.id),
			zap.Error(err))
	}
}

// watchAbort subscribes the task's context to the abort path. The
// watcher detaches when the task reaches a terminal state.
func (p *Pool) watchAbort(info *taskInfo) {
	if info.task.Ctx == nil {
		return
	}
	stop := make(chan struct{})
	info.stopWatch = stop
	task := info.task
	go func() {
		select {
		case <-task.Ctx.Done():
			p.post(event{kind: evAbort, task: task})
		case <-stop:
		}
	}()
}

// deregister removes info from the registry and detaches its abort
// subscription. Safe to call more than once.
func (p *Pool) deregister(info *taskInfo) {
	delete(p.registry, info.task)
	if info.stopWatch != nil {
		close(info.stopWatch)
		info.stopWatch = nil
	}
}

// notifyTaskEvent invokes the task's OnEvent callback, isolating the
// control loop from callback panics.
func (p *Pool) notifyTaskEvent(info *taskInfo, eventName string, data any) {
	cb := info.task.OnEvent
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Logger.Error("task event callback panicked",
				zap.Uint64("task_id", info.id),
				zap.String("event", eventName),
				zap.Any("panic", r))
		}
	}()
	cb(eventName, data)
}
