package pool

import "time"

// Metric recorders. All of them are no-ops when the pool was built
// without a metrics registry.

func (p *Pool) updateGauges() {
	m := p.cfg.Metrics
	if m == nil {
		return
	}
	name := p.cfg.Name
	m.PoolSize.WithLabelValues(name).Set(float64(len(p.workers)))
	m.IdleWorkers.WithLabelValues(name).Set(float64(p.idleWorkers.Len()))
	m.RunningTasks.WithLabelValues(name).Set(float64(len(p.runningTasks)))
	m.QueuedTasks.WithLabelValues(name).Set(float64(p.queuedCount))
}

func (p *Pool) recordSubmitted() {
	if m := p.cfg.Metrics; m != nil {
		m.TasksSubmitted.WithLabelValues(p.cfg.Name).Inc()
	}
}

func (p *Pool) recordCompleted() {
	if m := p.cfg.Metrics; m != nil {
		m.TasksCompleted.WithLabelValues(p.cfg.Name).Inc()
	}
}

func (p *Pool) recordFailed() {
	if m := p.cfg.Metrics; m != nil {
		m.TasksFailed.WithLabelValues(p.cfg.Name).Inc()
	}
}

func (p *Pool) recordAborted() {
	if m := p.cfg.Metrics; m != nil {
		m.TasksAborted.WithLabelValues(p.cfg.Name).Inc()
	}
}

func (p *Pool) recordCrash() {
	if m := p.cfg.Metrics; m != nil {
		m.WorkerCrashes.WithLabelValues(p.cfg.Name).Inc()
	}
}

func (p *Pool) recordReplacement() {
	if m := p.cfg.Metrics; m != nil {
		m.WorkerReplacements.WithLabelValues(p.cfg.Name).Inc()
	}
}

func (p *Pool) observeDuration(info *taskInfo) {
	m := p.cfg.Metrics
	if m == nil || info.dispatchedAt.IsZero() {
		return
	}
	m.TaskDuration.WithLabelValues(p.cfg.Name).Observe(time.Since(info.dispatchedAt).Seconds())
}
