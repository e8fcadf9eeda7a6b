package pool

// call runs fn on the control context and waits for it to finish.
func (p *Pool) call(fn func()) {
	done := make(chan struct{})
	if !p.post(event{kind: evCall, fn: func() { fn(); close(done) }}) {
		return
	}
	<-done
}

// shrinkTick injects one auto-shrink timer tick.
func (p *Pool) shrinkTick() {
	p.post(event{kind: evShrinkTick})
}
