package lock

import (
	"sync"
	"time"
)

// DelayedAction runs fn once the delay elapses without another Schedule.
// Each Schedule call restarts the delay.
type DelayedAction struct {
	clock Clock
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer Stopper
	gen   uint64
}

// NewDelayedAction returns an idle DelayedAction.
func NewDelayedAction(clock Clock, delay time.Duration, fn func()) *DelayedAction {
	if clock == nil {
		clock = RealClock{}
	}
	return &DelayedAction{clock: clock, delay: delay, fn: fn}
}

// Schedule (re)starts the delay.
func (a *DelayedAction) Schedule() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = a.clock.AfterFunc(a.delay, func() { a.fire(gen) })
}

// fire runs fn unless a later Schedule or Cancel superseded generation gen.
func (a *DelayedAction) fire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.timer == nil {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.mu.Unlock()
	a.fn()
}

// Cancel stops a pending run. It reports whether one was pending.
func (a *DelayedAction) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer == nil {
		return false
	}
	a.timer.Stop()
	a.timer = nil
	a.gen++
	return true
}

// Pending reports whether a run is scheduled.
func (a *DelayedAction) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}
