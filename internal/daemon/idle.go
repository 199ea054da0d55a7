package daemon

import (
	"sync"
	"time"
)

// IdleTracker fires once no session has been open for the idle timeout.
// A zero timeout disables it.
type IdleTracker struct {
	mu          sync.Mutex
	timeout     time.Duration
	active      int
	timer       *time.Timer
	timerID     uint64
	nextTimerID uint64
	done        chan struct{}
	fired       bool
	stopped     bool
	onIdle      func()
}

// NewIdleTracker creates a tracker with the given timeout.
func NewIdleTracker(timeout time.Duration) *IdleTracker {
	return &IdleTracker{
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// SetOnIdle configures an optional callback run when the tracker fires.
func (k *IdleTracker) SetOnIdle(fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.onIdle = fn
}

// Start arms the timer for a daemon that has no sessions yet.
func (k *IdleTracker) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active == 0 {
		k.startTimerLocked()
	}
}

// Begin marks a session as open. Any pending idle timer is canceled.
func (k *IdleTracker) Begin() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.stopTimerLocked()
	k.active++
}

// End marks a session as closed. The idle timer starts when the last
// session closes.
func (k *IdleTracker) End() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.active > 0 {
		k.active--
	}
	if k.active == 0 {
		k.startTimerLocked()
	}
}

// Active returns the number of open sessions.
func (k *IdleTracker) Active() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

// Done is closed when the tracker fires.
func (k *IdleTracker) Done() <-chan struct{} {
	return k.done
}

func (k *IdleTracker) startTimerLocked() {
	k.stopTimerLocked()
	if k.timeout <= 0 || k.stopped || k.fired {
		return
	}

	k.nextTimerID++
	timerID := k.nextTimerID
	k.timer = time.AfterFunc(k.timeout, func() {
		k.expire(timerID)
	})
	k.timerID = timerID
}

func (k *IdleTracker) stopTimerLocked() {
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
		k.timerID = 0
	}
}

func (k *IdleTracker) expire(timerID uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.timerID != timerID || k.active > 0 || k.fired || k.stopped {
		return
	}

	k.timer = nil
	k.timerID = 0
	k.fired = true
	close(k.done)
	if k.onIdle != nil {
		go k.onIdle()
	}
}

// Stop cancels the timer. The tracker never fires afterwards.
func (k *IdleTracker) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopped = true
	k.stopTimerLocked()
}
