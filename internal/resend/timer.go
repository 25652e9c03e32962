// Package resend implements the cooldown that gates one-time-code resends.
//
// A Timer counts down in whole ticks on its own goroutine. Every tick takes
// the timer lock and re-checks the cancel token before mutating state, so a
// stopped timer never changes after Stop returns.
//
// # What this package must NOT do
//
//   - Block the caller while counting down.
//   - Keep a goroutine alive after Stop.
package resend

import (
	"sync"
	"time"
)

// Timer is a cancellable countdown. The zero value is not usable; call New.
type Timer struct {
	interval   time.Duration
	onEligible func()

	mu        sync.Mutex
	remaining int
	active    bool
	cancel    chan struct{}
	eligible  chan struct{}
}

// New returns an idle timer that ticks every interval (one second when
// interval <= 0). onEligible, when non-nil, runs on the timer goroutine once
// a countdown reaches zero.
func New(interval time.Duration, onEligible func()) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{
		interval:   interval,
		onEligible: onEligible,
		eligible:   make(chan struct{}, 1),
	}
}

// Start (re)arms the countdown for d, rounded up to whole ticks. A running
// countdown is cancelled first. d <= 0 leaves the timer inactive.
func (t *Timer) Start(d time.Duration) {
	ticks := int((d + t.interval - 1) / t.interval)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()
	if ticks <= 0 {
		return
	}

	// Drain a stale eligibility signal from the previous countdown.
	select {
	case <-t.eligible:
	default:
	}

	cancel := make(chan struct{})
	t.cancel = cancel
	t.remaining = ticks
	t.active = true

	go t.run(cancel)
}

func (t *Timer) run(cancel <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		select {
		case <-cancel:
			t.mu.Unlock()
			return
		default:
		}

		t.remaining--
		if t.remaining > 0 {
			t.mu.Unlock()
			continue
		}

		t.active = false
		t.cancel = nil
		select {
		case t.eligible <- struct{}{}:
		default:
		}
		t.mu.Unlock()

		if t.onEligible != nil {
			t.onEligible()
		}
		return
	}
}

// Active reports whether a countdown is running.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Remaining returns the time left on the countdown, in whole ticks.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return 0
	}
	return time.Duration(t.remaining) * t.interval
}

// Eligible receives once each time a countdown runs out.
func (t *Timer) Eligible() <-chan struct{} {
	return t.eligible
}

// Stop cancels any running countdown. The timer can be started again.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

func (t *Timer) cancelLocked() {
	if t.cancel != nil {
		close(t.cancel)
		t.cancel = nil
	}
	t.active = false
	t.remaining = 0
}
