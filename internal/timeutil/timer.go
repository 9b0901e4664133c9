package timeutil

import (
	"log/slog"
	"sync"
	"time"
)

// TimerState represents the current state of a timer.
type TimerState string

const (
	TimerStateRunning TimerState = "running"
	TimerStateStopped TimerState = "stopped"
	TimerStateExpired TimerState = "expired"
)

// Timer is a restartable one-shot timer.
// All methods are safe for concurrent use. A nil *Timer reports zero values.
type Timer struct {
	mu        sync.Mutex
	startTime time.Time
	duration  time.Duration
	state     TimerState
	gen       uint64
	fn        func()
	real      *time.Timer
}

// AfterFunc starts a timer that calls f in its own goroutine after d.
func AfterFunc(d time.Duration, f func()) *Timer {
	t := &Timer{fn: f}
	t.arm(d)
	return t
}

// arm must be called with mu held or before the timer is published.
func (t *Timer) arm(d time.Duration) {
	t.gen++
	gen := t.gen
	t.startTime = time.Now()
	t.duration = d
	t.state = TimerStateRunning
	t.real = time.AfterFunc(d, func() { t.fire(gen) })
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if t.gen != gen || t.state != TimerStateRunning {
		t.mu.Unlock()
		return
	}
	t.state = TimerStateExpired
	fn := t.fn
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop prevents the callback from running.
// It returns false if the timer has already expired or been stopped.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TimerStateRunning {
		return false
	}
	t.gen++
	t.state = TimerStateStopped
	if t.real != nil {
		t.real.Stop()
		t.real = nil
	}
	return true
}

// Reset re-arms the timer with a new duration starting from now.
// A pending fire of the previous arming is discarded.
func (t *Timer) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.real != nil {
		t.real.Stop()
	}
	t.arm(d)
}

// State returns the current timer state.
func (t *Timer) State() TimerState {
	if t == nil {
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Duration returns the duration of the current arming.
func (t *Timer) Duration() time.Duration {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Left returns the time remaining until the timer expires.
// Returns 0 if the timer is expired or stopped.
func (t *Timer) Left() time.Duration {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TimerStateRunning {
		return 0
	}
	return max(t.duration-time.Since(t.startTime), 0)
}

// ExpiresAt returns the expiration time of the current arming.
func (t *Timer) ExpiresAt() time.Time {
	if t == nil {
		return time.Time{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startTime.Add(t.duration)
}

// LogValue implements [slog.LogValuer].
func (t *Timer) LogValue() slog.Value {
	if t == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("state", string(t.State())),
		slog.Duration("duration", t.Duration()),
		slog.Time("expires_at", t.ExpiresAt()),
	)
}
