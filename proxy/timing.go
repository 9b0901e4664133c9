package proxy

import (
	"log/slog"
	"time"
)

const (
	// T1 is the default RTT estimate.
	T1 = 500 * time.Millisecond
	// TimeC is the default INVITE branch proceeding timeout.
	TimeC = 600 * T1
	// TimeF is the default non-INVITE branch timeout.
	TimeF = 64 * T1
)

// Timings holds timing parameters of the proxy.
// Zero value is ready to use and yields default timings.
type Timings struct {
	t1, timeC, timeout, grace time.Duration
}

// NewTimings creates a new [Timings].
//   - t1 is the RTT estimate, zero or negative means [T1];
//   - timeC is the Timer C duration, zero or negative means 600*t1;
//   - timeout is the overall INVITE request timeout, zero disables it.
func NewTimings(t1, timeC, timeout time.Duration) Timings {
	return Timings{t1: t1, timeC: timeC, timeout: timeout}
}

// WithCancelGrace returns a copy of timings with the given cancel grace period.
// A branch canceled by the proxy is kept for this period waiting for its final response.
func (t Timings) WithCancelGrace(d time.Duration) Timings {
	t.grace = d
	return t
}

// T1 returns the RTT estimate.
func (t Timings) T1() time.Duration {
	if t.t1 <= 0 {
		return T1
	}
	return t.t1
}

// TimeC returns the INVITE branch proceeding timeout.
// It is reset by every provisional response except 100.
func (t Timings) TimeC() time.Duration {
	if t.timeC <= 0 {
		return 600 * t.T1()
	}
	return t.timeC
}

// TimeF returns the non-INVITE branch timeout.
func (t Timings) TimeF() time.Duration { return 64 * t.T1() }

// CancelGrace returns the period a canceled branch waits for its final response.
func (t Timings) CancelGrace() time.Duration {
	if t.grace <= 0 {
		return 64 * t.T1()
	}
	return t.grace
}

// RequestTimeout returns the overall INVITE request timeout, zero means disabled.
func (t Timings) RequestTimeout() time.Duration { return max(t.timeout, 0) }

func (t Timings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("t1", t.T1()),
		slog.Duration("time_c", t.TimeC()),
		slog.Duration("time_f", t.TimeF()),
		slog.Duration("cancel_grace", t.CancelGrace()),
		slog.Duration("request_timeout", t.RequestTimeout()),
	)
}
