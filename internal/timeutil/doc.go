// Package timeutil provides Timer, a wrapper around time.AfterFunc that remembers
// when it was armed so its remaining time can be reported and logged.
//
// Proxy timers (Timer C, the overall request timeout, the cancel grace period)
// never execute the callback after a successful Stop or Reset: every arming
// gets a generation number and stale fires are dropped.
//
//	tmr := timeutil.AfterFunc(3*time.Minute, func() {
//	    mbox.Append(timerCEvent{branch})
//	})
//	defer tmr.Stop()
package timeutil
