// Package sched abstracts the deferred callbacks that drive coalescing,
// debouncing and grace-period eviction.
//
// Production code uses System, which is backed by time.AfterFunc. Tests use
// Manual, whose timers only fire when the test advances its clock.
package sched

import "time"

// Timer is a pending callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped the
	// timer; false means it already fired or was stopped.
	Stop() bool
}

// Scheduler schedules callbacks after a delay.
type Scheduler interface {
	// AfterFunc calls fn once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

type system struct{}

func (system) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// System returns the wall-clock scheduler.
func System() Scheduler {
	return system{}
}

// OrSystem returns s, or System when s is nil.
func OrSystem(s Scheduler) Scheduler {
	if s == nil {
		return System()
	}
	return s
}
