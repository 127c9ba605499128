package util

import (
	"sync/atomic"
)

// RunOnce is a function wrapper that calls the underlying function at most once
//
// Returns true when the underlying function is actually called. Concurrent callers don't wait for it to finish, so
// components pair it with a stopped signal to wait on, e.g. in Stop().
type RunOnce func() bool

// NewRunOnce creates a function that would call the given "f" at most once
func NewRunOnce(f func()) RunOnce {
	invoked := &atomic.Bool{}
	return func() bool {
		if invoked.CompareAndSwap(false, true) {
			f()
			return true
		}
		return false
	}
}
