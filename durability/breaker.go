package durability

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// circuitState counts processing failures and disables retries for a while once too many have been seen
//
// Transitions only happen inside recordFailure, i.e. when a failure is reported; there is no background timer.
type circuitState struct {
	mutex        sync.Mutex
	clock        clockwork.Clock
	threshold    int
	timeout      time.Duration
	failureCount int
	open         bool
	lastFailure  time.Time
}

type circuitTransition int

const (
	circuitUnchanged circuitTransition = iota
	circuitOpened
	circuitClosed
)

func newCircuitState(clock clockwork.Clock, threshold int, timeout time.Duration) *circuitState {
	return &circuitState{
		clock:     clock,
		threshold: threshold,
		timeout:   timeout,
	}
}

// recordFailure registers one failure and returns whether the caller may retry
//
// An open circuit closes, with the count reset, when the timeout has passed since the last failure.
// The failure reported in the same call is then counted against the newly closed circuit.
func (cs *circuitState) recordFailure() (bool, circuitTransition) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	transition := circuitUnchanged
	now := cs.clock.Now()
	if cs.open {
		if now.Sub(cs.lastFailure) < cs.timeout {
			return false, circuitUnchanged
		}
		cs.open = false
		cs.failureCount = 0
		transition = circuitClosed
	}

	cs.failureCount++
	cs.lastFailure = now
	if cs.failureCount >= cs.threshold {
		cs.open = true
		return false, circuitOpened
	}
	return true, transition
}

func (cs *circuitState) snapshot() (bool, int) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	return cs.open, cs.failureCount
}
