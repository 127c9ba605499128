// Package backpressure provides admission control of bounded queues by fill ratio
package backpressure

import (
	"sync/atomic"
	"time"

	"github.com/relex/logpipe/defs"
)

// Controller decides whether a queue should accept more records and how much to slow down its consumer
//
// Besides the fixed thresholds, the only state is the counter of rejected records.
type Controller struct {
	maxQueueSize      int
	dropThreshold     float64
	slowDownThreshold float64
	dropped           uint64
}

// New creates a Controller for a queue of given capacity
func New(maxQueueSize int, dropThreshold float64, slowDownThreshold float64) *Controller {
	return &Controller{
		maxQueueSize:      maxQueueSize,
		dropThreshold:     dropThreshold,
		slowDownThreshold: slowDownThreshold,
	}
}

// NewDefault creates a Controller with default thresholds from defs
func NewDefault(maxQueueSize int) *Controller {
	return New(maxQueueSize, defs.BackpressureDropThreshold, defs.BackpressureSlowDownThreshold)
}

// ShouldAcceptMessage returns false if the fill ratio has reached the drop threshold
func (c *Controller) ShouldAcceptMessage(currentSize int) bool {
	if c.fillRatio(currentSize) >= c.dropThreshold {
		atomic.AddUint64(&c.dropped, 1)
		return false
	}
	return true
}

// ProcessingDelay returns the advised delay before processing the next batch
//
// The delay is zero up to the slow-down threshold and grows linearly above it, capped by defs.BackpressureMaxDelay
func (c *Controller) ProcessingDelay(currentSize int) time.Duration {
	ratio := c.fillRatio(currentSize)
	if ratio <= c.slowDownThreshold {
		return 0
	}
	delay := time.Duration((ratio - c.slowDownThreshold) * float64(defs.BackpressureDelayFactor))
	if delay > defs.BackpressureMaxDelay {
		return defs.BackpressureMaxDelay
	}
	return delay
}

// Dropped returns the numbers of rejected records
func (c *Controller) Dropped() uint64 {
	return atomic.LoadUint64(&c.dropped)
}

// MaxQueueSize returns the capacity this controller was created for
func (c *Controller) MaxQueueSize() int {
	return c.maxQueueSize
}

func (c *Controller) fillRatio(currentSize int) float64 {
	if c.maxQueueSize <= 0 {
		return 1.0
	}
	return float64(currentSize) / float64(c.maxQueueSize)
}
