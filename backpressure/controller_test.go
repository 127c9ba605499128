package backpressure

import (
	"testing"
	"time"

	"github.com/relex/logpipe/defs"
	"github.com/stretchr/testify/assert"
)

func TestShouldAcceptMessage(t *testing.T) {
	c := NewDefault(100)
	assert.True(t, c.ShouldAcceptMessage(0))
	assert.True(t, c.ShouldAcceptMessage(89))
	assert.False(t, c.ShouldAcceptMessage(90))
	assert.False(t, c.ShouldAcceptMessage(100))
	assert.EqualValues(t, 2, c.Dropped())
}

func TestProcessingDelay(t *testing.T) {
	c := New(1000, 0.9, 0.7)
	assert.Equal(t, time.Duration(0), c.ProcessingDelay(0))
	assert.Equal(t, time.Duration(0), c.ProcessingDelay(700))
	assert.InDelta(t, float64(10*time.Millisecond), float64(c.ProcessingDelay(800)), float64(time.Microsecond))
	assert.InDelta(t, float64(30*time.Millisecond), float64(c.ProcessingDelay(1000)), float64(time.Microsecond))
	assert.LessOrEqual(t, c.ProcessingDelay(1000000), defs.BackpressureMaxDelay)
}

func TestProcessingDelayMonotonic(t *testing.T) {
	c := NewDefault(500)
	previous := time.Duration(0)
	for size := 0; size <= 5000; size += 7 {
		delay := c.ProcessingDelay(size)
		assert.GreaterOrEqual(t, delay, previous, "size=%d", size)
		previous = delay
	}
	assert.Equal(t, defs.BackpressureMaxDelay, c.ProcessingDelay(1000000))
}

func TestZeroCapacity(t *testing.T) {
	c := NewDefault(0)
	assert.False(t, c.ShouldAcceptMessage(0))
	assert.Equal(t, 0, c.MaxQueueSize())
}
