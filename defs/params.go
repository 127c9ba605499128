package defs

import (
	"time"
)

var (
	// QueueDefaultMaxSize defines the default capacity of a bounded log queue, in numbers of records
	QueueDefaultMaxSize = 10000

	// QueueDefaultBatchSize defines the default numbers of records to accumulate before a batch is flushed
	QueueDefaultBatchSize = 100

	// QueueDefaultBatchTimeout defines how long a partial batch may wait before being flushed
	QueueDefaultBatchTimeout = 1 * time.Second

	// QueuePollTimeout defines how long the scheduler waits for the next record before re-checking its timers
	//
	// It's a cooperative poll, not a true block; the value affects the delay of shutdown and batch timeout checks
	QueuePollTimeout = 100 * time.Millisecond

	// ProcessorMaxAttempts is the max numbers of attempts to submit one batch to the processor
	ProcessorMaxAttempts = 3

	// ProcessorRetryBackoff is the base unit of linear backoff between attempts: backoff = value * attempt
	ProcessorRetryBackoff = 100 * time.Millisecond

	// StopTimeout is how long to wait for a background loop to exit cooperatively before force-draining its state
	StopTimeout = 500 * time.Millisecond
)

var (
	// BackpressureDropThreshold is the default fill ratio at and above which new records are rejected
	BackpressureDropThreshold = 0.9

	// BackpressureSlowDownThreshold is the default fill ratio above which an artificial processing delay is advised
	BackpressureSlowDownThreshold = 0.7

	// BackpressureDelayFactor converts the fill ratio above slow-down threshold into delay
	BackpressureDelayFactor = 100 * time.Millisecond

	// BackpressureMaxDelay caps the advised processing delay
	BackpressureMaxDelay = 1 * time.Second
)

var (
	// CircuitFailureThreshold is the numbers of failures after which the durability circuit opens
	CircuitFailureThreshold = 5

	// CircuitTimeout is how long the durability circuit stays open after the last recorded failure
	CircuitTimeout = 30 * time.Second

	// OverflowWarningInterval limits how often overflow and drop warnings are logged by one component
	OverflowWarningInterval = 1 * time.Second
)

var (
	// PoolDefaultInitialSize is the default numbers of pre-allocated records in a pool
	PoolDefaultInitialSize = 100

	// PoolDefaultMinSize is the default floor of a pool when shrinking
	PoolDefaultMinSize = 10

	// PoolDefaultMaxSize is the default max numbers of idle records held by a pool
	PoolDefaultMaxSize = 1000

	// PoolDefaultResizeThreshold is the hit rate above which a pool grows; it shrinks below (1 - value)
	PoolDefaultResizeThreshold = 0.8

	// PoolMaxGrowStep caps how many records are added to a pool in one resize
	PoolMaxGrowStep = 100

	// PoolResizeInterval defines how often pools re-evaluate their size when auto-resizing
	PoolResizeInterval = 30 * time.Second
)

var (
	// SinkQueueSize is the capacity of the micro-queue of each sink worker
	SinkQueueSize = 1000

	// SinkDequeueTimeout is how long a sink worker waits on its micro-queue before checking the flush timer
	SinkDequeueTimeout = 100 * time.Millisecond

	// SinkFlushInterval is how often a sink worker flushes its output buffer if not full
	SinkFlushInterval = 1 * time.Second

	// SinkFlushBytes is the size of output buffer in bytes above which a sink worker flushes immediately
	SinkFlushBytes = 8 * 1024

	// SinkMaxBufferedBytes is the max size of output buffer kept while writes are failing; oldest entries are dropped beyond
	SinkMaxBufferedBytes = 4 * 1024 * 1024

	// SinkFormatWorkers is the max numbers of goroutines to format one batch in parallel
	//
	// Batches smaller than SinkParallelFormatMinBatch are always formatted in the calling goroutine
	SinkFormatWorkers = 4

	// SinkParallelFormatMinBatch is the min size of batch to be formatted in parallel
	SinkParallelFormatMinBatch = 256

	// FileSinkBreakerFailures is the numbers of consecutive write failures after which a file sink stops writing
	FileSinkBreakerFailures = 3

	// FileSinkBreakerTimeout is how long a file sink stops writing after repeated failures before trying again
	FileSinkBreakerTimeout = 10 * time.Second
)

// For testing and experiments
const (
	TestReadTimeout = 5 * time.Second
)

// EnableTestMode turns on test mode with very short intervals and minimal retry delay
func EnableTestMode() {
	QueueDefaultBatchTimeout = 50 * time.Millisecond
	QueuePollTimeout = 10 * time.Millisecond
	ProcessorRetryBackoff = 1 * time.Millisecond
	SinkDequeueTimeout = 10 * time.Millisecond
	SinkFlushInterval = 50 * time.Millisecond
	FileSinkBreakerTimeout = 100 * time.Millisecond
	PoolResizeInterval = 100 * time.Millisecond
}
