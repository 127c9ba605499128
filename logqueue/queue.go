// Package logqueue provides the bounded log queue and its batch scheduler
package logqueue

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/backpressure"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/durability"
	"github.com/relex/logpipe/util"
	"golang.org/x/time/rate"
)

// ErrTimeout is returned by Get if no record arrives in time
var ErrTimeout = errors.New("timed out waiting for record")

// ErrClosed is returned by Get if the queue has been stopped and drained
var ErrClosed = errors.New("queue closed")

// Args defines the collaborators of a queue
type Args struct {
	Processor  base.BatchProcessor          // Consumer of batches; writes to stdout in fallback layout if nil
	Durability *durability.Layer            // Backup storage for overflow and failed batches; nil to drop them instead
	Controller *backpressure.Controller     // Admission control; nil to accept until full
	OnReleased func(record *base.LogRecord) // Called for each record the queue is done with, e.g. to return it to a pool
}

// Queue is a bounded FIFO of log records, drained in batches by a background scheduler
//
// Put never blocks. Records which cannot be queued are handed to the durability layer, or dropped if that fails.
type Queue struct {
	name          string
	config        Config
	logger        logger.Logger
	args          Args
	channel       chan *base.LogRecord
	mutex         sync.Mutex // guards channel send and close, closed flag and stats
	closed        bool
	stats         base.QueueStats
	metrics       queueMetrics
	warnLimiter   *rate.Limiter
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
	stopOnce      util.RunOnce
	stopSignal    *channels.SignalAwaitable
	loopStopped   *channels.SignalAwaitable
	stoppedSignal *channels.SignalAwaitable
}

// New creates a queue. The scheduler is not running until Start.
func New(parentLogger logger.Logger, name string, config Config, args Args, metricFactory *base.MetricFactory) *Queue {
	if args.Processor == nil {
		args.Processor = NewWriterProcessor(os.Stdout)
	}
	if args.OnReleased == nil {
		args.OnReleased = func(*base.LogRecord) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:          name,
		config:        config,
		logger:        parentLogger.WithFields(logger.Fields{defs.LabelComponent: "LogQueue", defs.LabelQueue: name}),
		args:          args,
		channel:       make(chan *base.LogRecord, config.MaxSize),
		mutex:         sync.Mutex{},
		closed:        false,
		metrics:       newQueueMetrics(name, metricFactory),
		warnLimiter:   rate.NewLimiter(rate.Every(defs.OverflowWarningInterval), 1),
		ctx:           ctx,
		cancel:        cancel,
		stopSignal:    channels.NewSignalAwaitable(),
		loopStopped:   channels.NewSignalAwaitable(),
		stoppedSignal: channels.NewSignalAwaitable(),
	}
	q.stopOnce = util.NewRunOnce(q.stop)
	if args.Durability != nil {
		args.Durability.OnCircuitClosed(func() {
			q.RestoreFromBackup()
		})
	}
	return q
}

// Name returns the name of this queue
func (q *Queue) Name() string {
	return q.name
}

// Len returns the numbers of records waiting in queue, not including the batch being assembled
func (q *Queue) Len() int {
	return len(q.channel)
}

// Put adds a record to the queue without blocking
//
// Returns true if the record is queued or persisted by the durability layer, false if dropped. On false the
// caller keeps the ownership of the record.
func (q *Queue) Put(record *base.LogRecord) bool {
	q.mutex.Lock()
	if q.closed {
		q.mutex.Unlock()
		return q.overflow(record, "queue closed")
	}
	if q.args.Controller != nil && !q.args.Controller.ShouldAcceptMessage(len(q.channel)) {
		q.mutex.Unlock()
		return q.overflow(record, "backpressure")
	}
	select {
	case q.channel <- record:
		size := len(q.channel)
		q.stats.Enqueued++
		q.stats.CurrentSize = size
		if size > q.stats.MaxSize {
			q.stats.MaxSize = size
		}
		q.mutex.Unlock()
		q.metrics.enqueuedTotal.Inc()
		q.metrics.length.Inc()
		return true
	default:
		q.mutex.Unlock()
		return q.overflow(record, "queue full")
	}
}

func (q *Queue) overflow(record *base.LogRecord, reason string) bool {
	if q.args.Durability != nil && q.args.Durability.BackupMessage(record, q.name) {
		q.metrics.backedUpTotal.Inc()
		q.args.OnReleased(record)
		return true
	}
	q.mutex.Lock()
	q.stats.Dropped++
	dropped := q.stats.Dropped
	q.mutex.Unlock()
	q.metrics.droppedTotal.Inc()
	if q.warnLimiter.Allow() {
		q.logger.Warnf("dropped record (%s), total dropped=%d", reason, dropped)
	}
	return false
}

// Get takes the next record, waiting up to the timeout
//
// It's meant for consumers polling the queue on their own instead of running the scheduler.
func (q *Queue) Get(timeout time.Duration) (*base.LogRecord, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case record, ok := <-q.channel:
		if !ok {
			return nil, ErrClosed
		}
		q.onDequeued(1)
		return record, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

func (q *Queue) onDequeued(count int) {
	q.mutex.Lock()
	q.stats.CurrentSize = len(q.channel)
	q.mutex.Unlock()
	q.metrics.length.Sub(float64(count))
}

// Start launches the batch scheduler in background
func (q *Queue) Start() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	go q.run()
}

// Stop stops the scheduler and processes all remaining records synchronously
//
// The scheduler gets defs.StopTimeout to finish its current batch, after which in-flight processing is cancelled.
func (q *Queue) Stop() {
	q.stopOnce()
	<-q.stoppedSignal.Channel()
}

// Stopped returns an Awaitable which is signaled when stopped and drained
func (q *Queue) Stopped() channels.Awaitable {
	return q.stoppedSignal
}

func (q *Queue) stop() {
	defer q.stoppedSignal.Signal()
	q.stopSignal.Signal()

	q.mutex.Lock()
	started := q.started
	q.mutex.Unlock()
	if started && !q.loopStopped.Wait(defs.StopTimeout) {
		q.logger.Warnf("scheduler didn't stop in %s, cancelling in-flight batch", defs.StopTimeout)
		q.cancel()
		if !q.loopStopped.Wait(defs.StopTimeout) {
			q.logger.Errorf("scheduler still running after cancellation, waiting for processor to return")
			<-q.loopStopped.Channel()
		}
	}

	q.mutex.Lock()
	q.closed = true
	close(q.channel)
	q.mutex.Unlock()

	remaining := util.CollectFromChannel(q.channel)
	if len(remaining) > 0 {
		q.onDequeued(len(remaining))
		q.logger.Infof("drain %d remaining records on shutdown", len(remaining))
	}
	for len(remaining) > 0 {
		n := util.MinInt(len(remaining), q.config.BatchSize)
		q.submitBatch(context.Background(), remaining[:n])
		remaining = remaining[n:]
	}
	q.cancel()
	q.logger.Info("stopped")
}

// Stats returns a snapshot of counters
func (q *Queue) Stats() base.QueueStats {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	stats := q.stats
	stats.CurrentSize = len(q.channel)
	return stats
}

// RestoreFromBackup re-injects records of this queue from the durability layer
//
// Records which don't fit into the queue go back to the durability layer. Returns the numbers of records restored.
func (q *Queue) RestoreFromBackup() int {
	if q.args.Durability == nil {
		return 0
	}
	records := q.args.Durability.RestoreMessages(q.name)
	queued := 0
	for _, record := range records {
		if q.Put(record) {
			queued++
		}
	}
	if len(records) > 0 {
		q.logger.Infof("re-injected %d of %d restored records", queued, len(records))
	}
	return queued
}
