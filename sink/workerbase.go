package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/util"
	"golang.org/x/time/rate"
)

// ErrSinkStopped is returned for writes after a sink has been stopped
var ErrSinkStopped = errors.New("sink stopped")

// Options defines buffering of a sink worker. Zero values are replaced by defaults from defs.
type Options struct {
	FlushInterval time.Duration // Max delay of buffered output
	FlushBytes    int           // Buffer size above which output is flushed immediately
	QueueSize     int           // Capacity of the micro-queue between producers and the worker
	MinLevel      base.LogLevel // Records below are skipped
}

func (opts Options) withDefaults() Options {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defs.SinkFlushInterval
	}
	if opts.FlushBytes <= 0 {
		opts.FlushBytes = defs.SinkFlushBytes
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defs.SinkQueueSize
	}
	return opts
}

// entryWriter performs physical writes of formatted entries
type entryWriter interface {
	// writeEntries writes entries in order and returns the numbers of entries completely written
	writeEntries(entries [][]byte) (int, error)
	close() error
}

type workerState int

const (
	workerIdle workerState = iota
	workerRunning
	workerStopped
)

// workerBase implements base.Sink around an entryWriter
//
// Records are formatted on the calling goroutine, so only bytes are queued and records are never retained.
// The worker goroutine moves entries from the micro-queue to the output buffer and flushes by size or interval.
// Entries are only taken out of the micro-queue under writeLock, so that direct writes can go after them.
type workerBase struct {
	name          string
	logger        logger.Logger
	formatter     *ParallelFormatter
	options       Options
	queue         chan []byte
	wakeup        chan struct{}
	writer        entryWriter
	writeLock     sync.Mutex // guards buffer, writer, lastFlush and receiving from queue
	buffer        [][]byte
	bufferedBytes int
	lastFlush     time.Time
	active        bool // entries received since the last tick
	stateLock     sync.RWMutex
	state         workerState
	stopOnce      util.RunOnce
	stopSignal    *channels.SignalAwaitable
	loopStopped   *channels.SignalAwaitable
	stoppedSignal *channels.SignalAwaitable
	warnLimiter   *rate.Limiter
	metrics       sinkMetrics
}

func newWorkerBase(parentLogger logger.Logger, name string, writer entryWriter, formatter base.Formatter, separator []byte,
	options Options, metricFactory *base.MetricFactory) *workerBase {

	options = options.withDefaults()
	wlogger := parentLogger.WithFields(logger.Fields{defs.LabelComponent: "Sink", defs.LabelSink: name})
	metrics := newSinkMetrics(name, metricFactory)
	warnLimiter := rate.NewLimiter(rate.Every(defs.OverflowWarningInterval), 1)
	onFormatError := func(record *base.LogRecord, err error) {
		metrics.formatErrorsTotal.Inc()
		if warnLimiter.Allow() {
			wlogger.Warnf("error formatting %s, fallback used: %s", record, err.Error())
		}
	}
	worker := &workerBase{
		name:          name,
		logger:        wlogger,
		formatter:     NewParallelFormatter(formatter, separator, onFormatError),
		options:       options,
		queue:         make(chan []byte, options.QueueSize),
		wakeup:        make(chan struct{}, 1),
		writer:        writer,
		buffer:        make([][]byte, 0, 64),
		lastFlush:     time.Time{},
		state:         workerIdle,
		stopSignal:    channels.NewSignalAwaitable(),
		loopStopped:   channels.NewSignalAwaitable(),
		stoppedSignal: channels.NewSignalAwaitable(),
		warnLimiter:   warnLimiter,
		metrics:       metrics,
	}
	worker.stopOnce = util.NewRunOnce(worker.stop)
	return worker
}

// Name returns the name of this sink
func (worker *workerBase) Name() string {
	return worker.name
}

// Start launches the worker goroutine
func (worker *workerBase) Start() {
	worker.stateLock.Lock()
	defer worker.stateLock.Unlock()
	if worker.state != workerIdle {
		return
	}
	worker.state = workerRunning
	go worker.run()
}

// Stop stops the worker, writes out everything queued and buffered, and closes the output
func (worker *workerBase) Stop() {
	worker.stopOnce()
	<-worker.stoppedSignal.Channel()
}

// Stopped returns an Awaitable which is signaled when stopped
func (worker *workerBase) Stopped() channels.Awaitable {
	return worker.stoppedSignal
}

// Emit formats and writes the record on best-effort basis
//
// The output is queued if the worker is running, or written synchronously if not or if the micro-queue is full.
func (worker *workerBase) Emit(record *base.LogRecord) error {
	if record.Level < worker.options.MinLevel {
		return nil
	}
	entry := worker.formatter.Format(record)

	worker.stateLock.RLock()
	defer worker.stateLock.RUnlock()
	switch worker.state {
	case workerStopped:
		return ErrSinkStopped
	case workerRunning:
		if worker.enqueue(entry) {
			return nil
		}
	}
	return worker.writeDirect([][]byte{entry})
}

// EmitAsync queues the record for the worker, returns false if not running or the micro-queue is full
//
// Records below MinLevel are skipped and count as accepted.
func (worker *workerBase) EmitAsync(record *base.LogRecord) bool {
	if record.Level < worker.options.MinLevel {
		return true
	}
	worker.stateLock.RLock()
	defer worker.stateLock.RUnlock()
	if worker.state != workerRunning {
		return false
	}
	return worker.enqueue(worker.formatter.Format(record))
}

// ProcessBatch formats and writes a batch, implementing base.BatchProcessor
//
// Errors are only returned if the sink is stopped or, when it's not running, the synchronous write fails.
func (worker *workerBase) ProcessBatch(ctx context.Context, records []*base.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries := worker.formatter.FormatBatch(worker.filterLevel(records))

	worker.stateLock.RLock()
	defer worker.stateLock.RUnlock()
	switch worker.state {
	case workerStopped:
		return ErrSinkStopped
	case workerRunning:
		for i, entry := range entries {
			if !worker.enqueue(entry) {
				// write the rest directly, after the earlier part still in micro-queue
				worker.writeDirectAsync(entries[i:])
				return nil
			}
		}
		return nil
	default:
		return worker.writeDirect(entries)
	}
}

// filterLevel returns records at or above MinLevel, or the same slice if all of them pass
func (worker *workerBase) filterLevel(records []*base.LogRecord) []*base.LogRecord {
	for i, record := range records {
		if record.Level >= worker.options.MinLevel {
			continue
		}
		selected := append(make([]*base.LogRecord, 0, len(records)), records[:i]...)
		for _, rest := range records[i+1:] {
			if rest.Level >= worker.options.MinLevel {
				selected = append(selected, rest)
			}
		}
		return selected
	}
	return records
}

// Flush writes out all buffered output synchronously
func (worker *workerBase) Flush() error {
	worker.writeLock.Lock()
	defer worker.writeLock.Unlock()
	return worker.flushLocked()
}

// enqueue puts the entry into micro-queue and wakes up the worker, returns false if the micro-queue is full
func (worker *workerBase) enqueue(entry []byte) bool {
	select {
	case worker.queue <- entry:
	default:
		return false
	}
	select {
	case worker.wakeup <- struct{}{}:
	default:
	}
	return true
}

// writeDirect writes entries synchronously and returns error if any of them remains unwritten
//
// Entries waiting in micro-queue are written first.
func (worker *workerBase) writeDirect(entries [][]byte) error {
	worker.writeLock.Lock()
	defer worker.writeLock.Unlock()
	worker.receiveLocked()
	worker.appendLocked(entries)
	return worker.flushLocked()
}

// writeDirectAsync writes entries synchronously from a running worker, where failures are kept in buffer for the loop
func (worker *workerBase) writeDirectAsync(entries [][]byte) {
	_ = worker.writeDirect(entries)
}

func (worker *workerBase) run() {
	defer worker.loopStopped.Signal()
	worker.logger.Info("start worker")
	ticker := time.NewTicker(defs.SinkDequeueTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-worker.wakeup:
			worker.onWakeup()
		case <-ticker.C:
			worker.onTick()
		case <-worker.stopSignal.Channel():
			worker.logger.Info("end worker")
			return
		}
	}
}

func (worker *workerBase) onWakeup() {
	worker.writeLock.Lock()
	defer worker.writeLock.Unlock()
	worker.receiveAndFlushLocked()
}

func (worker *workerBase) onTick() {
	worker.writeLock.Lock()
	defer worker.writeLock.Unlock()
	if worker.receiveAndFlushLocked() == 0 {
		worker.active = false
	}
	if len(worker.buffer) > 0 && time.Since(worker.lastFlush) >= worker.options.FlushInterval {
		_ = worker.flushLocked()
	}
}

// receiveAndFlushLocked moves queued entries to buffer, flushing at once if the sink has been idle or the buffer is large
func (worker *workerBase) receiveAndFlushLocked() int {
	idle := len(worker.buffer) == 0 && !worker.active
	received := worker.receiveLocked()
	if received == 0 {
		return 0
	}
	worker.active = true
	if idle || worker.bufferedBytes > worker.options.FlushBytes {
		_ = worker.flushLocked()
	}
	return received
}

// receiveLocked moves all entries currently in micro-queue to buffer without waiting
func (worker *workerBase) receiveLocked() int {
	received := make([][]byte, 0, len(worker.queue))
	for {
		select {
		case entry, ok := <-worker.queue:
			if ok {
				received = append(received, entry)
				continue
			}
		default:
		}
		break
	}
	worker.appendLocked(received)
	return len(received)
}

// appendLocked adds entries to buffer, dropping the oldest beyond defs.SinkMaxBufferedBytes
func (worker *workerBase) appendLocked(entries [][]byte) {
	for _, entry := range entries {
		worker.buffer = append(worker.buffer, entry)
		worker.bufferedBytes += len(entry)
	}
	dropped := 0
	for worker.bufferedBytes > defs.SinkMaxBufferedBytes && len(worker.buffer) > 1 {
		worker.bufferedBytes -= len(worker.buffer[0])
		worker.buffer[0] = nil
		worker.buffer = worker.buffer[1:]
		dropped++
	}
	if dropped > 0 {
		worker.metrics.droppedEntriesTotal.Add(float64(dropped))
		if worker.warnLimiter.Allow() {
			worker.logger.Warnf("dropped %d oldest entries from full buffer", dropped)
		}
	}
}

// flushLocked writes the buffer out. Unwritten entries stay in buffer for the next flush.
func (worker *workerBase) flushLocked() error {
	worker.lastFlush = time.Now()
	if len(worker.buffer) == 0 {
		return nil
	}
	written, err := worker.writer.writeEntries(worker.buffer)
	for i := 0; i < written; i++ {
		worker.metrics.writtenBytesTotal.Add(float64(len(worker.buffer[i])))
		worker.bufferedBytes -= len(worker.buffer[i])
		worker.buffer[i] = nil
	}
	worker.metrics.flushesTotal.Inc()
	if written == len(worker.buffer) {
		worker.buffer = worker.buffer[:0]
	} else {
		remaining := copy(worker.buffer, worker.buffer[written:])
		for i := remaining; i < len(worker.buffer); i++ {
			worker.buffer[i] = nil
		}
		worker.buffer = worker.buffer[:remaining]
	}
	if err != nil {
		worker.metrics.writeErrorsTotal.Inc()
		if worker.warnLimiter.Allow() {
			worker.logger.Errorf("error writing, %d entries kept in buffer: %s", len(worker.buffer), err.Error())
		}
		return err
	}
	return nil
}

func (worker *workerBase) stop() {
	defer worker.stoppedSignal.Signal()

	worker.stateLock.Lock()
	wasRunning := worker.state == workerRunning
	worker.state = workerStopped
	worker.stateLock.Unlock()

	worker.stopSignal.Signal()
	if wasRunning && !worker.loopStopped.Wait(defs.StopTimeout) {
		worker.logger.Warnf("worker didn't stop in %s", defs.StopTimeout)
	}

	worker.writeLock.Lock()
	defer worker.writeLock.Unlock()
	// no more producers after the state change above
	close(worker.queue)
	worker.appendLocked(util.CollectFromChannel(worker.queue))
	if err := worker.flushLocked(); err != nil {
		worker.metrics.droppedEntriesTotal.Add(float64(len(worker.buffer)))
		worker.logger.Errorf("lost %d entries on shutdown: %s", len(worker.buffer), err.Error())
	}
	if err := worker.writer.close(); err != nil {
		worker.logger.Warnf("error closing output: %s", err.Error())
	}
	worker.logger.Info("stopped")
}
