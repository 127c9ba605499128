package logqueue

import (
	"context"
	"time"

	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
)

func (q *Queue) run() {
	defer q.loopStopped.Signal()
	q.logger.Info("start scheduler")

	batch := make([]*base.LogRecord, 0, q.config.BatchSize)
	lastFlush := time.Now()
	ticker := time.NewTicker(defs.QueuePollTimeout)
	defer ticker.Stop()

	// flush returns false if interrupted by stop, leaving the batch for shutdown
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		if !q.delayForBackpressure() {
			return false
		}
		q.submitBatch(q.ctx, batch)
		batch = make([]*base.LogRecord, 0, q.config.BatchSize)
		lastFlush = time.Now()
		return true
	}

SELECT_LOOP:
	for {
		select {
		case record, ok := <-q.channel:
			if !ok {
				break SELECT_LOOP
			}
			q.onDequeued(1)
			batch = append(batch, record)
			if len(batch) >= q.config.BatchSize || len(q.channel) == 0 {
				if !flush() {
					break SELECT_LOOP
				}
			}
		case <-ticker.C:
			if time.Since(lastFlush) >= q.config.BatchTimeout && !flush() {
				break SELECT_LOOP
			}
		case <-q.stopSignal.Channel():
			break SELECT_LOOP
		}
	}

	if len(batch) > 0 {
		q.logger.Infof("flush %d batched records on shutdown", len(batch))
		q.submitBatch(q.ctx, batch)
	}
	q.logger.Info("end scheduler")
}

// delayForBackpressure waits for the advised processing delay, returns false if interrupted by stop
func (q *Queue) delayForBackpressure() bool {
	if q.args.Controller == nil {
		return true
	}
	delay := q.args.Controller.ProcessingDelay(len(q.channel))
	if delay <= 0 {
		return true
	}
	return !q.stopSignal.Wait(delay)
}

// submitBatch hands the batch to processor with retries, then to the durability layer if still failing
//
// All records in the batch are released when it returns.
func (q *Queue) submitBatch(ctx context.Context, batch []*base.LogRecord) {
	defer q.release(batch)

	for attempt := 1; attempt <= defs.ProcessorMaxAttempts; attempt++ {
		start := time.Now()
		err := q.args.Processor.ProcessBatch(ctx, batch)
		if err == nil {
			q.onBatchProcessed(len(batch), time.Since(start))
			return
		}

		q.mutex.Lock()
		q.stats.Retried++
		q.mutex.Unlock()
		q.metrics.retriedTotal.Inc()
		q.logger.Warnf("failed to process batch of %d, attempt=%d: %s", len(batch), attempt, err.Error())

		if q.args.Durability != nil && !q.args.Durability.ShouldRetry(err) {
			q.logger.Warnf("retry denied by circuit breaker, backup batch of %d", len(batch))
			break
		}
		if attempt < defs.ProcessorMaxAttempts {
			time.Sleep(defs.ProcessorRetryBackoff * time.Duration(attempt))
		}
	}
	q.backupBatch(batch)
}

func (q *Queue) backupBatch(batch []*base.LogRecord) {
	saved := 0
	if q.args.Durability != nil {
		saved = q.args.Durability.BackupBatch(batch, q.name)
	}
	q.metrics.backedUpTotal.Add(float64(saved))
	if failed := len(batch) - saved; failed > 0 {
		q.mutex.Lock()
		q.stats.Failed += uint64(failed)
		q.mutex.Unlock()
		q.metrics.failedTotal.Add(float64(failed))
		q.logger.Errorf("lost %d records of failed batch", failed)
	}
}

func (q *Queue) onBatchProcessed(count int, elapsed time.Duration) {
	q.mutex.Lock()
	q.stats.Processed += uint64(count)
	q.stats.BatchCount++
	q.stats.TotalProcessingTime += elapsed
	q.stats.AverageProcessingTime = q.stats.TotalProcessingTime / time.Duration(q.stats.BatchCount)
	q.stats.LastBatchTime = time.Now()
	q.mutex.Unlock()
	q.metrics.processedTotal.Add(float64(count))
	q.metrics.batchesTotal.Inc()
}

func (q *Queue) release(batch []*base.LogRecord) {
	for i, record := range batch {
		q.args.OnReleased(record)
		batch[i] = nil
	}
}
