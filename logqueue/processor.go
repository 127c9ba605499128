package logqueue

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/format"
)

// FireAndForget wraps a processor to run each batch in background and report success immediately
//
// Records are copied before handing over, since the originals are released once ProcessBatch returns.
// Errors of the background processing are only logged.
func FireAndForget(parentLogger logger.Logger, processor base.BatchProcessor) base.BatchProcessor {
	flogger := parentLogger.WithField("processor", "FireAndForget")
	return base.BatchProcessorFunc(func(_ context.Context, records []*base.LogRecord) error {
		copies := make([]*base.LogRecord, len(records))
		for i, record := range records {
			copies[i] = cloneRecord(record)
		}
		go func() {
			if err := processor.ProcessBatch(context.Background(), copies); err != nil {
				flogger.Warnf("error processing batch of %d: %s", len(copies), err.Error())
			}
		}()
		return nil
	})
}

// NewWriterProcessor creates a processor which writes each record as one line in fallback layout
func NewWriterProcessor(writer io.Writer) base.BatchProcessor {
	mutex := &sync.Mutex{}
	return base.BatchProcessorFunc(func(_ context.Context, records []*base.LogRecord) error {
		mutex.Lock()
		defer mutex.Unlock()
		buffered := bufio.NewWriter(writer)
		for _, record := range records {
			if _, err := buffered.Write(format.Fallback(record)); err != nil {
				return err
			}
			if err := buffered.WriteByte('\n'); err != nil {
				return err
			}
		}
		return buffered.Flush()
	})
}

func cloneRecord(record *base.LogRecord) *base.LogRecord {
	clone := *record
	if record.Extra != nil {
		clone.Extra = make(map[string]interface{}, len(record.Extra))
		for k, v := range record.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}
