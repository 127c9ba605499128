package sink

import (
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/format"
	"golang.org/x/sync/errgroup"
)

// ParallelFormatter formats batches of records, in parallel goroutines for large batches
//
// Formatter failures are replaced by the fallback layout. Output order follows input order.
type ParallelFormatter struct {
	formatter base.Formatter
	separator []byte
	workers   int
	minBatch  int
	onError   func(record *base.LogRecord, err error)
}

// NewParallelFormatter creates a ParallelFormatter. The separator is appended to each output, e.g. "\n" for text.
func NewParallelFormatter(formatter base.Formatter, separator []byte, onError func(record *base.LogRecord, err error)) *ParallelFormatter {
	if onError == nil {
		onError = func(*base.LogRecord, error) {}
	}
	return &ParallelFormatter{
		formatter: formatter,
		separator: separator,
		workers:   defs.SinkFormatWorkers,
		minBatch:  defs.SinkParallelFormatMinBatch,
		onError:   onError,
	}
}

// Format formats one record
func (pf *ParallelFormatter) Format(record *base.LogRecord) []byte {
	out, err := pf.formatter.Format(record)
	if err != nil {
		pf.onError(record, err)
		out = format.Fallback(record)
	}
	if len(pf.separator) > 0 {
		out = append(out, pf.separator...)
	}
	return out
}

// FormatBatch formats all records
func (pf *ParallelFormatter) FormatBatch(records []*base.LogRecord) [][]byte {
	results := make([][]byte, len(records))
	if len(records) < pf.minBatch || pf.workers <= 1 {
		for i, record := range records {
			results[i] = pf.Format(record)
		}
		return results
	}

	group := &errgroup.Group{}
	group.SetLimit(pf.workers)
	step := (len(records) + pf.workers - 1) / pf.workers
	for start := 0; start < len(records); start += step {
		begin := start
		end := begin + step
		if end > len(records) {
			end = len(records)
		}
		group.Go(func() error {
			for i := begin; i < end; i++ {
				results[i] = pf.Format(records[i])
			}
			return nil
		})
	}
	_ = group.Wait()
	return results
}
