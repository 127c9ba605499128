package base

import (
	"context"
)

// BatchProcessor consumes batches flushed by a queue scheduler
//
// Records belong to the caller: they must not be retained after ProcessBatch returns, as they would be released for
// reuse. A returned error means the whole batch is to be retried or backed up.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, records []*LogRecord) error
}

// BatchProcessorFunc adapts a function to BatchProcessor
type BatchProcessorFunc func(ctx context.Context, records []*LogRecord) error

// ProcessBatch calls the function itself
func (f BatchProcessorFunc) ProcessBatch(ctx context.Context, records []*LogRecord) error {
	return f(ctx, records)
}
