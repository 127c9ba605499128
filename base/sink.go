package base

// Sink is a destination of formatted records, e.g. console stream or file
//
// Every sink can be used directly as the BatchProcessor of a queue. Sinks never retain records after returning from
// any of the methods; records are formatted on the calling goroutine and only the output bytes are queued.
type Sink interface {
	PipelineWorker
	BatchProcessor

	// Name returns the name for logging and metrics
	Name() string

	// Emit writes the record on best-effort basis: queued if the worker is running, or written directly otherwise
	Emit(record *LogRecord) error

	// EmitAsync queues the record for the worker without blocking, returns false if the micro-queue is full or the
	// worker isn't running
	EmitAsync(record *LogRecord) bool

	// Flush writes out all buffered output synchronously
	Flush() error
}
