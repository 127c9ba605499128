package base

// Formatter renders a record into bytes right before it's written by a sink
//
// The output is opaque to the pipeline. Sinks fall back to a fixed layout if Format returns error.
type Formatter interface {
	Format(record *LogRecord) ([]byte, error)
}

// FormatterFunc adapts a function to Formatter
type FormatterFunc func(record *LogRecord) ([]byte, error)

// Format calls the function itself
func (f FormatterFunc) Format(record *LogRecord) ([]byte, error) {
	return f(record)
}
