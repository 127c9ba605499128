package base

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyMessage is returned when a record is constructed or validated without message
var ErrEmptyMessage = errors.New("log record message is empty")

// LogRecord defines a log record flowing through queue, batch and sinks
//
// A record must not be modified once handed to the pipeline. Only the pool resets it between reuse cycles.
type LogRecord struct {
	Timestamp time.Time              // Creation time, includes monotonic reading if taken from time.Now()
	Level     LogLevel               // Numeric level, see LogLevel.String() for name
	Layer     string                 // Layer or category of the producer, e.g. "db" or "http"
	Message   string                 // Non-empty message
	Source    SourceLocation         // Optional call-site location supplied by the producer
	Logger    string                 // Logger identifier
	Extra     map[string]interface{} // Extension fields. Nil until used; cleared (not replaced) by the pool
}

// SourceLocation is the optional call-site of a record
//
// It must be captured by the producer, e.g. runtime.Caller in a thin wrapper; the pipeline never walks stacks.
type SourceLocation struct {
	File     string
	Function string
	Line     int
}

// NewLogRecord creates a validated record with current time
func NewLogRecord(level LogLevel, layer string, message string) (*LogRecord, error) {
	record := &LogRecord{
		Timestamp: time.Now(),
		Level:     level,
		Layer:     layer,
		Message:   message,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// Validate checks the mandatory fields of this record
func (record *LogRecord) Validate() error {
	if record.Message == "" {
		return ErrEmptyMessage
	}
	return nil
}

// SetExtra sets an extension field, allocating the map on first use
func (record *LogRecord) SetExtra(key string, value interface{}) {
	if record.Extra == nil {
		record.Extra = make(map[string]interface{}, 4)
	}
	record.Extra[key] = value
}

// IsZero returns true if no location has been supplied
func (loc SourceLocation) IsZero() bool {
	return loc.File == "" && loc.Function == "" && loc.Line == 0
}

func (loc SourceLocation) String() string {
	if loc.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%d %s", loc.File, loc.Line, loc.Function)
}

func (record *LogRecord) String() string {
	return fmt.Sprintf("level=%s layer=%s len=%d", record.Level, record.Layer, len(record.Message))
}
