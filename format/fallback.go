// Package format provides formatters to render log records for sinks
package format

import (
	"github.com/relex/logpipe/base"
)

// Fallback renders a record as "LEVEL [layer] message"
//
// It never fails and is used whenever the configured formatter does.
func Fallback(record *base.LogRecord) []byte {
	level := record.Level.String()
	buf := make([]byte, 0, len(level)+len(record.Layer)+len(record.Message)+4)
	buf = append(buf, level...)
	buf = append(buf, " ["...)
	buf = append(buf, record.Layer...)
	buf = append(buf, "] "...)
	buf = append(buf, record.Message...)
	return buf
}

// FallbackFormatter is the Formatter of Fallback
var FallbackFormatter base.Formatter = base.FormatterFunc(func(record *base.LogRecord) ([]byte, error) {
	return Fallback(record), nil
})
