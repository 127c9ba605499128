// Package sink provides destinations of log records: console streams, rotating files and fan-out to several sinks
package sink

import (
	"io"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/format"
)

// StreamSink writes to an io.Writer such as os.Stdout
type StreamSink struct {
	*workerBase
}

// NewStreamSink creates a StreamSink. The writer isn't closed on Stop.
func NewStreamSink(parentLogger logger.Logger, name string, writer io.Writer, formatter base.Formatter, options Options,
	metricFactory *base.MetricFactory) *StreamSink {

	return &StreamSink{
		workerBase: newWorkerBase(parentLogger, name, &streamWriter{writer: writer}, formatter, separatorOf(formatter),
			options, metricFactory),
	}
}

type streamWriter struct {
	writer  io.Writer
	scratch []byte
}

func (sw *streamWriter) writeEntries(entries [][]byte) (int, error) {
	sw.scratch = sw.scratch[:0]
	for _, entry := range entries {
		sw.scratch = append(sw.scratch, entry...)
	}
	n, err := sw.writer.Write(sw.scratch)
	if err != nil {
		return countCompleteEntries(entries, n), err
	}
	return len(entries), nil
}

func (sw *streamWriter) close() error {
	return nil
}

// countCompleteEntries returns the numbers of leading entries covered by n bytes
func countCompleteEntries(entries [][]byte, n int) int {
	for i, entry := range entries {
		if n < len(entry) {
			return i
		}
		n -= len(entry)
	}
	return len(entries)
}

func separatorOf(formatter base.Formatter) []byte {
	if format.IsBinary(formatter) {
		return nil
	}
	return []byte{'\n'}
}
