package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/logpipe/base"
)

type sinkMetrics struct {
	writtenBytesTotal   prometheus.Counter
	writeErrorsTotal    prometheus.Counter
	formatErrorsTotal   prometheus.Counter
	flushesTotal        prometheus.Counter
	droppedEntriesTotal prometheus.Counter
}

func newSinkMetrics(name string, metricFactory *base.MetricFactory) sinkMetrics {
	labelNames := []string{"sink"}
	labelValues := []string{name}
	return sinkMetrics{
		writtenBytesTotal:   metricFactory.AddOrGetCounter("sink_written_bytes_total", "Bytes written by sinks", labelNames, labelValues),
		writeErrorsTotal:    metricFactory.AddOrGetCounter("sink_write_errors_total", "Numbers of failed writes", labelNames, labelValues),
		formatErrorsTotal:   metricFactory.AddOrGetCounter("sink_format_errors_total", "Numbers of records rendered by fallback layout after formatter failure", labelNames, labelValues),
		flushesTotal:        metricFactory.AddOrGetCounter("sink_flushes_total", "Numbers of buffer flushes", labelNames, labelValues),
		droppedEntriesTotal: metricFactory.AddOrGetCounter("sink_dropped_entries_total", "Numbers of formatted records dropped from full buffer or queue of stopped sinks", labelNames, labelValues),
	}
}
