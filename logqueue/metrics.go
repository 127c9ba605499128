package logqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/logpipe/base"
)

type queueMetrics struct {
	enqueuedTotal  prometheus.Counter
	processedTotal prometheus.Counter
	droppedTotal   prometheus.Counter
	failedTotal    prometheus.Counter
	retriedTotal   prometheus.Counter
	backedUpTotal  prometheus.Counter
	batchesTotal   prometheus.Counter
	length         prometheus.Gauge
}

func newQueueMetrics(name string, metricFactory *base.MetricFactory) queueMetrics {
	recordsTotal := metricFactory.AddOrGetCounterVec("queue_records_total", "Numbers of records by result",
		[]string{"queue", "result"}, []string{name})
	return queueMetrics{
		enqueuedTotal:  recordsTotal.WithLabelValues("enqueued"),
		processedTotal: recordsTotal.WithLabelValues("processed"),
		droppedTotal:   recordsTotal.WithLabelValues("dropped"),
		failedTotal:    recordsTotal.WithLabelValues("failed"),
		backedUpTotal:  recordsTotal.WithLabelValues("backedup"),
		retriedTotal: metricFactory.AddOrGetCounter("queue_retries_total", "Numbers of failed batch attempts",
			[]string{"queue"}, []string{name}),
		batchesTotal: metricFactory.AddOrGetCounter("queue_batches_total", "Numbers of batches processed",
			[]string{"queue"}, []string{name}),
		length: metricFactory.AddOrGetGauge("queue_length", "Numbers of records waiting in queue",
			[]string{"queue"}, []string{name}),
	}
}
