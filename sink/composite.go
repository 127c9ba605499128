package sink

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// CompositeSink fans out records and batches to all children concurrently
//
// Errors of individual children are logged and counted. Only when all children fail is the error returned, so that a
// queue doesn't retry a batch already written by some of them.
type CompositeSink struct {
	name              string
	logger            logger.Logger
	children          []base.Sink
	childErrorsTotal  *prometheus.CounterVec
	warnLimiter       *rate.Limiter
	stoppedAwaitables channels.Awaitable
}

// NewCompositeSink creates a CompositeSink of given children, which are started and stopped together
func NewCompositeSink(parentLogger logger.Logger, name string, children []base.Sink,
	metricFactory *base.MetricFactory) *CompositeSink {

	awaitables := make([]channels.Awaitable, len(children))
	for i, child := range children {
		awaitables[i] = child.Stopped()
	}
	return &CompositeSink{
		name:     name,
		logger:   parentLogger.WithFields(logger.Fields{defs.LabelComponent: "CompositeSink", defs.LabelSink: name}),
		children: children,
		childErrorsTotal: metricFactory.AddOrGetCounterVec("sink_child_errors_total", "Numbers of errors from children of composite sinks",
			[]string{"sink", "child"}, []string{name}),
		warnLimiter:       rate.NewLimiter(rate.Every(defs.OverflowWarningInterval), 1),
		stoppedAwaitables: channels.AllAwaitables(awaitables...),
	}
}

// Name returns the name of this sink
func (composite *CompositeSink) Name() string {
	return composite.name
}

// Children returns the child sinks
func (composite *CompositeSink) Children() []base.Sink {
	return composite.children
}

// Start starts all children
func (composite *CompositeSink) Start() {
	for _, child := range composite.children {
		child.Start()
	}
}

// Stop stops all children in parallel and waits for them
func (composite *CompositeSink) Stop() {
	group := &errgroup.Group{}
	for _, child := range composite.children {
		c := child
		group.Go(func() error {
			c.Stop()
			return nil
		})
	}
	_ = group.Wait()
}

// Stopped returns an Awaitable signaled when all children are stopped
func (composite *CompositeSink) Stopped() channels.Awaitable {
	return composite.stoppedAwaitables
}

// Emit writes the record to all children
func (composite *CompositeSink) Emit(record *base.LogRecord) error {
	return composite.fanOut(func(child base.Sink) error {
		return child.Emit(record)
	})
}

// EmitAsync queues the record to all children, returns true if any of them accepted it
func (composite *CompositeSink) EmitAsync(record *base.LogRecord) bool {
	accepted := false
	for _, child := range composite.children {
		if child.EmitAsync(record) {
			accepted = true
		}
	}
	return accepted
}

// ProcessBatch writes the batch to all children concurrently
func (composite *CompositeSink) ProcessBatch(ctx context.Context, records []*base.LogRecord) error {
	return composite.fanOut(func(child base.Sink) error {
		return child.ProcessBatch(ctx, records)
	})
}

// Flush flushes all children
func (composite *CompositeSink) Flush() error {
	return composite.fanOut(func(child base.Sink) error {
		return child.Flush()
	})
}

// fanOut runs the action for each child concurrently and returns error only if all of them failed
func (composite *CompositeSink) fanOut(action func(child base.Sink) error) error {
	if len(composite.children) == 0 {
		return nil
	}
	errs := make([]error, len(composite.children))
	var numFailed int32
	group := &errgroup.Group{}
	for i, child := range composite.children {
		index := i
		c := child
		group.Go(func() error {
			if err := action(c); err != nil {
				errs[index] = err
				atomic.AddInt32(&numFailed, 1)
				composite.childErrorsTotal.WithLabelValues(c.Name()).Inc()
			}
			return nil
		})
	}
	_ = group.Wait()

	if numFailed == 0 {
		return nil
	}
	if composite.warnLimiter.Allow() {
		for i, err := range errs {
			if err != nil {
				composite.logger.Warnf("error from child '%s': %s", composite.children[i].Name(), err.Error())
			}
		}
	}
	if int(numFailed) < len(composite.children) {
		return nil
	}
	return fmt.Errorf("all %d children failed: %w", numFailed, errors.Join(errs...))
}
