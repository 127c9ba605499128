// Package pipeline wires record pool, backpressure, queue, durability and sinks into one logging pipeline
package pipeline

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/backpressure"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/config"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/durability"
	"github.com/relex/logpipe/logqueue"
	"github.com/relex/logpipe/recordpool"
	"github.com/relex/logpipe/sink"
	"github.com/relex/logpipe/util"
)

// Pipeline is the producer-facing entry of log records
//
// Records are borrowed from the pool, admitted by the backpressure controller, queued, written by sinks in batches
// and finally returned to the pool. Records which cannot be queued or written go to the durability layer if enabled.
type Pipeline struct {
	name       string
	logger     logger.Logger
	clock      clockwork.Clock
	registry   *recordpool.Registry
	pool       *recordpool.Pool
	durability *durability.Layer // nil if disabled in config
	controller *backpressure.Controller
	sinks      []base.Sink
	output     base.Sink
	queue      *logqueue.Queue
	startOnce  util.RunOnce
	stopOnce   util.RunOnce
	stopped    *channels.SignalAwaitable
}

// New creates a pipeline from verified config. Nothing is started until Start.
//
// Clock may be nil for the system clock.
func New(parentLogger logger.Logger, cfg config.PipelineConfig, clock clockwork.Clock, metricFactory *base.MetricFactory) (*Pipeline, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	plogger := parentLogger.WithFields(logger.Fields{defs.LabelComponent: "Pipeline", defs.LabelName: cfg.Name})

	sinks := make([]base.Sink, 0, len(cfg.Sinks))
	for i := range cfg.Sinks {
		s, err := cfg.Sinks[i].NewSink(plogger, clock, metricFactory)
		if err != nil {
			for _, created := range sinks {
				created.Stop()
			}
			return nil, fmt.Errorf("sinks[%d]: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	var output base.Sink
	if len(sinks) == 1 {
		output = sinks[0]
	} else {
		output = sink.NewCompositeSink(plogger, cfg.Name, sinks, metricFactory)
	}

	var layer *durability.Layer
	if cfg.Durability.Enabled {
		layer = durability.NewOrDisabled(plogger, durability.Config{
			Dir:   cfg.Durability.ExpandedDir(plogger),
			Owner: cfg.Durability.Owner,
		}, clock, metricFactory)
	}

	registry := recordpool.NewRegistry(plogger, metricFactory)
	pool := registry.GetOrCreate(cfg.Name, cfg.Pool)
	controller := backpressure.New(cfg.Queue.MaxSize, cfg.Backpressure.DropThreshold, cfg.Backpressure.SlowDownThreshold)

	queue := logqueue.New(plogger, cfg.Name, cfg.Queue, logqueue.Args{
		Processor:  output,
		Durability: layer,
		Controller: controller,
		OnReleased: pool.Put,
	}, metricFactory)

	p := &Pipeline{
		name:       cfg.Name,
		logger:     plogger,
		clock:      clock,
		registry:   registry,
		pool:       pool,
		durability: layer,
		controller: controller,
		sinks:      sinks,
		output:     output,
		queue:      queue,
		stopped:    channels.NewSignalAwaitable(),
	}
	p.startOnce = util.NewRunOnce(p.start)
	p.stopOnce = util.NewRunOnce(p.stop)
	return p, nil
}

// Start launches sink workers and the scheduler, then re-injects records left in backup storage
func (p *Pipeline) Start() {
	p.startOnce()
}

func (p *Pipeline) start() {
	p.output.Start()
	p.queue.Start()
	p.pool.StartAutoResize(defs.PoolResizeInterval)
	if restored := p.queue.RestoreFromBackup(); restored > 0 {
		p.logger.Infof("restored %d records from backup", restored)
	}
	p.logger.Info("started")
}

// Stop drains the queue into sinks, stops sinks and releases all resources
func (p *Pipeline) Stop() {
	p.stopOnce()
	<-p.stopped.Channel()
}

// Stopped returns an Awaitable signaled when the pipeline is completely stopped
func (p *Pipeline) Stopped() channels.Awaitable {
	return p.stopped
}

func (p *Pipeline) stop() {
	defer p.stopped.Signal()
	p.queue.Stop()
	p.output.Stop()
	p.registry.Close()
	if p.durability != nil {
		p.durability.Close()
	}
	p.logger.Info("stopped")
}

// NewRecord borrows a reset record from the pool, to be filled and passed to Enqueue
func (p *Pipeline) NewRecord() *base.LogRecord {
	record := p.pool.Get()
	record.Timestamp = p.clock.Now()
	return record
}

// Enqueue hands a record to the pipeline without blocking
//
// Returns false if the record is dropped, in which case the caller keeps it. The record must not be touched after
// true is returned.
func (p *Pipeline) Enqueue(record *base.LogRecord) bool {
	if err := record.Validate(); err != nil {
		return false
	}
	return p.queue.Put(record)
}

// Log creates a record from pool and enqueues it. The source location is optional.
func (p *Pipeline) Log(level base.LogLevel, layer string, message string, source *base.SourceLocation) error {
	if message == "" {
		return base.ErrEmptyMessage
	}
	record := p.NewRecord()
	record.Level = level
	record.Layer = layer
	record.Message = message
	record.Logger = p.name
	if source != nil {
		record.Source = *source
	}
	if !p.Enqueue(record) {
		p.pool.Put(record)
		return ErrRejected
	}
	return nil
}

// Sinks returns the sinks in the order of config
func (p *Pipeline) Sinks() []base.Sink {
	return p.sinks
}

// GetStats returns a snapshot of queue counters
func (p *Pipeline) GetStats() base.QueueStats {
	return p.queue.Stats()
}

// GetPoolStats returns a snapshot of the named record pool
func (p *Pipeline) GetPoolStats(name string) (base.PoolStats, bool) {
	return p.registry.Stats(name)
}

// GetAllPoolStats returns snapshots of all record pools ordered by name
func (p *Pipeline) GetAllPoolStats() []base.PoolStats {
	return p.registry.AllStats()
}

// GetProtectionStats returns a snapshot of the durability layer, or zero values if disabled
func (p *Pipeline) GetProtectionStats() base.ProtectionStats {
	if p.durability == nil {
		return base.ProtectionStats{}
	}
	return p.durability.ProtectionStats()
}
