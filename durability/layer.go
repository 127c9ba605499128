// Package durability persists records which cannot be queued or processed, and restores them later
package durability

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/xattr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/util"
	"golang.org/x/time/rate"
)

// ErrDisabled is returned for storage operations on a layer without usable backup directory
var ErrDisabled = errors.New("durability layer is disabled")

const xattrOwner = "user.logpipeOwner"

// Config defines the backup storage
type Config struct {
	Dir   string `yaml:"dir"`   // Backup directory, created if missing
	Owner string `yaml:"owner"` // Label of the directory owner, stored in extended attribute of the directory
}

// Layer stores backup envelopes in a directory and tracks processing failures by a circuit breaker
//
// Backup and restore never panic or return errors; failures are logged and counted.
type Layer struct {
	logger       logger.Logger
	path         string
	maybeDir     *os.File // nil if disabled
	dirMutex     sync.Mutex
	lastStamp    int64 // last timestamp used in envelope names, to keep names of one process in order
	circuit      *circuitState
	callbacks    []func()
	callbackLock sync.Mutex
	warnLimiter  *rate.Limiter
	metrics      layerMetrics
}

type layerMetrics struct {
	backupsTotal     *prometheus.CounterVec
	restoredTotal    *prometheus.CounterVec
	ioErrorsTotal    prometheus.Counter
	corruptTotal     prometheus.Counter
	circuitOpenGauge prometheus.Gauge
}

// New creates a durability layer on the given directory
//
// Failure to create or open the directory is returned; labelling the directory is optional and only logged.
func New(parentLogger logger.Logger, config Config, clock clockwork.Clock, metricFactory *base.MetricFactory) (*Layer, error) {
	layer := newLayer(parentLogger, config.Dir, clock, metricFactory)

	if derr := os.MkdirAll(config.Dir, 0755); derr != nil {
		layer.metrics.ioErrorsTotal.Inc()
		return nil, fmt.Errorf("error creating backup dir path='%s': %w", config.Dir, derr)
	}
	if config.Owner != "" {
		if xerr := xattr.Set(config.Dir, xattrOwner, []byte(config.Owner)); xerr != nil {
			layer.logger.Warnf("error labelling owner on backup dir: %s", xerr.Error())
		}
	}
	dir, oerr := os.Open(config.Dir)
	if oerr != nil {
		layer.metrics.ioErrorsTotal.Inc()
		return nil, fmt.Errorf("error opening backup dir path='%s': %w", config.Dir, oerr)
	}
	layer.maybeDir = dir
	return layer, nil
}

// NewOrDisabled creates a durability layer like New, or a disabled layer if the directory cannot be used
//
// Backups on a disabled layer always fail, while the circuit breaker keeps working.
func NewOrDisabled(parentLogger logger.Logger, config Config, clock clockwork.Clock, metricFactory *base.MetricFactory) *Layer {
	layer, err := New(parentLogger, config, clock, metricFactory)
	if err != nil {
		disabled := newLayer(parentLogger, config.Dir, clock, metricFactory)
		disabled.logger.Errorf("durability disabled: %s", err.Error())
		return disabled
	}
	return layer
}

func newLayer(parentLogger logger.Logger, path string, clock clockwork.Clock, metricFactory *base.MetricFactory) *Layer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Layer{
		logger:      parentLogger.WithFields(logger.Fields{defs.LabelComponent: "Durability", defs.LabelPath: path}),
		path:        path,
		maybeDir:    nil,
		circuit:     newCircuitState(clock, defs.CircuitFailureThreshold, defs.CircuitTimeout),
		warnLimiter: rate.NewLimiter(rate.Every(defs.OverflowWarningInterval), 1),
		metrics: layerMetrics{
			backupsTotal:     metricFactory.AddOrGetCounterVec("durability_backups_total", "Numbers of backup envelopes written", []string{"queue"}, nil),
			restoredTotal:    metricFactory.AddOrGetCounterVec("durability_restored_total", "Numbers of records restored from backup", []string{"queue"}, nil),
			ioErrorsTotal:    metricFactory.AddOrGetCounter("durability_io_errors_total", "Numbers of I/O errors in backup storage", nil, nil),
			corruptTotal:     metricFactory.AddOrGetCounter("durability_corrupt_envelopes_total", "Numbers of malformed envelopes skipped", nil, nil),
			circuitOpenGauge: metricFactory.AddOrGetGauge("durability_circuit_open", "1 if the circuit breaker is open", nil, nil),
		},
	}
}

// Enabled returns true if backups can be written
func (layer *Layer) Enabled() bool {
	layer.dirMutex.Lock()
	defer layer.dirMutex.Unlock()
	return layer.maybeDir != nil
}

// Path returns the backup directory
func (layer *Layer) Path() string {
	return layer.path
}

// BackupMessage persists one record of the given queue
func (layer *Layer) BackupMessage(record *base.LogRecord, queue string) bool {
	if record == nil {
		layer.logger.Errorf("BUG: nil record to backup for queue '%s'. stack=%s", queue, util.Stack())
		return false
	}
	env := &Envelope{
		Queue:     queue,
		CreatedAt: layer.circuit.clock.Now(),
		Record:    newRecordEnvelope(record),
	}
	return layer.writeEnvelope(env) == nil
}

// BackupPayload persists a raw payload of the given queue, to be restored as message
func (layer *Layer) BackupPayload(payload string, queue string) bool {
	env := &Envelope{
		Queue:     queue,
		CreatedAt: layer.circuit.clock.Now(),
		Payload:   payload,
	}
	return layer.writeEnvelope(env) == nil
}

// BackupBatch persists all records of a batch, each in own envelope
//
// Returns the numbers of records persisted
func (layer *Layer) BackupBatch(records []*base.LogRecord, queue string) int {
	saved := 0
	for _, record := range records {
		if !layer.BackupMessage(record, queue) {
			continue
		}
		saved++
	}
	return saved
}

func (layer *Layer) writeEnvelope(env *Envelope) error {
	data, eerr := encodeEnvelope(env)
	if eerr != nil {
		layer.logger.Errorf("error encoding envelope for queue '%s': %s", env.Queue, eerr.Error())
		return eerr
	}
	layer.dirMutex.Lock()
	stamp := env.CreatedAt.UnixNano()
	if stamp <= layer.lastStamp {
		stamp = layer.lastStamp + 1
	}
	layer.lastStamp = stamp
	name := makeEnvelopeName(env.Queue, stamp)
	if layer.maybeDir == nil {
		layer.dirMutex.Unlock()
		if layer.warnLimiter.Allow() {
			layer.logger.Warnf("cannot backup for queue '%s': %s", env.Queue, ErrDisabled.Error())
		}
		return ErrDisabled
	}
	werr := util.WriteFileAt(layer.maybeDir, name, data, 0644)
	layer.dirMutex.Unlock()

	if werr != nil {
		layer.metrics.ioErrorsTotal.Inc()
		if layer.warnLimiter.Allow() {
			layer.logger.Errorf("error writing envelope name=%s: %s", name, werr.Error())
		}
		return werr
	}
	layer.metrics.backupsTotal.WithLabelValues(env.Queue).Inc()
	return nil
}

type envelopeFile struct {
	name      string
	timestamp int64
}

// RestoreMessages loads and deletes all envelopes of the given queue, oldest first
//
// Malformed envelopes are skipped and renamed with ".corrupt" suffix so they are never loaded again
func (layer *Layer) RestoreMessages(queue string) []*base.LogRecord {
	layer.dirMutex.Lock()
	defer layer.dirMutex.Unlock()
	if layer.maybeDir == nil {
		return nil
	}

	files := layer.listEnvelopesLocked(func(queuePart string) bool {
		return queuePart == envelopeQueuePart(queue)
	})
	if len(files) == 0 {
		return nil
	}

	records := make([]*base.LogRecord, 0, len(files))
	for _, file := range files {
		data, rerr := util.ReadFileAt(layer.maybeDir, file.name)
		if rerr != nil {
			layer.metrics.ioErrorsTotal.Inc()
			layer.logger.Errorf("error reading envelope name=%s: %s", file.name, rerr.Error())
			continue
		}
		record, derr := decodeRecord(data)
		if derr != nil {
			layer.metrics.corruptTotal.Inc()
			layer.logger.Warnf("skip malformed envelope name=%s: %s", file.name, derr.Error())
			if merr := util.RenameFileAt(layer.maybeDir, file.name, file.name+corruptSuffix); merr != nil {
				layer.metrics.ioErrorsTotal.Inc()
				layer.logger.Errorf("error renaming malformed envelope name=%s: %s", file.name, merr.Error())
			}
			continue
		}
		if uerr := util.UnlinkFileAt(layer.maybeDir, file.name); uerr != nil {
			// restoring it twice is preferred over losing it
			layer.metrics.ioErrorsTotal.Inc()
			layer.logger.Errorf("error deleting envelope name=%s: %s", file.name, uerr.Error())
		}
		records = append(records, record)
	}
	layer.metrics.restoredTotal.WithLabelValues(queue).Add(float64(len(records)))
	layer.logger.Infof("restored %d records of queue '%s' from %d envelopes", len(records), queue, len(files))
	return records
}

func decodeRecord(data []byte) (*base.LogRecord, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	return env.ToRecord()
}

// listEnvelopesLocked lists envelopes whose queue part is accepted by the filter, oldest first
func (layer *Layer) listEnvelopesLocked(filter func(queuePart string) bool) []envelopeFile {
	names, lerr := util.ListFileNamesAt(layer.maybeDir)
	if lerr != nil {
		layer.metrics.ioErrorsTotal.Inc()
		layer.logger.Errorf("error listing backup dir: %s", lerr.Error())
		return nil
	}
	files := make([]envelopeFile, 0, len(names))
	for _, name := range names {
		queuePart, ts, ok := parseEnvelopeName(name)
		if !ok || !filter(queuePart) {
			continue
		}
		files = append(files, envelopeFile{name: name, timestamp: ts})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].timestamp < files[j].timestamp
	})
	return files
}

// BackupFileCount returns the numbers of pending envelopes of all queues
func (layer *Layer) BackupFileCount() int {
	layer.dirMutex.Lock()
	defer layer.dirMutex.Unlock()
	if layer.maybeDir == nil {
		return 0
	}
	return len(layer.listEnvelopesLocked(func(string) bool { return true }))
}

// CorruptFileCount returns the numbers of envelopes set aside as malformed
func (layer *Layer) CorruptFileCount() int {
	layer.dirMutex.Lock()
	defer layer.dirMutex.Unlock()
	if layer.maybeDir == nil {
		return 0
	}
	names, lerr := util.ListFileNamesAt(layer.maybeDir)
	if lerr != nil {
		layer.metrics.ioErrorsTotal.Inc()
		return 0
	}
	count := 0
	for _, name := range names {
		if strings.HasSuffix(name, envelopeSuffix+corruptSuffix) {
			count++
		}
	}
	return count
}

// ShouldRetry records a processing failure and returns whether the failed work may be retried
//
// Once defs.CircuitFailureThreshold failures have been recorded, the circuit opens and retries are denied until
// defs.CircuitTimeout has passed since the last failure. Callbacks registered by OnCircuitClosed are launched when
// the circuit closes.
func (layer *Layer) ShouldRetry(err error) bool {
	retry, transition := layer.circuit.recordFailure()
	switch transition {
	case circuitOpened:
		layer.metrics.circuitOpenGauge.Set(1)
		if err != nil {
			layer.logger.Warnf("circuit opened after %d failures, last error: %s", defs.CircuitFailureThreshold, err.Error())
		} else {
			layer.logger.Warnf("circuit opened after %d failures", defs.CircuitFailureThreshold)
		}
	case circuitClosed:
		layer.metrics.circuitOpenGauge.Set(0)
		layer.logger.Info("circuit closed")
		layer.callbackLock.Lock()
		callbacks := append([]func(){}, layer.callbacks...)
		layer.callbackLock.Unlock()
		for _, callback := range callbacks {
			go callback()
		}
	}
	return retry
}

// OnCircuitClosed registers a callback to be launched in new goroutine when the circuit closes
func (layer *Layer) OnCircuitClosed(callback func()) {
	layer.callbackLock.Lock()
	layer.callbacks = append(layer.callbacks, callback)
	layer.callbackLock.Unlock()
}

// ProtectionStats returns a snapshot of circuit state and pending backups
func (layer *Layer) ProtectionStats() base.ProtectionStats {
	open, count := layer.circuit.snapshot()
	return base.ProtectionStats{
		CircuitOpen:     open,
		FailureCount:    count,
		BackupFileCount: layer.BackupFileCount(),
	}
}

// Close releases the backup directory. Backups afterwards fail as if disabled.
func (layer *Layer) Close() {
	layer.dirMutex.Lock()
	defer layer.dirMutex.Unlock()
	if layer.maybeDir == nil {
		return
	}
	if err := layer.maybeDir.Close(); err != nil {
		layer.metrics.ioErrorsTotal.Inc()
		layer.logger.Warnf("error closing dir: %s", err.Error())
	}
	layer.maybeDir = nil
}
