package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/rotation"
	"github.com/sony/gobreaker/v2"
)

// FileSink appends to a file, rotating it by the configured policy before writes
//
// Writes go through a circuit breaker: after repeated failures, writes are skipped for a while and the output stays
// buffered in memory.
type FileSink struct {
	*workerBase
	file *fileWriter
}

// NewFileSink creates a FileSink and opens the file, creating parent directories if needed
//
// rotationConfig may be nil to never rotate.
func NewFileSink(parentLogger logger.Logger, name string, path string, rotationConfig *rotation.Config,
	formatter base.Formatter, options Options, clock clockwork.Clock, metricFactory *base.MetricFactory) (*FileSink, error) {

	flogger := parentLogger.WithFields(logger.Fields{defs.LabelComponent: "FileSink", defs.LabelSink: name})
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating dir for '%s': %w", path, err)
	}
	var engine *rotation.Engine
	if rotationConfig != nil {
		var eerr error
		engine, eerr = rotation.NewEngine(flogger, path, *rotationConfig, clock)
		if eerr != nil {
			return nil, fmt.Errorf("invalid rotation for '%s': %w", path, eerr)
		}
		engine.Cleanup()
	}
	fw := &fileWriter{
		logger: flogger,
		path:   path,
		engine: engine,
		rotationsTotal: metricFactory.AddOrGetCounterVec("sink_rotations_total", "Numbers of file rotations",
			[]string{"sink", "trigger"}, []string{name}),
	}
	fw.breaker = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     defs.FileSinkBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(defs.FileSinkBreakerFailures)
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			flogger.Warnf("write breaker state changed from %s to %s", from.String(), to.String())
		},
	})
	if err := fw.open(); err != nil {
		return nil, err
	}
	return &FileSink{
		workerBase: newWorkerBase(flogger, name, fw, formatter, separatorOf(formatter), options, metricFactory),
		file:       fw,
	}, nil
}

// Path returns the path of active file
func (sink *FileSink) Path() string {
	return sink.file.path
}

// ForceRotate flushes the buffer and rotates the file regardless of the policy
func (sink *FileSink) ForceRotate() error {
	sink.writeLock.Lock()
	defer sink.writeLock.Unlock()
	if err := sink.flushLocked(); err != nil {
		return err
	}
	return sink.file.rotate(rotation.TriggerManual)
}

// BreakerState returns the state of write circuit breaker
func (sink *FileSink) BreakerState() gobreaker.State {
	return sink.file.breaker.State()
}

// fileWriter performs writes and rotation of a file, always called under the writeLock of worker
type fileWriter struct {
	logger         logger.Logger
	path           string
	engine         *rotation.Engine // nil if never rotated
	breaker        *gobreaker.CircuitBreaker[int]
	rotationsTotal *prometheus.CounterVec
	mutex          sync.Mutex // guards file and size for ForceRotate outside of the worker
	file           *os.File
	size           int64
	scratch        []byte
}

func (fw *fileWriter) open() error {
	file, err := os.OpenFile(fw.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("error opening '%s': %w", fw.path, err)
	}
	stat, serr := file.Stat()
	if serr != nil {
		file.Close()
		return fmt.Errorf("error stating '%s': %w", fw.path, serr)
	}
	fw.file = file
	fw.size = stat.Size()
	return nil
}

func (fw *fileWriter) closeFile() {
	if fw.file == nil {
		return
	}
	if err := fw.file.Close(); err != nil {
		fw.logger.Warnf("error closing file: %s", err.Error())
	}
	fw.file = nil
}

func (fw *fileWriter) rotate(trigger rotation.Trigger) error {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	return fw.rotateLocked(trigger)
}

func (fw *fileWriter) rotateLocked(trigger rotation.Trigger) error {
	if fw.engine == nil {
		return nil
	}
	fw.closeFile()
	rerr := fw.engine.Rotate()
	if rerr != nil {
		fw.logger.Errorf("error rotating by %s: %s", trigger, rerr.Error())
	} else {
		fw.rotationsTotal.WithLabelValues(trigger.String()).Inc()
		fw.logger.Infof("rotated by %s", trigger)
	}
	if oerr := fw.open(); oerr != nil {
		return oerr
	}
	return rerr
}

// writeEntries writes entries in chunks, evaluating rotation before each entry
func (fw *fileWriter) writeEntries(entries [][]byte) (int, error) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()

	written := 0
	for written < len(entries) {
		n, err := fw.breaker.Execute(func() (int, error) {
			return fw.writeChunk(entries[written:])
		})
		written += n
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return written, fmt.Errorf("writes suspended: %w", err)
			}
			return written, err
		}
	}
	return written, nil
}

// writeChunk writes leading entries up to the next rotation point and returns the numbers of entries written
func (fw *fileWriter) writeChunk(entries [][]byte) (int, error) {
	if fw.file == nil {
		if err := fw.open(); err != nil {
			return 0, err
		}
	}
	if fw.engine != nil {
		if rotate, trigger := fw.engine.ShouldRotate(fw.size, int64(len(entries[0]))); rotate {
			if err := fw.rotateLocked(trigger); err != nil && fw.file == nil {
				return 0, err
			}
		}
	}

	fw.scratch = append(fw.scratch[:0], entries[0]...)
	count := 1
	for count < len(entries) {
		if fw.engine != nil {
			if rotate, _ := fw.engine.ShouldRotate(fw.size+int64(len(fw.scratch)), int64(len(entries[count]))); rotate {
				break
			}
		}
		fw.scratch = append(fw.scratch, entries[count]...)
		count++
	}

	n, err := fw.file.Write(fw.scratch)
	fw.size += int64(n)
	if err != nil {
		// reopen on next attempt, in case the file or its dir was replaced
		fw.closeFile()
		return countCompleteEntries(entries[:count], n), err
	}
	return count, nil
}

func (fw *fileWriter) close() error {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	if fw.file == nil {
		return nil
	}
	err := fw.file.Close()
	fw.file = nil
	return err
}
