// Package rotation decides when a log file is rotated and manages its backups
package rotation

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/defs"
)

// Trigger is the condition which fired a rotation
type Trigger int

// Triggers
const (
	TriggerNone Trigger = iota
	TriggerSize
	TriggerTime
	TriggerManual
)

func (t Trigger) String() string {
	switch t {
	case TriggerNone:
		return "none"
	case TriggerSize:
		return "size"
	case TriggerTime:
		return "time"
	case TriggerManual:
		return "manual"
	default:
		return fmt.Sprintf("trigger%d", int(t))
	}
}

// Engine evaluates the rotation policy of one file and shifts its backups as "{path}.N" or "{path}.N.gz"
//
// The owner of the file closes it before Rotate and reopens it afterwards.
type Engine struct {
	logger       logger.Logger
	path         string
	config       Config
	interval     time.Duration
	clock        clockwork.Clock
	mutex        sync.Mutex
	lastRotation time.Time
}

// NewEngine creates an engine for the file at path. The time of the first rotation counts from now.
func NewEngine(parentLogger logger.Logger, path string, config Config, clock clockwork.Clock) (*Engine, error) {
	if err := config.Verify(); err != nil {
		return nil, err
	}
	interval, err := config.IntervalDuration()
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		logger:       parentLogger.WithFields(logger.Fields{defs.LabelComponent: "RotationEngine", defs.LabelPath: path}),
		path:         path,
		config:       config,
		interval:     interval,
		clock:        clock,
		lastRotation: clock.Now(),
	}, nil
}

// Path returns the path of active file
func (engine *Engine) Path() string {
	return engine.path
}

// Config returns the policy
func (engine *Engine) Config() Config {
	return engine.config
}

// ShouldRotate checks whether the active file should be rotated before writing pendingSize more bytes to it
//
// Size takes precedence when both conditions of hybrid strategy are met.
func (engine *Engine) ShouldRotate(currentSize int64, pendingSize int64) (bool, Trigger) {
	switch engine.config.Strategy {
	case StrategySize:
		if engine.sizeExceeded(currentSize, pendingSize) {
			return true, TriggerSize
		}
	case StrategyTime:
		if engine.timeElapsed() {
			return true, TriggerTime
		}
	case StrategyHybrid:
		if engine.sizeExceeded(currentSize, pendingSize) {
			return true, TriggerSize
		}
		if engine.timeElapsed() {
			return true, TriggerTime
		}
	}
	return false, TriggerNone
}

func (engine *Engine) sizeExceeded(currentSize int64, pendingSize int64) bool {
	return currentSize+pendingSize > engine.config.MaxBytes
}

func (engine *Engine) timeElapsed() bool {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return engine.clock.Now().Sub(engine.lastRotation) >= engine.interval
}

// MarkRotated resets the time condition. Rotate calls it already.
func (engine *Engine) MarkRotated() {
	engine.mutex.Lock()
	engine.lastRotation = engine.clock.Now()
	engine.mutex.Unlock()
}

// Rotate moves the active file to the first backup slot, shifting and evicting older backups
//
// The active file must be closed by the caller. A missing active file is not an error.
func (engine *Engine) Rotate() error {
	defer engine.MarkRotated()

	if engine.config.MaxBackups == 0 {
		if err := os.Remove(engine.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error truncating '%s': %w", engine.path, err)
		}
		return nil
	}

	var firstErr error
	// evict the oldest, which would be pushed beyond the limit
	engine.removeBackup(engine.config.MaxBackups, &firstErr)
	for n := engine.config.MaxBackups - 1; n >= 1; n-- {
		engine.shiftBackup(n, &firstErr)
	}

	if err := os.Rename(engine.path, engine.BackupPath(1, false)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return firstErr
		}
		return fmt.Errorf("error moving '%s': %w", engine.path, err)
	}
	if engine.config.Compress {
		if err := compressFile(engine.BackupPath(1, false), engine.BackupPath(1, true)); err != nil {
			engine.logger.Errorf("error compressing backup: %s", err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ForceRotate rotates regardless of the strategy
func (engine *Engine) ForceRotate() error {
	engine.logger.Info("forced rotation")
	return engine.Rotate()
}

// BackupPath returns the path of n-th backup
func (engine *Engine) BackupPath(n int, compressed bool) string {
	if compressed {
		return fmt.Sprintf("%s.%d.gz", engine.path, n)
	}
	return fmt.Sprintf("%s.%d", engine.path, n)
}

func (engine *Engine) removeBackup(n int, firstErr *error) {
	for _, compressed := range []bool{false, true} {
		path := engine.BackupPath(n, compressed)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			engine.logger.Warnf("error removing backup '%s': %s", path, err.Error())
			if *firstErr == nil {
				*firstErr = err
			}
		}
	}
}

func (engine *Engine) shiftBackup(n int, firstErr *error) {
	for _, compressed := range []bool{false, true} {
		from := engine.BackupPath(n, compressed)
		to := engine.BackupPath(n+1, compressed)
		if err := os.Rename(from, to); err != nil && !errors.Is(err, os.ErrNotExist) {
			engine.logger.Warnf("error shifting backup '%s': %s", from, err.Error())
			if *firstErr == nil {
				*firstErr = err
			}
		}
	}
}
