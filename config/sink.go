package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/jonboulle/clockwork"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/format"
	"github.com/relex/logpipe/rotation"
	"github.com/relex/logpipe/sink"
	"golang.org/x/exp/slices"
)

// Types of sinks
const (
	SinkTypeConsole = "console"
	SinkTypeFile    = "file"
)

// Console streams
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

var (
	knownSinkTypes = []string{SinkTypeConsole, SinkTypeFile}
	knownStreams   = []string{"", StreamStdout, StreamStderr}
	knownFormats   = []string{"", format.NameText, format.NameJSON, format.NameMsgpack, format.NameSimple}
)

// SinkConfig defines one sink
type SinkConfig struct {
	Name          string            `yaml:"name"`
	Type          string            `yaml:"type"`          // "console" or "file"
	Stream        string            `yaml:"stream"`        // "stdout" (default) or "stderr" for console sinks
	Path          string            `yaml:"path"`          // Path of active file for file sinks, may contain environment variables
	Format        string            `yaml:"format"`        // "text" (default), "json", "msgpack" or "simple"
	Rotation      *RotationConfig   `yaml:"rotation"`      // Optional rotation policy for file sinks
	FlushInterval time.Duration     `yaml:"flushInterval"` // Max delay of buffered output, default from defs
	FlushBytes    datasize.ByteSize `yaml:"flushBytes"`    // Buffer size above which output is flushed immediately
	QueueSize     int               `yaml:"queueSize"`     // Capacity of the micro-queue of worker
	MinLevel      base.LogLevel     `yaml:"minLevel"`      // Records below are skipped, e.g. "warning"
}

// RotationConfig defines the rotation policy of a file sink
type RotationConfig struct {
	Strategy   rotation.Strategy `yaml:"strategy"`   // "size", "time", "hybrid" or "manual"
	MaxSize    datasize.ByteSize `yaml:"maxSize"`    // e.g. "10MB", for size and hybrid strategies
	MaxBackups int               `yaml:"maxBackups"` // Numbers of rotated files to keep
	Interval   int               `yaml:"interval"`   // Numbers of unit between rotations for time and hybrid strategies
	Unit       string            `yaml:"unit"`       // "seconds", "minutes", "hours" or "days"
	Compress   bool              `yaml:"compress"`   // Gzip rotated files
}

// VerifyConfig checks the sink configuration
func (cfg *SinkConfig) VerifyConfig() error {
	if len(cfg.Name) == 0 {
		return fmt.Errorf(".name is unspecified")
	}
	if !slices.Contains(knownSinkTypes, cfg.Type) {
		return fmt.Errorf(".type must be one of [%s]: '%s'", strings.Join(knownSinkTypes, ", "), cfg.Type)
	}
	if !slices.Contains(knownFormats, cfg.Format) {
		return fmt.Errorf(".format is unknown: '%s'", cfg.Format)
	}
	if cfg.FlushInterval < 0 {
		return fmt.Errorf(".flushInterval must not be negative: %s", cfg.FlushInterval)
	}
	if cfg.QueueSize < 0 {
		return fmt.Errorf(".queueSize must not be negative: %d", cfg.QueueSize)
	}
	switch cfg.Type {
	case SinkTypeConsole:
		if !slices.Contains(knownStreams, cfg.Stream) {
			return fmt.Errorf(".stream must be stdout or stderr: '%s'", cfg.Stream)
		}
		if len(cfg.Path) > 0 || cfg.Rotation != nil {
			return fmt.Errorf(".path and .rotation are only for file sinks")
		}
	case SinkTypeFile:
		if len(cfg.Path) == 0 {
			return fmt.Errorf(".path is unspecified")
		}
		if len(cfg.Stream) > 0 {
			return fmt.Errorf(".stream is only for console sinks")
		}
		if cfg.Rotation != nil {
			if err := cfg.Rotation.toRotationConfig().Verify(); err != nil {
				return fmt.Errorf(".rotation: %w", err)
			}
		}
	}
	return nil
}

// NewSink creates the configured sink, not started. Clock may be nil for the system clock.
func (cfg *SinkConfig) NewSink(parentLogger logger.Logger, clock clockwork.Clock, metricFactory *base.MetricFactory) (base.Sink, error) {
	formatter, err := format.ByName(cfg.Format)
	if err != nil {
		return nil, err
	}
	options := sink.Options{
		FlushInterval: cfg.FlushInterval,
		FlushBytes:    int(cfg.FlushBytes.Bytes()),
		QueueSize:     cfg.QueueSize,
		MinLevel:      cfg.MinLevel,
	}

	switch cfg.Type {
	case SinkTypeConsole:
		var stream io.Writer = os.Stdout
		if cfg.Stream == StreamStderr {
			stream = os.Stderr
		}
		return sink.NewStreamSink(parentLogger, cfg.Name, stream, formatter, options, metricFactory), nil
	case SinkTypeFile:
		path := os.ExpandEnv(cfg.Path)
		if strings.Contains(path, "$") {
			parentLogger.Warnf("possibly misconfigured .path: '%s'", path)
		}
		var rotationConfig *rotation.Config
		if cfg.Rotation != nil {
			rc := cfg.Rotation.toRotationConfig()
			rotationConfig = &rc
		}
		return sink.NewFileSink(parentLogger, cfg.Name, filepath.Clean(path), rotationConfig, formatter, options, clock,
			metricFactory)
	default:
		return nil, fmt.Errorf("unknown sink type '%s'", cfg.Type)
	}
}

func (cfg *RotationConfig) toRotationConfig() rotation.Config {
	return rotation.Config{
		Strategy:   cfg.Strategy,
		MaxBytes:   int64(cfg.MaxSize.Bytes()),
		MaxBackups: cfg.MaxBackups,
		Interval:   cfg.Interval,
		Unit:       cfg.Unit,
		Compress:   cfg.Compress,
	}
}
