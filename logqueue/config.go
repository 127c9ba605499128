package logqueue

import (
	"fmt"
	"time"

	"github.com/relex/logpipe/defs"
)

// Config defines capacity and batching of a queue
type Config struct {
	MaxSize      int           `yaml:"maxSize"`      // Capacity in records
	BatchSize    int           `yaml:"batchSize"`    // Records per batch at most
	BatchTimeout time.Duration `yaml:"batchTimeout"` // Max delay of a partial batch since the previous flush
}

// DefaultConfig returns the default queue config from defs
func DefaultConfig() Config {
	return Config{
		MaxSize:      defs.QueueDefaultMaxSize,
		BatchSize:    defs.QueueDefaultBatchSize,
		BatchTimeout: defs.QueueDefaultBatchTimeout,
	}
}

// Verify checks the config
func (cfg Config) Verify() error {
	if cfg.MaxSize <= 0 {
		return fmt.Errorf(".maxSize must be positive: %d", cfg.MaxSize)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf(".batchSize must be positive: %d", cfg.BatchSize)
	}
	if cfg.BatchTimeout <= 0 {
		return fmt.Errorf(".batchTimeout must be positive: %s", cfg.BatchTimeout)
	}
	return nil
}
