package recordpool

import (
	"fmt"

	"github.com/relex/logpipe/defs"
)

// Config defines the sizing of a record pool
type Config struct {
	InitialSize     int     `yaml:"initialSize"`     // Numbers of records allocated when the pool is created
	MinSize         int     `yaml:"minSize"`         // Floor of idle records when shrinking
	MaxSize         int     `yaml:"maxSize"`         // Max numbers of idle records held; more are abandoned on Put
	ResizeThreshold float64 `yaml:"resizeThreshold"` // Hit rate above which the pool grows; shrinks below (1 - value)
}

// DefaultConfig returns the default sizing from defs
func DefaultConfig() Config {
	return Config{
		InitialSize:     defs.PoolDefaultInitialSize,
		MinSize:         defs.PoolDefaultMinSize,
		MaxSize:         defs.PoolDefaultMaxSize,
		ResizeThreshold: defs.PoolDefaultResizeThreshold,
	}
}

// Verify checks the sizing for consistency
func (cfg Config) Verify() error {
	if cfg.MaxSize <= 0 {
		return fmt.Errorf(".maxSize must be positive: %d", cfg.MaxSize)
	}
	if cfg.MinSize < 0 || cfg.MinSize > cfg.MaxSize {
		return fmt.Errorf(".minSize must be within [0, maxSize]: %d", cfg.MinSize)
	}
	if cfg.InitialSize < 0 || cfg.InitialSize > cfg.MaxSize {
		return fmt.Errorf(".initialSize must be within [0, maxSize]: %d", cfg.InitialSize)
	}
	if cfg.ResizeThreshold <= 0.5 || cfg.ResizeThreshold > 1.0 {
		return fmt.Errorf(".resizeThreshold must be within (0.5, 1.0]: %f", cfg.ResizeThreshold)
	}
	return nil
}
