package rotation

import (
	"fmt"
	"strings"
	"time"
)

// Strategy defines what triggers rotation
type Strategy string

// Strategies
const (
	StrategySize   Strategy = "size"
	StrategyTime   Strategy = "time"
	StrategyHybrid Strategy = "hybrid" // size or time, whichever comes first
	StrategyManual Strategy = "manual" // only by ForceRotate
)

// Config defines the rotation policy of one file
type Config struct {
	Strategy   Strategy
	MaxBytes   int64  // Max size of active file for size and hybrid strategies
	MaxBackups int    // Numbers of rotated files to keep; 0 to truncate the active file on rotation
	Interval   int    // Numbers of Unit between rotations for time and hybrid strategies
	Unit       string // seconds, minutes, hours or days, or the initial letter
	Compress   bool   // Gzip rotated files
}

// ParseUnit converts the name of time unit to duration
func ParseUnit(unit string) (time.Duration, error) {
	switch strings.ToLower(unit) {
	case "s", "second", "seconds":
		return time.Second, nil
	case "m", "minute", "minutes":
		return time.Minute, nil
	case "h", "hour", "hours":
		return time.Hour, nil
	case "d", "day", "days":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown time unit '%s'", unit)
	}
}

// IntervalDuration returns the rotation interval, or zero if the strategy doesn't rotate by time
func (cfg Config) IntervalDuration() (time.Duration, error) {
	if cfg.Strategy != StrategyTime && cfg.Strategy != StrategyHybrid {
		return 0, nil
	}
	unit, err := ParseUnit(cfg.Unit)
	if err != nil {
		return 0, err
	}
	return time.Duration(cfg.Interval) * unit, nil
}

// Verify checks the config
func (cfg Config) Verify() error {
	switch cfg.Strategy {
	case StrategySize, StrategyTime, StrategyHybrid, StrategyManual:
	default:
		return fmt.Errorf("unknown rotation strategy '%s'", cfg.Strategy)
	}
	if cfg.MaxBackups < 0 {
		return fmt.Errorf("negative max backups: %d", cfg.MaxBackups)
	}
	if (cfg.Strategy == StrategySize || cfg.Strategy == StrategyHybrid) && cfg.MaxBytes <= 0 {
		return fmt.Errorf("max size must be positive for '%s' strategy: %d", cfg.Strategy, cfg.MaxBytes)
	}
	if cfg.Strategy == StrategyTime || cfg.Strategy == StrategyHybrid {
		if cfg.Interval <= 0 {
			return fmt.Errorf("interval must be positive for '%s' strategy: %d", cfg.Strategy, cfg.Interval)
		}
		if _, err := ParseUnit(cfg.Unit); err != nil {
			return err
		}
	}
	return nil
}
