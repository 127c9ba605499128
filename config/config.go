// Package config defines the YAML configuration of a logging pipeline and its sinks
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/logqueue"
	"github.com/relex/logpipe/recordpool"
	"github.com/relex/logpipe/util"
	"gopkg.in/yaml.v3"
)

// PipelineConfig defines the root of a pipeline config file
type PipelineConfig struct {
	Anchors      AnchorsConfig      `yaml:"anchors"`
	Name         string             `yaml:"name"` // Name of queue and pool, also used in backup file names
	Queue        logqueue.Config    `yaml:"queue"`
	Backpressure BackpressureConfig `yaml:"backpressure"`
	Durability   DurabilityConfig   `yaml:"durability"`
	Pool         recordpool.Config  `yaml:"pool"`
	Sinks        []SinkConfig       `yaml:"sinks"`
}

// AnchorsConfig defines the anchors section, which provides YAML anchors for other sections and is never unmarshalled
type AnchorsConfig struct {
}

// BackpressureConfig defines the thresholds of fill ratio of the queue
type BackpressureConfig struct {
	DropThreshold     float64 `yaml:"dropThreshold"`     // Fill ratio at and above which new records are rejected
	SlowDownThreshold float64 `yaml:"slowDownThreshold"` // Fill ratio above which batch processing is delayed
}

// DurabilityConfig defines the backup storage
type DurabilityConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`   // Backup dir, may contain environment variables
	Owner   string `yaml:"owner"` // Optional owner label attached to the dir
}

// DefaultPipelineConfig returns a config of default values with a console sink
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Name:  "main",
		Queue: logqueue.DefaultConfig(),
		Backpressure: BackpressureConfig{
			DropThreshold:     defs.BackpressureDropThreshold,
			SlowDownThreshold: defs.BackpressureSlowDownThreshold,
		},
		Pool: recordpool.DefaultConfig(),
	}
}

// LoadConfigFile loads config from the path on top of default values and verifies it
func LoadConfigFile(path string) (*PipelineConfig, error) {
	cref := DefaultPipelineConfig()
	if err := util.UnmarshalYamlFile(path, &cref); err != nil {
		return nil, err
	}
	if err := cref.VerifyConfig(); err != nil {
		return nil, err
	}
	return &cref, nil
}

// ParseConfigString parses config from YAML text on top of default values and verifies it
func ParseConfigString(contents string) (*PipelineConfig, error) {
	cref := DefaultPipelineConfig()
	if err := util.UnmarshalYamlString(contents, &cref); err != nil {
		return nil, err
	}
	if err := cref.VerifyConfig(); err != nil {
		return nil, err
	}
	return &cref, nil
}

// VerifyConfig checks all sections
func (cfg *PipelineConfig) VerifyConfig() error {
	if len(cfg.Name) == 0 {
		return fmt.Errorf(".name is unspecified")
	}
	if err := cfg.Queue.Verify(); err != nil {
		return fmt.Errorf("queue%w", err)
	}
	if err := cfg.Backpressure.VerifyConfig(); err != nil {
		return fmt.Errorf("backpressure%w", err)
	}
	if err := cfg.Durability.VerifyConfig(); err != nil {
		return fmt.Errorf("durability%w", err)
	}
	if err := cfg.Pool.Verify(); err != nil {
		return fmt.Errorf("pool%w", err)
	}
	if len(cfg.Sinks) == 0 {
		return fmt.Errorf("sinks: no sink defined")
	}
	names := make(map[string]int, len(cfg.Sinks))
	for i := range cfg.Sinks {
		sc := &cfg.Sinks[i]
		if err := sc.VerifyConfig(); err != nil {
			return fmt.Errorf("sinks[%d]%w", i, err)
		}
		if prev, exists := names[sc.Name]; exists {
			return fmt.Errorf("sinks[%d]: duplicate name '%s' of sinks[%d]", i, sc.Name, prev)
		}
		names[sc.Name] = i
	}
	return nil
}

// VerifyConfig checks the thresholds
func (cfg BackpressureConfig) VerifyConfig() error {
	if cfg.DropThreshold <= 0 || cfg.DropThreshold > 1.0 {
		return fmt.Errorf(".dropThreshold must be within (0, 1.0]: %f", cfg.DropThreshold)
	}
	if cfg.SlowDownThreshold < 0 || cfg.SlowDownThreshold >= cfg.DropThreshold {
		return fmt.Errorf(".slowDownThreshold must be within [0, dropThreshold): %f", cfg.SlowDownThreshold)
	}
	return nil
}

// VerifyConfig checks the backup storage
func (cfg DurabilityConfig) VerifyConfig() error {
	if cfg.Enabled && len(cfg.Dir) == 0 {
		return fmt.Errorf(".dir is unspecified")
	}
	return nil
}

// ExpandedDir returns the backup dir with environment variables expanded
func (cfg DurabilityConfig) ExpandedDir(parentLogger logger.Logger) string {
	dir := os.ExpandEnv(cfg.Dir)
	if strings.Contains(dir, "$") {
		parentLogger.Warnf("possibly misconfigured durability .dir: '%s'", dir)
	}
	return dir
}

// MarshalYAML provides custom marshalling to export readable document. The result is not reversible.
func (holder AnchorsConfig) MarshalYAML() (interface{}, error) {
	return []string(nil), nil
}

// UnmarshalYAML skips the anchors section
func (holder *AnchorsConfig) UnmarshalYAML(value *yaml.Node) error {
	return nil
}
