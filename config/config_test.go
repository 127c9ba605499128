package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/rotation"
	"github.com/relex/logpipe/sink"
	"github.com/relex/logpipe/testdata"
	"github.com/relex/logpipe/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := LoadConfigFile(testdata.GetConfigPath())
	require.Nil(t, err)
	assert.Equal(t, "app", cfg.Name)
	assert.Equal(t, 5000, cfg.Queue.MaxSize)
	assert.Equal(t, 200, cfg.Queue.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.BatchTimeout)
	assert.Equal(t, 0.95, cfg.Backpressure.DropThreshold)
	assert.Equal(t, defs.BackpressureSlowDownThreshold, cfg.Backpressure.SlowDownThreshold)
	assert.True(t, cfg.Durability.Enabled)
	assert.Equal(t, 50, cfg.Pool.InitialSize)
	assert.Equal(t, defs.PoolDefaultMaxSize, cfg.Pool.MaxSize)

	require.Len(t, cfg.Sinks, 2)
	assert.Equal(t, SinkTypeConsole, cfg.Sinks[0].Type)
	assert.Equal(t, StreamStderr, cfg.Sinks[0].Stream)
	assert.Equal(t, base.LevelWarning, cfg.Sinks[0].MinLevel)
	assert.Equal(t, base.LevelNotSet, cfg.Sinks[1].MinLevel)
	fileSink := cfg.Sinks[1]
	assert.Equal(t, "json", fileSink.Format)
	require.NotNil(t, fileSink.Rotation)
	assert.Equal(t, rotation.StrategyHybrid, fileSink.Rotation.Strategy)
	assert.EqualValues(t, 10*1024*1024, fileSink.Rotation.MaxSize.Bytes())
	assert.EqualValues(t, 64*1024, fileSink.FlushBytes.Bytes())
	assert.Equal(t, 2*time.Second, fileSink.FlushInterval)

	rc := fileSink.Rotation.toRotationConfig()
	assert.Equal(t, int64(10*1024*1024), rc.MaxBytes)
	assert.Equal(t, "hours", rc.Unit)
	assert.True(t, rc.Compress)
}

func TestConfigVerification(t *testing.T) {
	for expected, doc := range map[string]string{
		"sinks: no sink defined": `
name: x`,
		"queue.batchSize must be positive: 0": `
queue: {batchSize: 0}
sinks: [{name: out, type: console}]`,
		"sinks[0].type must be one of [console, file]: 'socket'": `
sinks: [{name: out, type: socket}]`,
		"sinks[1]: duplicate name 'out' of sinks[0]": `
sinks: [{name: out, type: console}, {name: out, type: file, path: /tmp/x.log}]`,
		"sinks[0].path is unspecified": `
sinks: [{name: out, type: file}]`,
		"backpressure.slowDownThreshold must be within [0, dropThreshold): 0.950000": `
backpressure: {dropThreshold: 0.9, slowDownThreshold: 0.95}
sinks: [{name: out, type: console}]`,
		"durability.dir is unspecified": `
durability: {enabled: true}
sinks: [{name: out, type: console}]`,
		"sinks[0].rotation: max size must be positive for 'size' strategy: 0": `
sinks: [{name: out, type: file, path: /tmp/x.log, rotation: {strategy: size}}]`,
		"sinks[0].format is unknown: 'xml'": `
sinks: [{name: out, type: console, format: xml}]`,
	} {
		_, err := ParseConfigString(doc)
		if assert.NotNil(t, err, doc) {
			assert.Equal(t, expected, err.Error())
		}
	}

	_, unknownErr := ParseConfigString("bogus: 1\nsinks: [{name: out, type: console}]")
	assert.NotNil(t, unknownErr)

	_, levelErr := ParseConfigString("name: x\nsinks: [{name: out, type: console, minLevel: loud}]")
	assert.ErrorContains(t, levelErr, "yaml line 2:")
	assert.ErrorContains(t, levelErr, "unknown log level 'loud'")
}

func TestDumpConfig(t *testing.T) {
	cfg, err := ParseConfigString(`
anchors:
  - &rotation {strategy: size, maxSize: 1KB, maxBackups: 3}
sinks:
  - {name: out, type: file, path: /tmp/out.log, minLevel: error, rotation: *rotation}
`)
	require.Nil(t, err)
	dump, derr := util.MarshalYaml(cfg)
	require.Nil(t, derr)
	assert.Contains(t, dump, "name: main\n")
	assert.Contains(t, dump, "minLevel: ERROR\n")
	assert.NotContains(t, dump, "&rotation")

	reloaded, rerr := ParseConfigString(dump)
	require.Nil(t, rerr)
	assert.Equal(t, cfg.Sinks, reloaded.Sinks)
}

func TestNewSinks(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ParseConfigString(`
anchors:
  - &rotation {strategy: size, maxSize: 1KB, maxBackups: 3}
sinks:
  - {name: console, type: console, format: simple}
  - {name: file, type: file, path: ` + filepath.Join(dir, "out.log") + `, format: text, rotation: *rotation}
`)
	require.Nil(t, err)

	factory := base.NewMetricFactory("testconfig_", nil, nil)
	console, cerr := cfg.Sinks[0].NewSink(logger.WithField("test", t.Name()), nil, factory)
	require.Nil(t, cerr)
	assert.IsType(t, &sink.StreamSink{}, console)
	assert.Equal(t, "console", console.Name())

	file, ferr := cfg.Sinks[1].NewSink(logger.WithField("test", t.Name()), nil, factory)
	require.Nil(t, ferr)
	require.IsType(t, &sink.FileSink{}, file)
	assert.Equal(t, filepath.Join(dir, "out.log"), file.(*sink.FileSink).Path())
	assert.FileExists(t, filepath.Join(dir, "out.log"))
	file.Stop()
	console.Stop()
}
