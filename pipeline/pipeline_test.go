package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/config"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/durability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	defs.EnableTestMode()
}

func newTestPipeline(t *testing.T, doc string) (*Pipeline, *base.MetricFactory) {
	cfg, err := config.ParseConfigString(doc)
	require.Nil(t, err)
	factory := base.NewMetricFactory("testpipeline_", nil, nil)
	p, perr := New(logger.WithField("test", t.Name()), *cfg, nil, factory)
	require.Nil(t, perr)
	return p, factory
}

func TestPipelineWritesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	p, factory := newTestPipeline(t, fmt.Sprintf(`
queue: {maxSize: 1000, batchSize: 10}
pool: {initialSize: 20, minSize: 5, maxSize: 100}
sinks: [{name: file, type: file, path: %s, format: simple}]
`, path))
	p.Start()
	expected := &strings.Builder{}
	for i := 0; i < 100; i++ {
		msg := "message " + strconv.Itoa(i)
		require.Nil(t, p.Log(base.LevelInfo, "app", msg, &base.SourceLocation{File: "main.go", Line: i}))
		expected.WriteString("INFO [app] " + msg + "\n")
	}
	assert.ErrorIs(t, p.Log(base.LevelInfo, "app", "", nil), base.ErrEmptyMessage)

	poolStats, found := p.GetPoolStats("main")
	require.True(t, found)
	assert.EqualValues(t, 100, poolStats.TotalRequests)
	assert.Equal(t, 20, poolStats.InitialSize)
	_, missing := p.GetPoolStats("other")
	assert.False(t, missing)
	assert.Len(t, p.GetAllPoolStats(), 1)
	assert.Len(t, p.Sinks(), 1)

	p.Stop()
	assert.True(t, p.Stopped().Wait(defs.TestReadTimeout))
	content, err := os.ReadFile(path)
	require.Nil(t, err)
	assert.Equal(t, expected.String(), string(content))

	stats := p.GetStats()
	assert.EqualValues(t, 100, stats.Enqueued)
	assert.EqualValues(t, 100, stats.Processed)
	assert.EqualValues(t, 0, stats.Dropped)
	assert.Equal(t, base.ProtectionStats{}, p.GetProtectionStats())

	dump, derr := factory.DumpMetrics(false)
	require.Nil(t, derr)
	assert.Contains(t, dump, `testpipeline_queue_records_total{queue="main",result="processed"} 100`)
	p.Stop() // idempotent
}

func TestPipelineRejectsByBackpressure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.log")
	p, _ := newTestPipeline(t, fmt.Sprintf(`
queue: {maxSize: 2, batchSize: 10}
backpressure: {dropThreshold: 0.5, slowDownThreshold: 0.1}
sinks: [{name: file, type: file, path: %s, format: simple}]
`, out))
	// not started: records stay in queue
	assert.Nil(t, p.Log(base.LevelWarning, "db", "first", nil))
	assert.ErrorIs(t, p.Log(base.LevelWarning, "db", "second", nil), ErrRejected)
	record := p.NewRecord()
	record.Message = "third"
	assert.False(t, p.Enqueue(record))
	assert.EqualValues(t, 2, p.GetStats().Dropped)

	p.Stop()
	content, err := os.ReadFile(out)
	require.Nil(t, err)
	assert.Equal(t, "WARNING [db] first\n", string(content))
}

func TestPipelineRestoresBackupOnStart(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backup")
	out := filepath.Join(dir, "out.log")

	layer, lerr := durability.New(logger.WithField("test", t.Name()), durability.Config{Dir: backupDir}, nil,
		base.NewMetricFactory("testpipelinebackup_", nil, nil))
	require.Nil(t, lerr)
	for _, msg := range []string{"left 1", "left 2"} {
		record, _ := base.NewLogRecord(base.LevelError, "db", msg)
		require.True(t, layer.BackupMessage(record, "main"))
	}
	layer.Close()

	p, _ := newTestPipeline(t, fmt.Sprintf(`
durability: {enabled: true, dir: %s}
sinks:
  - {name: file, type: file, path: %s, format: simple}
  - {name: console, type: console, stream: stderr}
`, backupDir, out))
	assert.Equal(t, 2, p.GetProtectionStats().BackupFileCount)
	p.Start()
	assert.Nil(t, p.Log(base.LevelInfo, "app", "new", nil))
	p.Stop()

	content, err := os.ReadFile(out)
	require.Nil(t, err)
	assert.Equal(t, "ERROR [db] left 1\nERROR [db] left 2\nINFO [app] new\n", string(content))
	assert.EqualValues(t, 3, p.GetStats().Processed)
}
