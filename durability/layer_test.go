package durability

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLayer(t *testing.T, clock clockwork.Clock) (*Layer, *base.MetricFactory) {
	factory := base.NewMetricFactory("testdurability_", nil, nil)
	layer, err := New(logger.WithField("test", t.Name()), Config{Dir: filepath.Join(t.TempDir(), "backup"), Owner: t.Name()}, clock, factory)
	require.Nil(t, err)
	t.Cleanup(layer.Close)
	return layer, factory
}

func makeRecord(message string) *base.LogRecord {
	record, _ := base.NewLogRecord(base.LevelInfo, "test", message)
	return record
}

func TestBackupAndRestore(t *testing.T) {
	layer, factory := newTestLayer(t, nil)

	assert.True(t, layer.BackupMessage(makeRecord("m1"), "main"))
	assert.Equal(t, 2, layer.BackupBatch([]*base.LogRecord{makeRecord("m2"), makeRecord("m3")}, "main"))
	assert.True(t, layer.BackupPayload("p4", "main"))
	assert.True(t, layer.BackupMessage(makeRecord("other"), "audit"))
	assert.Equal(t, 5, layer.BackupFileCount())

	restored := layer.RestoreMessages("main")
	messages := make([]string, 0, len(restored))
	for _, r := range restored {
		messages = append(messages, r.Message)
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "p4"}, messages)
	assert.Equal(t, 1, layer.BackupFileCount())
	assert.Len(t, layer.RestoreMessages("main"), 0)

	audit := layer.RestoreMessages("audit")
	if assert.Len(t, audit, 1) {
		assert.Equal(t, "other", audit[0].Message)
	}
	assert.Equal(t, 0, layer.BackupFileCount())

	metrics, merr := factory.DumpMetrics(false)
	assert.Nil(t, merr)
	assert.Equal(t, `testdurability_durability_backups_total{queue="audit"} 1
testdurability_durability_backups_total{queue="main"} 4
testdurability_durability_restored_total{queue="audit"} 1
testdurability_durability_restored_total{queue="main"} 4
`, metrics)
}

func TestRestoreSkipsMalformed(t *testing.T) {
	layer, _ := newTestLayer(t, nil)
	assert.True(t, layer.BackupMessage(makeRecord("good1"), "main"))
	badName := fmt.Sprintf("main_%020d_deadbeef.json", time.Now().UnixNano())
	assert.Nil(t, os.WriteFile(filepath.Join(layer.Path(), badName), []byte("{broken"), 0644))
	time.Sleep(time.Millisecond)
	assert.True(t, layer.BackupMessage(makeRecord("good2"), "main"))

	restored := layer.RestoreMessages("main")
	if assert.Len(t, restored, 2) {
		assert.Equal(t, "good1", restored[0].Message)
		assert.Equal(t, "good2", restored[1].Message)
	}
	assert.Equal(t, 1, layer.CorruptFileCount())
	assert.Equal(t, 0, layer.BackupFileCount())
	_, serr := os.Stat(filepath.Join(layer.Path(), badName+".corrupt"))
	assert.Nil(t, serr)

	assert.Len(t, layer.RestoreMessages("main"), 0)
}

func TestRestoreFromPreviousInstance(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backup")
	factory := base.NewMetricFactory("testdurability_", nil, nil)
	first, err := New(logger.WithField("test", t.Name()), Config{Dir: dir}, nil, factory)
	require.Nil(t, err)
	assert.True(t, first.BackupMessage(makeRecord("survivor"), "main"))
	first.Close()
	assert.False(t, first.BackupMessage(makeRecord("after close"), "main"))

	second, err := New(logger.WithField("test", t.Name()), Config{Dir: dir}, nil, factory)
	require.Nil(t, err)
	defer second.Close()
	assert.Equal(t, 1, second.ProtectionStats().BackupFileCount)
	restored := second.RestoreMessages("main")
	if assert.Len(t, restored, 1) {
		assert.Equal(t, "survivor", restored[0].Message)
	}
}

func TestDisabledLayer(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.Nil(t, os.WriteFile(blocker, []byte("x"), 0644))
	factory := base.NewMetricFactory("testdurability_", nil, nil)

	_, err := New(logger.WithField("test", t.Name()), Config{Dir: filepath.Join(blocker, "sub")}, nil, factory)
	assert.Error(t, err)

	layer := NewOrDisabled(logger.WithField("test", t.Name()), Config{Dir: filepath.Join(blocker, "sub")}, nil, factory)
	assert.False(t, layer.Enabled())
	assert.False(t, layer.BackupMessage(makeRecord("lost"), "main"))
	assert.False(t, layer.BackupPayload("lost", "main"))
	assert.Equal(t, 0, layer.BackupBatch([]*base.LogRecord{makeRecord("lost")}, "main"))
	assert.Nil(t, layer.RestoreMessages("main"))
	assert.True(t, layer.ShouldRetry(errors.New("failed")))
	assert.Equal(t, base.ProtectionStats{CircuitOpen: false, FailureCount: 1, BackupFileCount: 0}, layer.ProtectionStats())
}

func TestShouldRetryCircuit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC))
	layer, factory := newTestLayer(t, clock)
	closedCount := int32(0)
	layer.OnCircuitClosed(func() { atomic.AddInt32(&closedCount, 1) })

	failure := errors.New("sink unavailable")
	for i := 0; i < defs.CircuitFailureThreshold-1; i++ {
		assert.True(t, layer.ShouldRetry(failure))
	}
	assert.False(t, layer.ShouldRetry(failure))
	assert.False(t, layer.ShouldRetry(failure))
	assert.Equal(t, base.ProtectionStats{CircuitOpen: true, FailureCount: defs.CircuitFailureThreshold}, layer.ProtectionStats())
	metrics, _ := factory.DumpMetrics(false)
	assert.Contains(t, metrics, "testdurability_durability_circuit_open 1")

	clock.Advance(defs.CircuitTimeout)
	assert.True(t, layer.ShouldRetry(failure))
	assert.Equal(t, base.ProtectionStats{CircuitOpen: false, FailureCount: 1}, layer.ProtectionStats())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&closedCount) == 1 }, defs.TestReadTimeout, time.Millisecond)
	metrics, _ = factory.DumpMetrics(true)
	assert.Contains(t, metrics, "testdurability_durability_circuit_open 0")
}
