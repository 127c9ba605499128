package recordpool

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, config Config) (*Pool, *base.MetricFactory) {
	factory := base.NewMetricFactory("testpool_", nil, nil)
	return New(logger.WithField("test", t.Name()), "test", config, factory), factory
}

func TestPoolMissAfterExhausted(t *testing.T) {
	pool, _ := newTestPool(t, Config{InitialSize: 10, MinSize: 1, MaxSize: 10, ResizeThreshold: 0.8})
	seen := make(map[*base.LogRecord]struct{}, 11)
	for i := 0; i < 10; i++ {
		record := pool.Get()
		seen[record] = struct{}{}
	}
	stats := pool.Stats()
	assert.EqualValues(t, 10, stats.Hits)
	assert.EqualValues(t, 0, stats.Misses)

	eleventh := pool.Get()
	_, reused := seen[eleventh]
	assert.False(t, reused)
	stats = pool.Stats()
	assert.EqualValues(t, 10, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.EqualValues(t, 11, stats.TotalRequests)
	assert.EqualValues(t, 11, stats.Created)
	assert.Equal(t, 0, stats.Size)

	assert.EqualValues(t, 10, testutil.ToFloat64(pool.hitCounter))
	assert.EqualValues(t, 1, testutil.ToFloat64(pool.missCounter))
	assert.EqualValues(t, 0, testutil.ToFloat64(pool.sizeGauge))
}

func TestPoolResetOnReuse(t *testing.T) {
	pool, _ := newTestPool(t, Config{InitialSize: 0, MinSize: 0, MaxSize: 5, ResizeThreshold: 0.8})
	record := pool.Get()
	record.Message = "hello"
	record.Layer = "db"
	record.Level = base.LevelError
	record.SetExtra("user", "bob")
	extra := record.Extra
	pool.Put(record)

	reused := pool.Get()
	assert.Same(t, record, reused)
	assert.Equal(t, "", reused.Message)
	assert.Equal(t, "", reused.Layer)
	assert.Equal(t, base.LevelNotSet, reused.Level)
	assert.True(t, reused.Timestamp.IsZero())
	assert.Len(t, reused.Extra, 0)
	extra["probe"] = 1
	assert.Len(t, reused.Extra, 1, "extension map should be cleared, not replaced")
	assert.EqualValues(t, 1, pool.Stats().Reused)
}

func TestPoolPutAtCapacity(t *testing.T) {
	pool, _ := newTestPool(t, Config{InitialSize: 2, MinSize: 0, MaxSize: 2, ResizeThreshold: 0.8})
	pool.Put(&base.LogRecord{})
	assert.Equal(t, 2, pool.Size())
}

func TestPoolExclusivity(t *testing.T) {
	pool, _ := newTestPool(t, Config{InitialSize: 0, MinSize: 0, MaxSize: 10, ResizeThreshold: 0.8})
	record := pool.Get()
	pool.Put(record)
	pool.Put(record)
	assert.Equal(t, 1, pool.Size())

	first := pool.Get()
	second := pool.Get()
	assert.NotSame(t, first, second)
}

func TestPoolConcurrentExclusivity(t *testing.T) {
	pool, _ := newTestPool(t, Config{InitialSize: 20, MinSize: 0, MaxSize: 50, ResizeThreshold: 0.8})
	inFlight := sync.Map{}
	violations := int64(0)
	violationsMutex := sync.Mutex{}
	wg := sync.WaitGroup{}
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				record := pool.Get()
				if _, loaded := inFlight.LoadOrStore(record, true); loaded {
					violationsMutex.Lock()
					violations++
					violationsMutex.Unlock()
				}
				inFlight.Delete(record)
				pool.Put(record)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 0, violations)
	assert.EqualValues(t, 8000, pool.Stats().TotalRequests)
}

func TestPoolResize(t *testing.T) {
	pool, _ := newTestPool(t, Config{InitialSize: 10, MinSize: 2, MaxSize: 500, ResizeThreshold: 0.8})

	t.Run("grow on high hit rate", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			pool.Put(pool.Get())
		}
		assert.Equal(t, 10+defs.PoolMaxGrowStep, pool.Resize())
	})

	t.Run("unchanged in between", func(t *testing.T) {
		size := pool.Size()
		held := make([]*base.LogRecord, 0, size*2)
		for i := 0; i < size*2; i++ {
			held = append(held, pool.Get())
		}
		assert.Equal(t, 0, pool.Resize())
		for _, record := range held {
			pool.Put(record)
		}
		assert.Equal(t, size*2, pool.Size())
	})

	t.Run("shrink on low hit rate", func(t *testing.T) {
		size := pool.Size()
		held := make([]*base.LogRecord, 0, size*10)
		for i := 0; i < size*10; i++ {
			held = append(held, pool.Get())
		}
		for i := 0; i < 3; i++ {
			pool.Put(held[i])
		}
		assert.Equal(t, 2, pool.Resize())
	})

	t.Run("no requests no change", func(t *testing.T) {
		assert.Equal(t, 2, pool.Resize())
	})
}

func TestPoolGrowCappedByMax(t *testing.T) {
	pool, _ := newTestPool(t, Config{InitialSize: 8, MinSize: 1, MaxSize: 10, ResizeThreshold: 0.8})
	pool.Put(pool.Get())
	assert.Equal(t, 10, pool.Resize())
}

func TestPoolAutoResize(t *testing.T) {
	pool, _ := newTestPool(t, Config{InitialSize: 5, MinSize: 1, MaxSize: 50, ResizeThreshold: 0.8})
	pool.Put(pool.Get())
	pool.StartAutoResize(10 * time.Millisecond)
	require.Eventually(t, func() bool { return pool.Size() == 50 }, defs.TestReadTimeout, 10*time.Millisecond)
	pool.Stop()
	pool.Stop()
}

func TestPoolMetrics(t *testing.T) {
	pool, factory := newTestPool(t, Config{InitialSize: 1, MinSize: 0, MaxSize: 5, ResizeThreshold: 0.8})
	record := pool.Get()
	pool.Get()
	pool.Put(record)
	metrics, err := factory.DumpMetrics(true)
	assert.Nil(t, err)
	assert.Equal(t, `testpool_pool_requests_total{pool="test",result="hit"} 1
testpool_pool_requests_total{pool="test",result="miss"} 1
testpool_pool_size{pool="test"} 1
`, metrics)
}
