package recordpool

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/util"
)

// Pool holds idle log records for reuse, to avoid allocating one record per message
//
// A record is either idle in the pool or in flight, never both. All methods are safe for concurrent use.
type Pool struct {
	name   string
	config Config
	logger logger.Logger
	mutex  sync.Mutex
	idle   []*base.LogRecord
	member map[*base.LogRecord]struct{} // records currently idle in the pool

	created       uint64
	reused        uint64
	hits          uint64
	misses        uint64
	totalRequests uint64
	windowHits    uint64 // hits since last resize
	windowTotal   uint64 // requests since last resize

	autoResizing  bool
	stopSignal    *channels.SignalAwaitable
	stoppedSignal *channels.SignalAwaitable

	hitCounter  prometheus.Counter
	missCounter prometheus.Counter
	sizeGauge   prometheus.Gauge
}

// New creates a pool and pre-allocates InitialSize records
func New(parentLogger logger.Logger, name string, config Config, metricFactory *base.MetricFactory) *Pool {
	requestsVec := metricFactory.AddOrGetCounterVec("pool_requests_total", "Numbers of records requested from pools",
		[]string{"pool", "result"}, []string{name})
	pool := &Pool{
		name:          name,
		config:        config,
		logger:        parentLogger.WithFields(logger.Fields{defs.LabelComponent: "RecordPool", defs.LabelPool: name}),
		mutex:         sync.Mutex{},
		idle:          make([]*base.LogRecord, 0, config.MaxSize),
		member:        make(map[*base.LogRecord]struct{}, config.MaxSize),
		stopSignal:    channels.NewSignalAwaitable(),
		stoppedSignal: channels.NewSignalAwaitable(),
		hitCounter:    requestsVec.WithLabelValues("hit"),
		missCounter:   requestsVec.WithLabelValues("miss"),
		sizeGauge: metricFactory.AddOrGetGauge("pool_size", "Numbers of idle records in pools",
			[]string{"pool"}, []string{name}),
	}
	pool.mutex.Lock()
	pool.growLocked(config.InitialSize)
	pool.mutex.Unlock()
	return pool
}

// Name returns the name of this pool
func (pool *Pool) Name() string {
	return pool.name
}

// Get takes an idle record from the pool, or allocates a new one if the pool is empty
//
// The returned record is reset to defaults. Get never fails.
func (pool *Pool) Get() *base.LogRecord {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	pool.totalRequests++
	pool.windowTotal++
	if n := len(pool.idle); n > 0 {
		record := pool.idle[n-1]
		pool.idle[n-1] = nil
		pool.idle = pool.idle[:n-1]
		delete(pool.member, record)
		pool.hits++
		pool.windowHits++
		pool.reused++
		pool.hitCounter.Inc()
		pool.sizeGauge.Dec()
		resetRecord(record)
		return record
	}
	pool.misses++
	pool.created++
	pool.missCounter.Inc()
	return newRecord()
}

// Put returns a record to the pool
//
// The record is abandoned if the pool is full. A record which is already idle in the pool is ignored.
func (pool *Pool) Put(record *base.LogRecord) {
	if record == nil {
		return
	}
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if _, exists := pool.member[record]; exists {
		pool.logger.Debugf("ignored duplicate put of %s", record)
		return
	}
	if len(pool.idle) >= pool.config.MaxSize {
		return
	}
	pool.idle = append(pool.idle, record)
	pool.member[record] = struct{}{}
	pool.sizeGauge.Inc()
}

// Size returns the numbers of idle records
func (pool *Pool) Size() int {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()
	return len(pool.idle)
}

// Resize grows or shrinks the pool by the hit rate observed since the previous resize
//
// Returns the new size
func (pool *Pool) Resize() int {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if pool.windowTotal == 0 {
		return len(pool.idle)
	}
	hitRate := float64(pool.windowHits) / float64(pool.windowTotal)
	pool.windowHits = 0
	pool.windowTotal = 0

	oldSize := len(pool.idle)
	switch {
	case hitRate > pool.config.ResizeThreshold:
		pool.growLocked(util.MinInt(defs.PoolMaxGrowStep, pool.config.MaxSize-oldSize))
	case hitRate < 1.0-pool.config.ResizeThreshold:
		pool.shrinkLocked(pool.config.MinSize)
	}
	if newSize := len(pool.idle); newSize != oldSize {
		pool.logger.Debugf("resized from %d to %d by hit rate %.2f", oldSize, newSize, hitRate)
	}
	return len(pool.idle)
}

// StartAutoResize launches a goroutine to call Resize periodically until Stop
func (pool *Pool) StartAutoResize(interval time.Duration) {
	pool.mutex.Lock()
	if pool.autoResizing || pool.stopSignal.Peek() {
		pool.mutex.Unlock()
		return
	}
	pool.autoResizing = true
	pool.mutex.Unlock()

	go func() {
		defer pool.stoppedSignal.Signal()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pool.Resize()
			case <-pool.stopSignal.Channel():
				return
			}
		}
	}()
}

// Stop stops auto-resizing if launched. Idle records are kept.
func (pool *Pool) Stop() {
	pool.mutex.Lock()
	running := pool.autoResizing
	pool.mutex.Unlock()

	pool.stopSignal.Signal()
	if running && !pool.stoppedSignal.Wait(defs.StopTimeout) {
		pool.logger.Warnf("auto-resizing didn't stop in %s", defs.StopTimeout)
	}
}

// Stats returns a snapshot of counters and sizing
func (pool *Pool) Stats() base.PoolStats {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	hitRate := 0.0
	if pool.totalRequests > 0 {
		hitRate = float64(pool.hits) / float64(pool.totalRequests)
	}
	return base.PoolStats{
		Name:          pool.name,
		Size:          len(pool.idle),
		Created:       pool.created,
		Reused:        pool.reused,
		Hits:          pool.hits,
		Misses:        pool.misses,
		TotalRequests: pool.totalRequests,
		HitRate:       hitRate,
		InitialSize:   pool.config.InitialSize,
		MinSize:       pool.config.MinSize,
		MaxSize:       pool.config.MaxSize,
	}
}

// growLocked adds up to count new records, must be called with lock held
func (pool *Pool) growLocked(count int) {
	for i := 0; i < count && len(pool.idle) < pool.config.MaxSize; i++ {
		record := newRecord()
		pool.idle = append(pool.idle, record)
		pool.member[record] = struct{}{}
		pool.created++
		pool.sizeGauge.Inc()
	}
}

// shrinkLocked drops idle records until the given floor, must be called with lock held
func (pool *Pool) shrinkLocked(floor int) {
	for len(pool.idle) > floor {
		n := len(pool.idle)
		delete(pool.member, pool.idle[n-1])
		pool.idle[n-1] = nil
		pool.idle = pool.idle[:n-1]
		pool.sizeGauge.Dec()
	}
}

func newRecord() *base.LogRecord {
	return &base.LogRecord{}
}

// resetRecord clears all fields while keeping the allocated extension map
func resetRecord(record *base.LogRecord) {
	extra := record.Extra
	for key := range extra {
		delete(extra, key)
	}
	*record = base.LogRecord{}
	record.Extra = extra
}
