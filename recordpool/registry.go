package recordpool

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync"
	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
)

// Registry maps pool names to pools, so that components can share or isolate pools by name
//
// One registry is created at application start and passed to whatever needs a pool
type Registry struct {
	logger        logger.Logger
	metricFactory *base.MetricFactory
	pools         *xsync.MapOf[*Pool]
	createMutex   sync.Mutex // serializes creation of new pools; lookups are lock-free
}

// NewRegistry creates an empty registry
func NewRegistry(parentLogger logger.Logger, metricFactory *base.MetricFactory) *Registry {
	return &Registry{
		logger:        parentLogger.WithField(defs.LabelComponent, "PoolRegistry"),
		metricFactory: metricFactory,
		pools:         xsync.NewMapOf[*Pool](),
	}
}

// GetOrCreate returns the pool of given name, creating it by config if missing
//
// The config is ignored if the pool already exists
func (reg *Registry) GetOrCreate(name string, config Config) *Pool {
	if pool, ok := reg.pools.Load(name); ok {
		return pool
	}
	reg.createMutex.Lock()
	defer reg.createMutex.Unlock()
	if pool, ok := reg.pools.Load(name); ok {
		return pool
	}
	pool := New(reg.logger, name, config, reg.metricFactory)
	reg.pools.Store(name, pool)
	reg.logger.Infof("created pool '%s' initial=%d min=%d max=%d", name, config.InitialSize, config.MinSize, config.MaxSize)
	return pool
}

// Get returns the pool of given name or nil
func (reg *Registry) Get(name string) *Pool {
	pool, _ := reg.pools.Load(name)
	return pool
}

// Stats returns the stats of pool by name
func (reg *Registry) Stats(name string) (base.PoolStats, bool) {
	pool, ok := reg.pools.Load(name)
	if !ok {
		return base.PoolStats{}, false
	}
	return pool.Stats(), true
}

// AllStats returns the stats of all pools sorted by name
func (reg *Registry) AllStats() []base.PoolStats {
	statsList := make([]base.PoolStats, 0, 4)
	reg.pools.Range(func(_ string, pool *Pool) bool {
		statsList = append(statsList, pool.Stats())
		return true
	})
	sort.Slice(statsList, func(i, j int) bool {
		return statsList[i].Name < statsList[j].Name
	})
	return statsList
}

// Close stops auto-resizing of all pools and removes them from the registry
func (reg *Registry) Close() {
	reg.createMutex.Lock()
	defer reg.createMutex.Unlock()
	names := make([]string, 0, 4)
	reg.pools.Range(func(name string, pool *Pool) bool {
		pool.Stop()
		names = append(names, name)
		return true
	})
	for _, name := range names {
		reg.pools.Delete(name)
	}
}
