package recordpool

import (
	"testing"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry(logger.WithField("test", t.Name()), base.NewMetricFactory("testregistry_", nil, nil))
	defer reg.Close()

	cfg := Config{InitialSize: 3, MinSize: 1, MaxSize: 10, ResizeThreshold: 0.8}
	p1 := reg.GetOrCreate("app", cfg)
	p2 := reg.GetOrCreate("app", Config{InitialSize: 1, MinSize: 1, MaxSize: 1, ResizeThreshold: 0.8})
	assert.Same(t, p1, p2)
	p3 := reg.GetOrCreate("audit", cfg)
	assert.NotSame(t, p1, p3)

	assert.Same(t, p1, reg.Get("app"))
	assert.Nil(t, reg.Get("missing"))

	p1.Get()
	stats, ok := reg.Stats("app")
	assert.True(t, ok)
	assert.EqualValues(t, 1, stats.TotalRequests)
	assert.Equal(t, 2, stats.Size)
	_, ok = reg.Stats("missing")
	assert.False(t, ok)

	all := reg.AllStats()
	if assert.Len(t, all, 2) {
		assert.Equal(t, "app", all[0].Name)
		assert.Equal(t, "audit", all[1].Name)
	}

	reg.Close()
	assert.Nil(t, reg.Get("app"))
	assert.Len(t, reg.AllStats(), 0)
}

func TestConfigVerify(t *testing.T) {
	assert.Nil(t, DefaultConfig().Verify())
	assert.Error(t, Config{InitialSize: 1, MinSize: 0, MaxSize: 0, ResizeThreshold: 0.8}.Verify())
	assert.Error(t, Config{InitialSize: 20, MinSize: 0, MaxSize: 10, ResizeThreshold: 0.8}.Verify())
	assert.Error(t, Config{InitialSize: 1, MinSize: 0, MaxSize: 10, ResizeThreshold: 0.3}.Verify())
}
