package test

import (
	"runtime"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/util"
	"golang.org/x/sys/unix"
)

// CostTracker tracks CPU usage and memory allocations
type CostTracker struct {
	initRealTime      time.Time
	initUserTime      time.Time
	initSystemTime    time.Time
	initNumHeapAllocs uint64
}

// CostReport contains measurements since the tracker was created
type CostReport struct {
	RealTime      time.Duration
	UserTime      time.Duration
	SystemTime    time.Duration
	NumHeapAllocs uint64
	GCCPUFraction float64
}

// StartCostTracking creates a cost tracker and starts tracking
func StartCostTracking() *CostTracker {
	runtime.GC()
	userTime, systemTime := getCPUTimes()
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return &CostTracker{
		initRealTime:      time.Now(),
		initUserTime:      userTime,
		initSystemTime:    systemTime,
		initNumHeapAllocs: memStats.Mallocs,
	}
}

// Report reports measurements since the tracker was created
func (ct *CostTracker) Report() CostReport {
	realTime := time.Since(ct.initRealTime)
	runtime.GC()
	userTime, systemTime := getCPUTimes()
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return CostReport{
		RealTime:      realTime,
		UserTime:      userTime.Sub(ct.initUserTime),
		SystemTime:    systemTime.Sub(ct.initSystemTime),
		NumHeapAllocs: memStats.Mallocs - ct.initNumHeapAllocs,
		GCCPUFraction: memStats.GCCPUFraction,
	}
}

func getCPUTimes() (time.Time, time.Time) {
	var rusage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &rusage); err != nil {
		logger.Panic("failed to get resource usage: ", err)
	}
	return util.TimeFromTimeval(rusage.Utime), util.TimeFromTimeval(rusage.Stime)
}
