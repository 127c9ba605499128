package base

import (
	"time"
)

// QueueStats is a snapshot of counters of a queue and its scheduler
type QueueStats struct {
	Enqueued              uint64
	Processed             uint64
	Dropped               uint64
	Failed                uint64
	Retried               uint64
	CurrentSize           int
	MaxSize               int // historical max of CurrentSize
	TotalProcessingTime   time.Duration
	AverageProcessingTime time.Duration // per batch
	BatchCount            uint64
	LastBatchTime         time.Time
}

// PoolStats is a snapshot of counters and sizing of a record pool
type PoolStats struct {
	Name          string
	Size          int // idle records in pool
	Created       uint64
	Reused        uint64
	Hits          uint64
	Misses        uint64
	TotalRequests uint64
	HitRate       float64 // over all requests
	InitialSize   int
	MinSize       int
	MaxSize       int
}

// ProtectionStats is a snapshot of the durability layer
type ProtectionStats struct {
	CircuitOpen     bool
	FailureCount    int
	BackupFileCount int
}
