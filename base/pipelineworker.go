package base

import (
	"github.com/relex/gotils/channels"
)

// PipelineWorker represents a background worker in the pipeline, e.g. a queue scheduler or a sink writer
//
// Start and Stop are idempotent. A stopped worker cannot be started again.
type PipelineWorker interface {
	Start()
	Stop()
	Stopped() channels.Awaitable
}
