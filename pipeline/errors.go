package pipeline

import (
	"errors"
)

// ErrRejected is returned by Log when the record is neither queued nor backed up
var ErrRejected = errors.New("log record rejected")
