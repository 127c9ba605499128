package util

import (
	"time"

	"golang.org/x/sys/unix"
)

// TimeToUnixFloat creates Unix epoch seconds from a Time structure
func TimeToUnixFloat(tm time.Time) float64 { // xx:inline
	return float64(tm.UnixNano()) / 1000000000.0
}

// TimeFromTimeval converts Timeval from rusage to Time
func TimeFromTimeval(tv unix.Timeval) time.Time {
	return time.Unix(tv.Unix())
}
