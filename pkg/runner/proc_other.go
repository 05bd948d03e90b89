//go:build !linux

package runner

import (
	"time"
)

// procCPUTime is unavailable without procfs; the kernel rlimit (when the
// backend supports it) and the wall clock remain the enforcement paths.
func procCPUTime(pid int) time.Duration {
	return 0
}
