package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the file descriptor limit below which watching a
// large inbox may fail.
const MinFileDescriptors = 1024

// CheckFileDescriptors checks the open file limit. Only watch mode needs a
// high limit, so a low one is a warning.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: false,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = "Run 'ulimit -n 10240' before 'taxctx watch' on large inboxes, or use --poll"
		return result
	}
	result.Status = StatusPass
	return result
}
