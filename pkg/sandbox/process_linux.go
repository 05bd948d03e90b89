//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// setLimit applies one rlimit, tolerating a child that already exited.
func setLimit(pid int, resource int, lim unix.Rlimit, what string) error {
	if err := unix.Prlimit(pid, resource, &lim, nil); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to set %s limit: %w", what, err)
	}
	return nil
}

// Confine applies kernel rlimits to the already-started child. RLIMIT_CPU
// backs MaxCPU, RLIMIT_AS backs MaxMem, and RLIMIT_FSIZE backs MaxOut so
// the kernel stops an artifact from growing past the cap even before the
// runner sees it.
func (b *ProcessBackend) Confine(cmd *exec.Cmd, spec *Spec) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	pid := cmd.Process.Pid

	if spec.Limits.MaxCPU > 0 {
		secs := uint64(spec.Limits.MaxCPU.Seconds())
		if secs == 0 {
			secs = 1
		}
		// Hard limit one second past soft so SIGXCPU lands before SIGKILL.
		if err := setLimit(pid, unix.RLIMIT_CPU, unix.Rlimit{Cur: secs, Max: secs + 1}, "cpu"); err != nil {
			return err
		}
	}
	if spec.Limits.MaxMem > 0 {
		mem := uint64(spec.Limits.MaxMem)
		if err := setLimit(pid, unix.RLIMIT_AS, unix.Rlimit{Cur: mem, Max: mem}, "memory"); err != nil {
			return err
		}
	}
	if spec.Limits.MaxOut > 0 {
		out := uint64(spec.Limits.MaxOut)
		if err := setLimit(pid, unix.RLIMIT_FSIZE, unix.Rlimit{Cur: out, Max: out}, "file size"); err != nil {
			return err
		}
	}
	return nil
}
