package runner

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/neurofed/axon/pkg/sandbox"
	"github.com/neurofed/axon/pkg/types"
)

const (
	// pollInterval bounds how often the supervisor checks the child.
	pollInterval = 250 * time.Millisecond
	// gracePeriod is the window between graceful termination and kill.
	gracePeriod = 5 * time.Second
)

// superviseResult is the raw outcome of one child execution.
type superviseResult struct {
	exitCode   int
	signal     string
	reason     types.FailureReason // empty on normal termination
	message    string
	stdoutTail string
	stderrTail string
	started    time.Time
	finished   time.Time
}

// supervise runs the child to completion under the backend, enforcing
// wall and CPU limits with the graceful-then-kill protocol.
func supervise(backend sandbox.Backend, spec *sandbox.Spec, cancelCh <-chan struct{}, logger zerolog.Logger) superviseResult {
	res := superviseResult{started: time.Now()}

	cmd, err := backend.Command(spec)
	if err != nil {
		res.reason = types.ReasonInternal
		res.message = "failed to build sandbox command: " + err.Error()
		res.finished = time.Now()
		return res
	}

	stdout := newRingBuffer(ringSize)
	stderr := newRingBuffer(ringSize)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		res.reason = types.ReasonInternal
		res.message = "failed to start analysis process: " + err.Error()
		res.finished = time.Now()
		return res
	}
	if err := backend.Confine(cmd, spec); err != nil {
		logger.Error().Err(err).Msg("Failed to confine child, killing it")
		_ = backend.Kill(cmd)
		<-waitFor(cmd)
		res.reason = types.ReasonInternal
		res.message = "failed to apply resource limits"
		res.finished = time.Now()
		res.stdoutTail = stdout.Tail()
		res.stderrTail = stderr.Tail()
		return res
	}

	done := waitFor(cmd)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var waitErr error
loop:
	for {
		select {
		case waitErr = <-done:
			break loop

		case <-cancelCh:
			res.reason = types.ReasonCancelled
			res.message = "job cancelled by operator"
			waitErr = terminate(backend, cmd, done, logger)
			break loop

		case <-ticker.C:
			wall := time.Since(res.started)
			if spec.Limits.MaxWall > 0 && wall > spec.Limits.MaxWall {
				res.reason = types.ReasonTimeout
				res.message = "wall clock limit exceeded"
				waitErr = terminate(backend, cmd, done, logger)
				break loop
			}
			if spec.Limits.MaxCPU > 0 {
				if cpu := procCPUTime(cmd.Process.Pid); cpu > spec.Limits.MaxCPU {
					res.reason = types.ReasonTimeout
					res.message = "cpu limit exceeded"
					waitErr = terminate(backend, cmd, done, logger)
					break loop
				}
			}
		}
	}

	res.finished = time.Now()
	if res.reason != "" {
		// The notice lands in the tail the requester sees.
		_, _ = stderr.Write([]byte("\n[supervisor] analysis terminated: " + res.message + "\n"))
	}
	res.stdoutTail = stdout.Tail()
	res.stderrTail = stderr.Tail()
	res.exitCode, res.signal = exitStatus(cmd, waitErr)
	return res
}

// waitFor wraps cmd.Wait in a channel so the supervisor can select on it.
func waitFor(cmd *exec.Cmd) <-chan error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return done
}

// terminate applies the graceful-then-kill protocol and returns the final
// wait error.
func terminate(backend sandbox.Backend, cmd *exec.Cmd, done <-chan error, logger zerolog.Logger) error {
	if err := backend.Terminate(cmd); err != nil {
		logger.Debug().Err(err).Msg("Graceful termination signal failed")
	}
	select {
	case err := <-done:
		return err
	case <-time.After(gracePeriod):
	}

	logger.Warn().Msg("Child survived grace period, killing")
	if err := backend.Kill(cmd); err != nil {
		logger.Error().Err(err).Msg("Kill failed")
	}
	return <-done
}

// exitStatus extracts the exit code and terminating signal.
func exitStatus(cmd *exec.Cmd, waitErr error) (int, string) {
	if waitErr == nil {
		return 0, ""
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return -1, ws.Signal().String()
		}
		return exitErr.ExitCode(), ""
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), ""
	}
	return -1, ""
}
