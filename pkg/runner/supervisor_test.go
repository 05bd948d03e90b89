//go:build !windows

package runner

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/neurofed/axon/pkg/sandbox"
	"github.com/neurofed/axon/pkg/types"
)

func shSpec(t *testing.T, script string, limits sandbox.Limits) *sandbox.Spec {
	t.Helper()
	return &sandbox.Spec{
		WorkDir: t.TempDir(),
		Program: "/bin/sh",
		Args:    []string{"-c", script},
		Env:     []string{"LC_ALL=C"},
		Limits:  limits,
	}
}

func TestSuperviseCleanExit(t *testing.T) {
	backend := &sandbox.ProcessBackend{}
	spec := shSpec(t, "echo out; echo err >&2", sandbox.Limits{MaxWall: 10 * time.Second})

	res := supervise(backend, spec, nil, zerolog.Nop())
	assert.Empty(t, res.reason)
	assert.Equal(t, 0, res.exitCode)
	assert.Contains(t, res.stdoutTail, "out")
	assert.Contains(t, res.stderrTail, "err")
	assert.False(t, res.finished.Before(res.started))
}

func TestSuperviseNonzeroExit(t *testing.T) {
	backend := &sandbox.ProcessBackend{}
	spec := shSpec(t, "exit 3", sandbox.Limits{MaxWall: 10 * time.Second})

	res := supervise(backend, spec, nil, zerolog.Nop())
	assert.Empty(t, res.reason, "a nonzero exit is not a supervision abort")
	assert.Equal(t, 3, res.exitCode)
}

// TestSuperviseWallTimeout covers the graceful-then-kill protocol on a
// child that outlives MaxWall
func TestSuperviseWallTimeout(t *testing.T) {
	backend := &sandbox.ProcessBackend{}
	spec := shSpec(t, "sleep 30", sandbox.Limits{MaxWall: 300 * time.Millisecond})

	start := time.Now()
	res := supervise(backend, spec, nil, zerolog.Nop())

	assert.Equal(t, types.ReasonTimeout, res.reason)
	assert.Contains(t, res.message, "wall clock")
	assert.Contains(t, res.stderrTail, "terminated", "notice lands in the stderr tail")
	assert.Less(t, time.Since(start), 15*time.Second, "child did not linger")
}

func TestSuperviseCancel(t *testing.T) {
	backend := &sandbox.ProcessBackend{}
	spec := shSpec(t, "sleep 30", sandbox.Limits{MaxWall: time.Minute})

	cancelCh := make(chan struct{})
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(cancelCh)
	}()

	res := supervise(backend, spec, cancelCh, zerolog.Nop())
	assert.Equal(t, types.ReasonCancelled, res.reason)
}

func TestSuperviseMissingProgram(t *testing.T) {
	backend := &sandbox.ProcessBackend{}
	spec := &sandbox.Spec{
		WorkDir: t.TempDir(),
		Program: "/nonexistent/interpreter",
		Limits:  sandbox.Limits{MaxWall: time.Second},
	}

	res := supervise(backend, spec, nil, zerolog.Nop())
	assert.Equal(t, types.ReasonInternal, res.reason)
	assert.Contains(t, res.message, "failed to start")
}
