package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalStates(t *testing.T) {
	terminal := []RequestState{StateDenied, StateExpired, StateCompleted, StateFailed}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), string(s))
	}
	open := []RequestState{StateSubmitted, StatePending, StateApproved, StateRunning}
	for _, s := range open {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestFileTypeTabular(t *testing.T) {
	assert.True(t, FileCSV.Tabular())
	assert.True(t, FileTSV.Tabular())
	assert.False(t, FileJSON.Tabular())
	assert.False(t, FileNIIGz.Tabular())
}

func TestErrorKinds(t *testing.T) {
	err := NewError(KindPolicy, "request %s is terminal", "req-1")
	assert.Equal(t, KindPolicy, KindOf(err))
	assert.True(t, IsPolicy(err))
	assert.Contains(t, err.Error(), "req-1")

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindPolicy, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestWrapErrorUnwraps(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapError(KindResourceExhausted, inner, "workspace write failed")
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, KindResourceExhausted, KindOf(err))
}
