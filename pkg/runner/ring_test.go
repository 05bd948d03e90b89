package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferUnderCapacity(t *testing.T) {
	r := newRingBuffer(16)
	_, err := r.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, "hello", r.Tail())
}

func TestRingBufferWraps(t *testing.T) {
	r := newRingBuffer(8)
	r.Write([]byte("abcdef"))
	r.Write([]byte("ghij"))
	// 10 bytes through an 8-byte ring keeps the last 8.
	assert.Equal(t, "cdefghij", r.Tail())
}

func TestRingBufferOversizedWrite(t *testing.T) {
	r := newRingBuffer(4)
	r.Write([]byte("abcdefgh"))
	assert.Equal(t, "efgh", r.Tail())
}

func TestRingBufferExactFill(t *testing.T) {
	r := newRingBuffer(4)
	r.Write([]byte("abcd"))
	assert.Equal(t, "abcd", r.Tail())
	r.Write([]byte("e"))
	assert.Equal(t, "bcde", r.Tail())
}

func TestRingBufferManySmallWrites(t *testing.T) {
	r := newRingBuffer(10)
	for i := 0; i < 100; i++ {
		r.Write([]byte("x"))
	}
	r.Write([]byte("END"))
	tail := r.Tail()
	assert.Len(t, tail, 10)
	assert.True(t, strings.HasSuffix(tail, "END"))
}
