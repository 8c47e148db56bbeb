package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircularInt(t *testing.T) {
	assert := assert.New(t)

	ci := NewCircularInt(6)
	assert.Equal(6, ci.BufSize)
	assert.Equal(0, ci.Count)
	assert.False(ci.Full())

	ci.Add(1)
	ci.Add(2)
	ci.Add(3)
	ci.Add(4)
	ci.Add(5)
	assert.Equal(6, ci.BufSize)
	assert.Equal(5, ci.Count)
	assert.False(ci.Full())

	ci.Add(6)
	assert.Equal(6, ci.BufSize)
	assert.Equal(6, ci.Count)
	assert.True(ci.Full())
	assert.InDelta(3.5, ci.Mean(), 1e-12)

	// Overwrite the oldest entries: 1 2 3 4 5 6 => 8 8 3 4 5 6
	ci.Add(8)
	ci.Add(8)
	assert.Equal(6, ci.Count)
	assert.Equal(int64(8), ci.TotalSeen)
	assert.InDelta(34.0/6.0, ci.Mean(), 1e-12)
}

func TestCircularIntAcceptWindow(t *testing.T) {
	assert := assert.New(t)

	ci := NewCircularInt(4)
	assert.Equal(0.0, ci.Mean())

	// 0/1 accept flags: the mean is the windowed acceptance rate
	for _, f := range []int{1, 0, 1, 1} {
		ci.Add(f)
	}
	assert.InDelta(0.75, ci.Mean(), 1e-12)

	ci.Add(0) // evicts the leading 1
	ci.Add(0) // evicts the 0
	assert.InDelta(0.5, ci.Mean(), 1e-12)
}
