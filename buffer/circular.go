package buffer

// CircularInt is a fixed-size circular buffer of ints used for windowed
// chain statistics - the warmup adapter keeps its recent
// acceptance/rejection history in one.
type CircularInt struct {
	buffer    []int // actual storage
	pos       int   // Current position in buffer
	BufSize   int   // BufSize is the fixed number of ints maintained in memory
	Count     int   // Count is the number of ints in memory. Will always be <= BufSize
	TotalSeen int64 // TotalSeen is the total number of times Add has been called
}

// NewCircularInt creates a new circular buffer of totalSize.
func NewCircularInt(totalSize int) *CircularInt {
	return &CircularInt{
		buffer:  make([]int, totalSize),
		pos:     0,
		BufSize: totalSize,
		Count:   0,
	}
}

// Internal: return the next array position
func (c *CircularInt) nextPos() int {
	return (c.pos + 1) % c.BufSize
}

// Add appends the given int to the buffer, overwriting the oldest entry
func (c *CircularInt) Add(i int) {
	c.TotalSeen++

	c.buffer[c.pos] = i

	c.pos = c.nextPos()

	c.Count++
	if c.Count > c.BufSize {
		c.Count = c.BufSize // max out
	}
}

// Full returns true once Add has been called at least BufSize times.
func (c *CircularInt) Full() bool {
	return c.Count >= c.BufSize
}

// Mean returns the mean of the currently stored values (0.0 if empty). For
// a window of 0/1 accept flags this is the recent acceptance rate.
func (c *CircularInt) Mean() float64 {
	if c.Count < 1 {
		return 0.0
	}

	sum := 0
	for i := 0; i < c.Count; i++ {
		sum += c.buffer[i]
	}
	return float64(sum) / float64(c.Count)
}
