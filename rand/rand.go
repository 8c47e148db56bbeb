package rand

import (
	"math"

	"github.com/seehuhn/mt19937"
)

// A Generator uses a goroutine to populate batches of random numbers from a
// seeded Mersenne twister. Identical seeds give identical streams, which is
// what makes per-chain seeding reproducible.
type Generator struct {
	ch chan int64
}

// NewGenerator starts a new background PRNG based on the given seed
func NewGenerator(seed int64) (*Generator, error) {
	numChan := make(chan int64, 1024)

	go func() {
		r := mt19937.New()
		r.Seed(seed)
		for {
			numChan <- r.Int63()
		}
	}()

	g := &Generator{
		ch: numChan,
	}

	return g, nil
}

// Int63 provides the same interface as Go's math/rand, but with pre-generation.
func (g *Generator) Int63() int64 {
	return <-g.ch
}

// Int63n is a copy of the current Go code
func (g *Generator) Int63n(n int64) int64 {
	if n <= 0 {
		panic("invalid argument to Int63n")
	}

	if n&(n-1) == 0 { // n is power of two, can mask
		return g.Int63() & (n - 1)
	}

	max := int64((1 << 63) - 1 - (1<<63)%uint64(n))
	v := g.Int63()
	for v > max {
		v = g.Int63()
	}

	return v % n
}

// Float64 uses the commented, simpler implmentation since we don't have the
// same support requirements for users
func (g *Generator) Float64() float64 {
	// See the Go lang comments for Rand Float64 implementation for details
	return float64(g.Int63n(1<<53)) / (1 << 53)
}

// UnitOpen returns a uniform value on the open interval (0, 1) - safe to
// hand to math.Log.
func (g *Generator) UnitOpen() float64 {
	for {
		u := g.Float64()
		if u > 0.0 && u < 1.0 {
			return u
		}
	}
}

// NormFloat64 returns a standard normal variate via Box-Muller. Only one of
// the pair is used, which wastes a uniform but keeps the generator free of
// extra state.
func (g *Generator) NormFloat64() float64 {
	u1 := g.UnitOpen()
	u2 := g.Float64()
	return math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
}
