// Package random provides the process-wide pseudo-random generator used by
// every stochastic operation in BOREAL: random-sampling initialization,
// random-point optimization, parallel restarts and CMA-ES seeding.
//
// The generator is seeded once (at process start, or explicitly via Seed) and
// hands out per-goroutine streams on demand, so concurrent callers never
// contend on a single locked source.
package random

import (
	"math/rand"
	"sync"
	"time"
)

var (
	seedMu sync.Mutex
	seeder *rand.Rand

	streams = sync.Pool{
		New: func() interface{} {
			return rand.New(rand.NewSource(nextSeed()))
		},
	}
)

func init() {
	seeder = rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Seed reseeds the process-wide generator. Streams spawned after this call
// derive from the new seed; streams already in flight are unaffected. A zero
// seed restores time-based seeding.
func Seed(seed int64) {
	seedMu.Lock()
	defer seedMu.Unlock()
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	seeder = rand.New(rand.NewSource(seed))
	// Drain pooled streams so they are rebuilt from the new seed.
	streams = sync.Pool{
		New: func() interface{} {
			return rand.New(rand.NewSource(nextSeed()))
		},
	}
}

func nextSeed() int64 {
	seedMu.Lock()
	defer seedMu.Unlock()
	return seeder.Int63()
}

// NewStream returns a dedicated *rand.Rand derived from the process seed.
// The caller owns the stream; it is never returned to the pool.
func NewStream() *rand.Rand {
	return rand.New(rand.NewSource(nextSeed()))
}

// Int63 draws a non-negative int64 from a pooled stream. Useful for seeding
// third-party sources.
func Int63() int64 {
	r := streams.Get().(*rand.Rand)
	v := r.Int63()
	streams.Put(r)
	return v
}

// Float64 draws a uniform value in [0,1) from a pooled stream.
func Float64() float64 {
	r := streams.Get().(*rand.Rand)
	v := r.Float64()
	streams.Put(r)
	return v
}

// Uniform draws a uniform value in [lo,hi).
func Uniform(lo, hi float64) float64 {
	return lo + Float64()*(hi-lo)
}

// Vector draws a uniform random point in the unit box [0,1)^dim.
func Vector(dim int) []float64 {
	r := streams.Get().(*rand.Rand)
	v := make([]float64, dim)
	for i := range v {
		v[i] = r.Float64()
	}
	streams.Put(r)
	return v
}

// Perm returns a random permutation of [0,n).
func Perm(n int) []int {
	r := streams.Get().(*rand.Rand)
	p := r.Perm(n)
	streams.Put(r)
	return p
}
