// Package par provides the single parallel-for primitive used by the
// optimization core. MultiGP fans per-output work through it, and the
// parallel-repeater optimizer fans restart trials through it. The threading
// machinery never leaks past this package.
package par

import (
	"runtime"
	"sync"
	"sync/atomic"
)

var workers int64

// SetWorkers caps the number of goroutines Loop may use. n = 1 (or a
// negative n) forces the deterministic sequential fallback, useful in tests.
// n = 0 restores the default (GOMAXPROCS).
func SetWorkers(n int) {
	atomic.StoreInt64(&workers, int64(n))
}

func maxWorkers() int {
	n := int(atomic.LoadInt64(&workers))
	if n == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// Loop runs body(i) for every i in [start, end). Iterations may execute
// concurrently; the body must not assume any ordering between them. Loop
// returns once every iteration has completed.
func Loop(start, end int, body func(i int)) {
	n := end - start
	if n <= 0 {
		return
	}
	w := maxWorkers()
	if w > n {
		w = n
	}
	if w <= 1 {
		for i := start; i < end; i++ {
			body(i)
		}
		return
	}

	var next int64 = int64(start)
	var wg sync.WaitGroup
	wg.Add(w)
	for g := 0; g < w; g++ {
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1)) - 1
				if i >= end {
					return
				}
				body(i)
			}
		}()
	}
	wg.Wait()
}
