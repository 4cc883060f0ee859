package util

import "runtime"

// DefaultParallelism picks a practical worker count from host CPU
// parallelism. Heuristic: NumCPU clamped to [1..4], falling back to 2
// when the count is unknown. Asset downloads are network-bound, so a
// handful of workers saturates the link without thrashing decode.
func DefaultParallelism() int {
	p := runtime.NumCPU()
	if p <= 0 {
		return 2
	}
	return ClampParallelism(p)
}

// ClampParallelism bounds a requested worker count to [1..4].
func ClampParallelism(n int) int {
	if n < 1 {
		return 1
	}
	if n > 4 {
		return 4
	}
	return n
}
