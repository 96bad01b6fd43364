// Package workers sizes and runs the bounded pool that executes poster
// pipelines.
//
// Sizing uses GOMAXPROCS rather than runtime.NumCPU so that container CPU
// limits are respected: a pod limited to 2 CPUs on a 64 core node gets 2
// pipeline workers, not 64.
package workers

import "runtime"

// Count returns multiplier workers per available CPU, at least 1 and at
// most limit. Use 0 for no limit.
func Count(multiplier float64, limit int) int {
	// GOMAXPROCS follows the container CPU limit
	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU)
func ForCPU(limit int) int {
	return Count(1.0, limit)
}
