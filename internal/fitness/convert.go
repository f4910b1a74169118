// Package fitness scores trajectories against the landscape surfaces and
// turns the per-genome signals into the evolutionary fitness.
package fitness

import "math"

// Convert linearly remaps v from [oldMin, oldMax] to [newMin, newMax]. v is
// clamped to the source range first; a zero-width source range yields newMin.
func Convert(oldMin, oldMax, newMin, newMax, v float64) float64 {
	if oldMax == oldMin {
		return newMin
	}
	lo, hi := math.Min(oldMin, oldMax), math.Max(oldMin, oldMax)
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}
	return (v-oldMin)*(newMax-newMin)/(oldMax-oldMin) + newMin
}
