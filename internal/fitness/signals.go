package fitness

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"trajneat/internal/model"
)

// OverlapRatio is the fraction of points in the concatenation of a and b that
// occur exactly once. Two identical trajectories score 0.
func OverlapRatio(a, b []model.Point) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}
	counts := make(map[model.Point]int, total)
	for _, p := range a {
		counts[p]++
	}
	for _, p := range b {
		counts[p]++
	}
	unique := 0
	for _, n := range counts {
		if n == 1 {
			unique++
		}
	}
	return float64(unique) / float64(total)
}

// Diversity is the mean pairwise overlap ratio across trajectories, remapped
// to [0, maxFitness]. Fewer than two trajectories score 0.
func Diversity(trajectories [][]model.Point, maxFitness float64) float64 {
	var ratios []float64
	for i := range trajectories {
		for j := i + 1; j < len(trajectories); j++ {
			ratios = append(ratios, OverlapRatio(trajectories[i], trajectories[j]))
		}
	}
	mean := 0.0
	if len(ratios) > 0 {
		mean = stat.Mean(ratios, nil)
	}
	return Convert(0, 1, 0, maxFitness, mean)
}

var compassBrackets = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW", "N"}

// Bearing is the compass bearing in degrees, in [0, 360), from start to end.
func Bearing(start, end model.Point) float64 {
	deg := math.Atan2(float64(end.X-start.X), float64(end.Y-start.Y)) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// Compass names the 45-degree bracket of a bearing.
func Compass(bearing float64) string {
	return compassBrackets[int(math.Round(bearing/45))%len(compassBrackets)]
}

// Spread is the mean of the circular differences between consecutive sorted
// bearings; negative wraps are corrected by adding 360.
func Spread(bearings []float64) float64 {
	if len(bearings) == 0 {
		return 0
	}
	sorted := append([]float64(nil), bearings...)
	sort.Float64s(sorted)
	diffs := make([]float64, len(sorted))
	for i := range sorted {
		d := sorted[(i+1)%len(sorted)] - sorted[i]
		if d < 0 {
			d += 360
		}
		diffs[i] = d
	}
	return stat.Mean(diffs, nil)
}

// Variance is the good-trajectory signal of a genome. After each trajectory
// it takes, once more than one trajectory so far reaches threshold, the sum of
// the per-dimension means of every behaviour seen so far (0 otherwise). The
// result is the mean of those running values.
func Variance(behaviors []model.Behavior, scores []float64, threshold float64) float64 {
	if len(behaviors) != len(scores) {
		panic("fitness: behaviours and scores differ in length")
	}
	if len(behaviors) == 0 {
		return 0
	}
	width := len(behaviors[0])
	sums := make([]float64, width)
	running := make([]float64, len(behaviors))
	good := 0
	for i, b := range behaviors {
		if len(b) != width {
			panic("fitness: behaviour vectors differ in length")
		}
		floats.Add(sums, b)
		if scores[i] >= threshold {
			good++
		}
		if good > 1 {
			running[i] = floats.Sum(sums) / float64(i+1)
		}
	}
	return stat.Mean(running, nil)
}

// MeanBehavior is the per-dimension mean of the behaviours.
func MeanBehavior(behaviors []model.Behavior) model.Behavior {
	if len(behaviors) == 0 {
		return nil
	}
	width := len(behaviors[0])
	out := make(model.Behavior, width)
	column := make([]float64, len(behaviors))
	for d := 0; d < width; d++ {
		for i, b := range behaviors {
			if len(b) != width {
				panic("fitness: behaviour vectors differ in length")
			}
			column[i] = b[d]
		}
		out[d] = stat.Mean(column, nil)
	}
	return out
}
