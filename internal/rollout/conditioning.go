package rollout

import (
	"sort"
	"strconv"
	"strings"
)

// ConditioningWidth is the length of every behaviour-conditioning vector.
const ConditioningWidth = 6

// predefined are the ten behaviour-conditioning vectors used when a genome
// generates at most ten trajectories.
var predefined = [][]float64{
	{1, -1, -1, -1, -1, -1},
	{-1, 1, -1, -1, -1, -1},
	{-1, -1, 1, -1, -1, -1},
	{-1, -1, -1, 1, -1, -1},
	{-1, -1, -1, -1, 1, -1},
	{-1, -1, -1, -1, -1, 1},
	{-0.011, -0.011, -0.011, -0.011, -0.011, -0.0111},
	{-1, -1, -1, -1, -0.011, 1},
	{-1, -1, -1, -0.011, -1, 1},
	{-1, -1, -1, -1, -1, -1},
}

var extended = uniquePermutations([]float64{-1, -1, -1, -1, -0.011, 1})

// Predefined returns a copy of the short conditioning list.
func Predefined() [][]float64 { return cloneAll(predefined) }

// Extended returns a copy of the 30 unique permutations of
// [-1, -1, -1, -1, -0.011, 1] in lexicographic order.
func Extended() [][]float64 { return cloneAll(extended) }

// ConditioningFor picks the vector for rollout i out of total. Up to ten
// rollouts use the short list; more use the extended one. Indices wrap.
func ConditioningFor(i, total int) []float64 {
	list := predefined
	if total > len(predefined) {
		list = extended
	}
	return append([]float64(nil), list[i%len(list)]...)
}

func uniquePermutations(values []float64) [][]float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	seen := map[string]struct{}{}
	var out [][]float64
	var walk func(prefix []float64, used []bool)
	walk = func(prefix []float64, used []bool) {
		if len(prefix) == len(sorted) {
			key := permKey(prefix)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			out = append(out, append([]float64(nil), prefix...))
			return
		}
		for i, v := range sorted {
			if used[i] {
				continue
			}
			used[i] = true
			walk(append(prefix, v), used)
			used[i] = false
		}
	}
	walk(make([]float64, 0, len(sorted)), make([]bool, len(sorted)))
	return out
}

func permKey(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func cloneAll(in [][]float64) [][]float64 {
	out := make([][]float64, len(in))
	for i, v := range in {
		out[i] = append([]float64(nil), v...)
	}
	return out
}
