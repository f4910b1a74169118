package novelty

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"trajneat/internal/model"
)

// DistanceMatrix returns the Euclidean distance from every row behaviour to
// every column behaviour.
func DistanceMatrix(rows, cols []model.Behavior) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, len(cols))
		for j, c := range cols {
			if len(r) != len(c) {
				panic("novelty: behaviour vectors differ in length")
			}
			out[i][j] = floats.Distance(r, c, 2)
		}
	}
	return out
}

// Scores is the mean of the k smallest distances of each row. k is clamped
// to len(row)-1 when a row has no more than k entries, so a behaviour's
// distance to itself does not fill the whole neighbourhood.
func Scores(matrix [][]float64, k int) []float64 {
	out := make([]float64, len(matrix))
	buf := make([]float64, 0)
	for i, row := range matrix {
		n := k
		if n >= len(row) {
			n = len(row) - 1
		}
		if n <= 0 {
			continue
		}
		buf = append(buf[:0], row...)
		sort.Float64s(buf)
		out[i] = floats.Sum(buf[:n]) / float64(n)
	}
	return out
}

// Score rates every behaviour of the batch against the batch itself plus the
// archive contents.
func Score(batch []model.Behavior, archive *Archive, k int) []float64 {
	pool := make([]model.Behavior, 0, len(batch)+archive.Len())
	pool = append(pool, batch...)
	pool = append(pool, archive.items...)
	return Scores(DistanceMatrix(batch, pool), k)
}
