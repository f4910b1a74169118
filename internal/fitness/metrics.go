package fitness

import (
	"math"

	"trajneat/internal/model"
)

// Metrics are the path measurements one trajectory is scored on.
type Metrics struct {
	Length           float64
	Curliness        float64
	FurtherDistance  float64
	DistanceToMiddle float64
	DistanceToEnd    float64
}

// Measure computes the metrics of a trajectory. steps is the number of policy
// steps the rollout took.
func Measure(points []model.Point, steps int) Metrics {
	m := Metrics{Length: float64(steps), Curliness: Curliness(points)}
	if len(points) == 0 {
		return m
	}
	start := points[0]
	for _, p := range points[1:max(1, len(points)-1)] {
		m.FurtherDistance = math.Max(m.FurtherDistance, manhattan(start, p))
	}
	m.DistanceToMiddle = manhattan(start, points[len(points)/2])
	m.DistanceToEnd = manhattan(start, points[len(points)-1])
	return m
}

// Behavior is the novelty descriptor of the metrics.
func (m Metrics) Behavior() model.Behavior {
	return model.Behavior{m.Length, m.Curliness, m.FurtherDistance, m.DistanceToMiddle, m.DistanceToEnd}
}

// Curliness is the mean Euclidean distance between consecutive one-hot move
// vectors: sqrt(2) for every change of direction, 0 otherwise.
func Curliness(points []model.Point) float64 {
	if len(points) < 3 {
		return 0
	}
	var sum float64
	for i := 2; i < len(points); i++ {
		prev := [2]int{points[i-1].X - points[i-2].X, points[i-1].Y - points[i-2].Y}
		cur := [2]int{points[i].X - points[i-1].X, points[i].Y - points[i-1].Y}
		if prev != cur {
			sum += math.Sqrt2
		}
	}
	return sum / float64(len(points)-2)
}

func manhattan(a, b model.Point) float64 {
	return math.Abs(float64(a.X-b.X)) + math.Abs(float64(a.Y-b.Y))
}
