package fitness

import (
	"github.com/paulmach/orb"

	"trajneat/internal/config"
	"trajneat/internal/landscape"
)

const (
	// MaxFitness is the best score of one surface.
	MaxFitness = 200.0

	rawFloor      = -150.0
	penaltyFloor  = -300.0
	centroidFloor = -5000.0
	centroidMin   = 100.0
)

// Pair selects one of the three combined surfaces.
type Pair int

const (
	CurlinessLength Pair = iota
	CurlinessFurther
	FurtherLength
	numPairs
)

var pairSurfaces = [numPairs]string{
	CurlinessLength:  landscape.CurlinessLength,
	CurlinessFurther: landscape.CurlinessFurtherDistance,
	FurtherLength:    landscape.FurtherDistanceLength,
}

// Combiner scores metrics against the three landscape surfaces.
type Combiner struct {
	surfaces      [numPairs]*landscape.Surface
	pointDistance [numPairs]bool
	maxFitness    float64
}

// NewCombiner builds a combiner. pointDistance lists the pairs (0, 1 or 2)
// that score their inner zone by distance to the surface centroid.
func NewCombiner(bundle *landscape.Bundle, pointDistance []int, maxFitness float64) (*Combiner, error) {
	if maxFitness <= 0 {
		maxFitness = MaxFitness
	}
	c := &Combiner{maxFitness: maxFitness}
	for i, name := range pairSurfaces {
		s, ok := bundle.Surface(name)
		if !ok {
			return nil, config.Errorf("landscape is missing surface %s", name)
		}
		c.surfaces[i] = s
	}
	for _, idx := range pointDistance {
		if idx < 0 || idx >= int(numPairs) {
			return nil, config.Errorf("point_distance selector must be within [0, 2], got %d", idx)
		}
		c.pointDistance[idx] = true
	}
	return c, nil
}

func (c *Combiner) MaxFitness() float64 { return c.maxFitness }

// MaxTotal is the best scalar a trajectory can reach.
func (c *Combiner) MaxTotal() float64 { return float64(numPairs) * c.maxFitness }

// Score returns the scalar fitness and its three components in Pair order.
func (c *Combiner) Score(m Metrics) (float64, [3]float64) {
	points := [numPairs]orb.Point{
		CurlinessLength:  {m.Curliness * 100, m.Length},
		CurlinessFurther: {m.Curliness * 100, m.FurtherDistance},
		FurtherLength:    {m.FurtherDistance, m.Length},
	}
	var parts [3]float64
	var total float64
	for i := range points {
		parts[i] = c.scorePair(Pair(i), points[i])
		total += parts[i]
	}
	return total, parts
}

func (c *Combiner) scorePair(pair Pair, p orb.Point) float64 {
	s := c.surfaces[pair]
	raw := s.Raw(p)
	if !c.pointDistance[pair] {
		return Convert(rawFloor, 0, penaltyFloor, c.maxFitness, raw)
	}
	if raw == 0 {
		return Convert(centroidFloor, 0, centroidMin, c.maxFitness, -s.CentroidDistance(p))
	}
	return Convert(rawFloor, 0, penaltyFloor, centroidMin, raw)
}
