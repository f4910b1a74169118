package grid

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"trajneat/internal/config"
)

// MinDistance floors every distance so coincident points do not blow up the
// inverse-square potential.
const MinDistance = 1.0

// Georef maps map-grid units onto geographic positions: x runs along
// latitude, y along longitude.
type Georef struct {
	OriginLat float64
	OriginLon float64
	LatStep   float64
	LonStep   float64
}

func GeorefFromConfig(m config.MapConfig) Georef {
	return Georef{OriginLat: m.OriginLat, OriginLon: m.OriginLon, LatStep: m.LatStep, LonStep: m.LonStep}
}

func (g Georef) Position(x, y float64) orb.Point {
	return orb.Point{g.OriginLon + y*g.LonStep, g.OriginLat + x*g.LatStep}
}

// Distance is the great-circle distance in metres, floored at MinDistance.
func (g Georef) Distance(a, b orb.Point) float64 {
	d := geo.DistanceHaversine(a, b)
	if d < MinDistance {
		return MinDistance
	}
	return d
}
