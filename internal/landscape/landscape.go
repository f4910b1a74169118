// Package landscape loads the polygonal fitness surfaces a trajectory's
// metrics are scored against.
package landscape

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"trajneat/internal/config"
)

// Surface names. The first three are combined into the scalar fitness; the
// rest are kept for analysis.
const (
	CurlinessLength            = "curliness_length"
	CurlinessFurtherDistance   = "curliness_further_distance"
	FurtherDistanceLength      = "further_distance_length"
	DistanceEndLength          = "distance_end_length"
	DistanceEndFurtherDistance = "distance_end_further_distance"
	CurlinessDistanceEnd       = "curliness_distance_end"
	CurlinessMiddleDistance    = "curliness_middle_distance"
	FurtherDistanceMiddle      = "further_distance_middle_distance"
	DistanceEndMiddleDistance  = "distance_end_middle_distance"
	LengthMiddleDistance       = "length_middle_distance"
)

// Required lists the surfaces every bundle must carry.
var Required = []string{CurlinessLength, CurlinessFurtherDistance, FurtherDistanceLength}

// Names lists every known surface in bundle order.
var Names = []string{
	CurlinessLength,
	CurlinessFurtherDistance,
	FurtherDistanceLength,
	DistanceEndLength,
	DistanceEndFurtherDistance,
	CurlinessDistanceEnd,
	CurlinessMiddleDistance,
	FurtherDistanceMiddle,
	DistanceEndMiddleDistance,
	LengthMiddleDistance,
}

// Surface is an inner zone of zero penalty inside an outer boundary, plus a
// centroid polygon used by the centroid-distance score.
type Surface struct {
	Name     string
	Outer    orb.Polygon
	Inner    orb.Polygon
	Centroid orb.Polygon

	center orb.Point
}

func NewSurface(name string, outer, inner, centroid [][2]float64) (*Surface, error) {
	o, err := ring(outer)
	if err != nil {
		return nil, config.Errorf("surface %s outer: %v", name, err)
	}
	in, err := ring(inner)
	if err != nil {
		return nil, config.Errorf("surface %s inner: %v", name, err)
	}
	s := &Surface{Name: name, Outer: orb.Polygon{o}, Inner: orb.Polygon{in}}
	if len(centroid) > 0 {
		c, err := ring(centroid)
		if err != nil {
			return nil, config.Errorf("surface %s centroid: %v", name, err)
		}
		s.Centroid = orb.Polygon{c}
	} else {
		s.Centroid = s.Inner
	}
	s.center, _ = planar.CentroidArea(s.Centroid)
	return s, nil
}

func ring(points [][2]float64) (orb.Ring, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("need at least 3 points, got %d", len(points))
	}
	r := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return nil, errors.New("non-finite coordinate")
		}
		r = append(r, orb.Point{p[0], p[1]})
	}
	if !r.Closed() {
		r = append(r, r[0])
	}
	return r, nil
}

// Raw is 0 inside the inner zone, the distance to the inner boundary between
// the two boundaries, and minus the distance to the outer boundary outside.
func (s *Surface) Raw(p orb.Point) float64 {
	if planar.PolygonContains(s.Inner, p) {
		return 0
	}
	if planar.PolygonContains(s.Outer, p) {
		return boundaryDistance(s.Inner, p)
	}
	return -boundaryDistance(s.Outer, p)
}

// CentroidDistance is the Euclidean distance from p to the centroid of the
// centroid polygon.
func (s *Surface) CentroidDistance(p orb.Point) float64 {
	return planar.Distance(s.center, p)
}

func (s *Surface) Center() orb.Point { return s.center }

func boundaryDistance(poly orb.Polygon, p orb.Point) float64 {
	best := math.Inf(1)
	for _, r := range poly {
		if d := planar.DistanceFrom(orb.LineString(r), p); d < best {
			best = d
		}
	}
	return best
}

// Bundle is the immutable set of surfaces loaded for a run.
type Bundle struct {
	surfaces map[string]*Surface
	order    []string
}

func (b *Bundle) Surface(name string) (*Surface, bool) {
	s, ok := b.surfaces[name]
	return s, ok
}

// MustSurface panics on unknown names; bundles are validated on load.
func (b *Bundle) MustSurface(name string) *Surface {
	s, ok := b.surfaces[name]
	if !ok {
		panic("landscape: unknown surface " + name)
	}
	return s
}

func (b *Bundle) Names() []string { return append([]string(nil), b.order...) }

// File is the JSON artifact layout.
type File struct {
	Surfaces []SurfaceSpec `json:"surfaces"`
}

type SurfaceSpec struct {
	Name     string       `json:"name"`
	Outer    [][2]float64 `json:"outer"`
	Inner    [][2]float64 `json:"inner"`
	Centroid [][2]float64 `json:"centroid,omitempty"`
}

func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, config.Errorf("landscape file %s not present", path)
		}
		return nil, config.Errorf("open landscape %s: %v", path, err)
	}
	defer f.Close()
	b, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

func Parse(r io.Reader) (*Bundle, error) {
	var file File
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, config.Errorf("decode landscape: %v", err)
	}
	return file.Bundle()
}

// Bundle validates the artifact and builds the surfaces.
func (f File) Bundle() (*Bundle, error) {
	b := &Bundle{surfaces: make(map[string]*Surface, len(f.Surfaces))}
	for _, spec := range f.Surfaces {
		if spec.Name == "" {
			return nil, config.Errorf("landscape surface without a name")
		}
		if _, dup := b.surfaces[spec.Name]; dup {
			return nil, config.Errorf("duplicate landscape surface %s", spec.Name)
		}
		s, err := NewSurface(spec.Name, spec.Outer, spec.Inner, spec.Centroid)
		if err != nil {
			return nil, err
		}
		b.surfaces[spec.Name] = s
		b.order = append(b.order, spec.Name)
	}
	for _, name := range Required {
		if _, ok := b.surfaces[name]; !ok {
			return nil, config.Errorf("landscape is missing surface %s", name)
		}
	}
	return b, nil
}

// Write stores the artifact as indented JSON.
func (f File) Write(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode landscape: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write landscape %s: %w", path, err)
	}
	return nil
}
