package landscape

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"trajneat/internal/config"
)

func square(min, max float64) [][2]float64 {
	return [][2]float64{{min, min}, {max, min}, {max, max}, {min, max}}
}

func testFile() File {
	var f File
	for _, name := range Required {
		f.Surfaces = append(f.Surfaces, SurfaceSpec{Name: name, Outer: square(0, 100), Inner: square(40, 60)})
	}
	return f
}

func TestRawZones(t *testing.T) {
	s, err := NewSurface("s", square(0, 100), square(40, 60), nil)
	if err != nil {
		t.Fatalf("surface: %v", err)
	}
	tests := []struct {
		name string
		p    orb.Point
		want float64
	}{
		{name: "inner", p: orb.Point{50, 50}, want: 0},
		{name: "between", p: orb.Point{30, 50}, want: 10},
		{name: "outside", p: orb.Point{110, 50}, want: -10},
		{name: "outside-corner", p: orb.Point{103, 104}, want: -5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Raw(tc.p); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("raw: got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestRawIsContinuousAtBoundaries(t *testing.T) {
	s, err := NewSurface("s", square(0, 100), square(40, 60), nil)
	if err != nil {
		t.Fatalf("surface: %v", err)
	}
	const eps = 1e-7
	if in, out := s.Raw(orb.Point{40 + eps, 50}), s.Raw(orb.Point{40 - eps, 50}); math.Abs(in-out) > 1e-6 {
		t.Fatalf("inner boundary: inside=%v outside=%v", in, out)
	}
	if on := s.Raw(orb.Point{40, 50}); on != 0 {
		t.Fatalf("point on inner boundary: got=%v want=0", on)
	}
	if on := s.Raw(orb.Point{100, 50}); math.Abs(on-40) > 1e-9 {
		t.Fatalf("point on outer boundary: got=%v want=40", on)
	}
	if out := s.Raw(orb.Point{100 + eps, 50}); math.Abs(out) > 1e-6 {
		t.Fatalf("just outside outer boundary: got=%v", out)
	}
}

func TestCentroidDistanceFallsBackToInner(t *testing.T) {
	s, err := NewSurface("s", square(0, 100), square(40, 60), nil)
	if err != nil {
		t.Fatalf("surface: %v", err)
	}
	if c := s.Center(); math.Abs(c[0]-50) > 1e-9 || math.Abs(c[1]-50) > 1e-9 {
		t.Fatalf("unexpected center: %v", c)
	}
	if d := s.CentroidDistance(orb.Point{53, 54}); math.Abs(d-5) > 1e-9 {
		t.Fatalf("centroid distance: got=%v want=5", d)
	}
	withCentroid, err := NewSurface("s", square(0, 100), square(40, 60), square(0, 10))
	if err != nil {
		t.Fatalf("surface: %v", err)
	}
	if d := withCentroid.CentroidDistance(orb.Point{5, 5}); d > 1e-9 {
		t.Fatalf("explicit centroid polygon: got=%v want=0", d)
	}
}

func TestParseValidatesBundle(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: "{"},
		{name: "unknown-field", body: `{"surfaces":[],"extra":1}`},
		{name: "missing-required", body: `{"surfaces":[{"name":"curliness_length","outer":[[0,0],[1,0],[1,1]],"inner":[[0,0],[1,0],[1,1]]}]}`},
		{name: "short-ring", body: `{"surfaces":[{"name":"curliness_length","outer":[[0,0],[1,0]],"inner":[[0,0],[1,0],[1,1]]}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tc.body)); !errors.Is(err, config.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "landscape.json")
	if err := testFile().Write(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := b.Names(); len(got) != 3 || got[0] != CurlinessLength {
		t.Fatalf("unexpected names: %v", got)
	}
	if b.MustSurface(FurtherDistanceLength).Raw(orb.Point{50, 50}) != 0 {
		t.Fatal("expected loaded surface to score the inner zone as 0")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
