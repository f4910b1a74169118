// Package synth generates small synthetic datasets: a road-quality surface,
// POI tables, start points and a landscape bundle. The output has the same
// layout as real data so the whole pipeline can run without map exports.
package synth

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	opensimplex "github.com/ojrac/opensimplex-go"

	"trajneat/internal/config"
	"trajneat/internal/grid"
	"trajneat/internal/landscape"
	"trajneat/internal/model"
	"trajneat/internal/rollout"
)

type Options struct {
	Seed            int64
	POIsPerCategory int
	StartPoints     int

	// RoadSpacing places a straight road every RoadSpacing coordinates along
	// both axes so the network is connected regardless of the noise.
	RoadSpacing int

	// RidgeWidth is the half-width of the noise ridge bands that become
	// secondary roads, in [0, 1].
	RidgeWidth float64
	Logger     *slog.Logger
}

func DefaultOptions(seed int64) Options {
	return Options{
		Seed:            seed,
		POIsPerCategory: 200,
		StartPoints:     50,
		RoadSpacing:     25,
		RidgeWidth:      0.06,
	}
}

type Summary struct {
	RoadCoords  int
	POIs        int
	StartPoints int
	APFBytes    int
}

// Generate writes every artifact cfg points at: the APF file, one CSV per
// category, the start point file and the landscape bundle.
func Generate(cfg config.Config, opts Options) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	if opts.POIsPerCategory <= 0 || opts.StartPoints <= 0 {
		return Summary{}, errors.New("synthetic poi and start point counts must be > 0")
	}
	if opts.RoadSpacing <= 0 {
		return Summary{}, errors.New("road spacing must be > 0")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return Summary{}, err
	}

	layout, err := grid.NewLayout(cfg.Map.Width, cfg.Map.Height, cfg.Grid.XDivision, cfg.Grid.YDivision)
	if err != nil {
		return Summary{}, err
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	apf, roads := roadSurface(layout, cfg.Rollout.QualityThreshold, opts)
	if err := grid.WriteAPF(cfg.APFPath(), apf); err != nil {
		return Summary{}, fmt.Errorf("write apf: %w", err)
	}

	summary := Summary{RoadCoords: roads, APFBytes: len(apf)}
	for i, name := range cfg.CategoryNames() {
		n, err := writeCategory(cfg.CategoryFile(name), cfg.Categories[i].Tags, layout, opts.POIsPerCategory, rng)
		if err != nil {
			return Summary{}, err
		}
		summary.POIs += n
	}

	starts := pickStarts(layout, apf, cfg.Rollout.QualityThreshold, opts.StartPoints, rng)
	if len(starts) == 0 {
		return Summary{}, fmt.Errorf("no road coordinate at or above quality %d", cfg.Rollout.QualityThreshold)
	}
	if err := writeStarts(cfg.StartPointsPath(), starts); err != nil {
		return Summary{}, err
	}
	summary.StartPoints = len(starts)

	if err := DefaultLandscape(cfg.Rollout.StepLimit).Write(cfg.LandscapePath()); err != nil {
		return Summary{}, err
	}

	logger.Info("synthetic dataset written",
		"data_dir", cfg.DataDir,
		"map", layout.String(),
		"roads", roads,
		"pois", summary.POIs,
		"starts", summary.StartPoints,
		"apf", humanize.Bytes(uint64(len(apf))),
	)
	return summary, nil
}

// roadSurface lays a lattice of straight roads and adds ridge bands of
// simplex noise as winding secondary roads. Off-road coordinates are 0.
func roadSurface(layout grid.Layout, threshold uint8, opts Options) ([]byte, int) {
	noise := opensimplex.NewNormalized(opts.Seed)
	quality := opensimplex.NewNormalized(opts.Seed + 1)
	floor := float64(threshold)
	if floor < 1 {
		floor = 1
	}

	apf := make([]byte, layout.NumCoords())
	roads := 0
	for x := 0; x < layout.Width; x++ {
		for y := 0; y < layout.Height; y++ {
			fx, fy := float64(x), float64(y)
			ridge := 1 - math.Abs(2*octaveNoise(noise, fx, fy, 3, 0.02, 0.5)-1)
			lattice := x%opts.RoadSpacing == opts.RoadSpacing/2 || y%opts.RoadSpacing == opts.RoadSpacing/2
			if !lattice && ridge < 1-opts.RidgeWidth {
				continue
			}
			q := quality.Eval2(fx*0.05, fy*0.05)
			apf[layout.CoordIndex(x, y)] = uint8(math.Round(floor + q*(255-floor)))
			roads++
		}
	}
	return apf, roads
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}

func writeCategory(path string, tags []string, layout grid.Layout, n int, rng *rand.Rand) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create category file %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"names", "x", "y"}); err != nil {
		_ = f.Close()
		return 0, err
	}
	for i := 0; i < n; i++ {
		tag := "others"
		if len(tags) > 0 {
			tag = tags[rng.Intn(len(tags))]
		}
		x := rng.Float64() * float64(layout.Width-1)
		y := rng.Float64() * float64(layout.Height-1)
		if err := w.Write([]string{tag, formatCoord(x), formatCoord(y)}); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return 0, err
	}
	return n, f.Close()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// pickStarts reservoir-samples n road coordinates at or above the quality
// threshold.
func pickStarts(layout grid.Layout, apf []byte, threshold uint8, n int, rng *rand.Rand) []model.Point {
	out := make([]model.Point, 0, n)
	seen := 0
	for x := 0; x < layout.Width; x++ {
		for y := 0; y < layout.Height; y++ {
			q := apf[layout.CoordIndex(x, y)]
			if q == 0 || q < threshold {
				continue
			}
			seen++
			p := model.Point{X: x, Y: y}
			if len(out) < n {
				out = append(out, p)
				continue
			}
			if j := rng.Intn(seen); j < n {
				out[j] = p
			}
		}
	}
	return out
}

func writeStarts(path string, points []model.Point) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create start points %s: %w", path, err)
	}
	if err := rollout.WriteStartPoints(f, points); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// DefaultLandscape returns rectangular surfaces sized for trajectories of up
// to stepLimit steps. Curliness axes are in the ×100 scale the combiner uses.
func DefaultLandscape(stepLimit int) landscape.File {
	l := float64(stepLimit)
	curly := func(name string, yLo, yHi, yMax float64) landscape.SurfaceSpec {
		return landscape.SurfaceSpec{
			Name:     name,
			Outer:    rect(0, 0, 150, yMax),
			Inner:    rect(30, yLo, 90, yHi),
			Centroid: rect(50, yLo+(yHi-yLo)/4, 70, yHi-(yHi-yLo)/4),
		}
	}
	plain := func(name string, xLo, xHi, xMax, yLo, yHi, yMax float64) landscape.SurfaceSpec {
		return landscape.SurfaceSpec{
			Name:  name,
			Outer: rect(0, 0, xMax, yMax),
			Inner: rect(xLo, yLo, xHi, yHi),
		}
	}
	return landscape.File{Surfaces: []landscape.SurfaceSpec{
		curly(landscape.CurlinessLength, 0.02*l, 0.2*l, l),
		curly(landscape.CurlinessFurtherDistance, 0.01*l, 0.1*l, l/2),
		{
			Name:     landscape.FurtherDistanceLength,
			Outer:    rect(0, 0, l/2, l),
			Inner:    rect(0.01*l, 0.02*l, 0.1*l, 0.2*l),
			Centroid: rect(0.03*l, 0.06*l, 0.07*l, 0.14*l),
		},
		plain(landscape.DistanceEndLength, 0.01*l, 0.1*l, l/2, 0.02*l, 0.2*l, l),
		plain(landscape.DistanceEndFurtherDistance, 0.01*l, 0.1*l, l/2, 0.01*l, 0.1*l, l/2),
		plain(landscape.CurlinessDistanceEnd, 30, 90, 150, 0.01*l, 0.1*l, l/2),
		plain(landscape.CurlinessMiddleDistance, 30, 90, 150, 0.005*l, 0.05*l, l/2),
		plain(landscape.FurtherDistanceMiddle, 0.01*l, 0.1*l, l/2, 0.005*l, 0.05*l, l/2),
		plain(landscape.DistanceEndMiddleDistance, 0.01*l, 0.1*l, l/2, 0.005*l, 0.05*l, l/2),
		plain(landscape.LengthMiddleDistance, 0.02*l, 0.2*l, l, 0.005*l, 0.05*l, l/2),
	}}
}

func rect(x0, y0, x1, y1 float64) [][2]float64 {
	return [][2]float64{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}
