package grid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"

	"trajneat/internal/config"
	"trajneat/internal/poi"
)

// Aggregate is the precomputed attraction of one category at one cell.
type Aggregate struct {
	MinDistance float64
	Potential   float64
}

// Range is the per-category spread of finite aggregates across all cells.
type Range struct {
	MinDistanceLo float64
	MinDistanceHi float64
	PotentialLo   float64
	PotentialHi   float64
}

// PartitionStats reports how the POIs landed in the grid.
type PartitionStats struct {
	Assigned int
	Dropped  int
}

// Builder partitions POIs into cells and precomputes the attraction index.
// It runs once, before any evaluation worker starts.
type Builder struct {
	layout     Layout
	georef     Georef
	categories []string
	workers    int
	logger     *slog.Logger

	// positions[k][cell] holds the geographic position of every POI of
	// category k that falls inside cell.
	positions [][][]orb.Point
	centroids []orb.Point
}

func NewBuilder(cfg config.Config, logger *slog.Logger) (*Builder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	layout, err := NewLayout(cfg.Map.Width, cfg.Map.Height, cfg.Grid.XDivision, cfg.Grid.YDivision)
	if err != nil {
		return nil, err
	}
	workers := cfg.Grid.Workers
	if workers <= 0 {
		workers = 1
	}
	b := &Builder{
		layout:  layout,
		georef:  GeorefFromConfig(cfg.Map),
		workers: workers,
		logger:  logger,
	}
	b.centroids = make([]orb.Point, layout.NumCells())
	for id := range b.centroids {
		x, y := layout.Centroid(CellID(id))
		b.centroids[id] = b.georef.Position(x, y)
	}
	return b, nil
}

func (b *Builder) Layout() Layout { return b.layout }

// Partition assigns each POI to the single cell whose half-open bounds
// contain it. POIs outside the map are dropped.
func (b *Builder) Partition(table poi.Table) PartitionStats {
	var stats PartitionStats
	b.categories = make([]string, table.Len())
	b.positions = make([][][]orb.Point, table.Len())
	for k, cat := range table.Categories {
		b.categories[k] = cat.Name
		cells := make([][]orb.Point, b.layout.NumCells())
		for _, p := range table.POIs[k] {
			id, ok := b.layout.CellOf(p.X, p.Y)
			if !ok {
				stats.Dropped++
				continue
			}
			cells[id] = append(cells[id], b.georef.Position(p.X, p.Y))
			stats.Assigned++
		}
		b.positions[k] = cells
	}
	b.logger.Info("pois partitioned", "cells", b.layout.NumCells(), "assigned", stats.Assigned, "dropped", stats.Dropped)
	return stats
}

// CellCount returns the number of POIs of category k assigned to cell id.
func (b *Builder) CellCount(k int, id CellID) int {
	return len(b.positions[k][id])
}

// Precompute fills the aggregate table. Self and the 8-neighbourhood
// contribute exactly per POI; every other non-empty cell contributes through
// its centroid as one charge weighted by its POI count. The index is returned
// only once every cell is done.
func (b *Builder) Precompute(ctx context.Context) (*Index, error) {
	if b.positions == nil {
		return nil, fmt.Errorf("precompute before partition")
	}
	start := time.Now()
	numCells := b.layout.NumCells()
	numCats := len(b.categories)
	values := make([]Aggregate, numCells*numCats)

	p := pool.New().WithMaxGoroutines(b.workers).WithContext(ctx).WithCancelOnError()
	for row := 0; row < b.layout.Rows; row++ {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for col := 0; col < b.layout.Cols; col++ {
				id := CellID(row*b.layout.Cols + col)
				b.computeCell(id, values[int(id)*numCats:int(id+1)*numCats])
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("precompute cells: %w", err)
	}

	idx := &Index{
		Layout:     b.layout,
		Categories: append([]string(nil), b.categories...),
		Values:     values,
		Ranges:     computeRanges(values, numCats),
	}
	b.logger.Info("attraction field precomputed",
		"cells", numCells,
		"categories", numCats,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return idx, nil
}

func (b *Builder) computeCell(id CellID, out []Aggregate) {
	ref := b.centroids[id]
	for k := range out {
		out[k] = Aggregate{MinDistance: math.MaxFloat64}
	}

	near := b.layout.Neighborhood(id)
	isNear := make(map[CellID]struct{}, len(near))
	for _, n := range near {
		isNear[n] = struct{}{}
		for k := range out {
			for _, pos := range b.positions[k][n] {
				d := b.georef.Distance(ref, pos)
				out[k].Potential += 1 / (d * d)
				if d < out[k].MinDistance {
					out[k].MinDistance = d
				}
			}
		}
	}

	for other := range b.centroids {
		if _, ok := isNear[CellID(other)]; ok {
			continue
		}
		d := -1.0
		for k := range out {
			count := len(b.positions[k][other])
			if count == 0 {
				continue
			}
			if d < 0 {
				d = b.georef.Distance(ref, b.centroids[other])
			}
			out[k].Potential += float64(count) / (d * d)
			if d < out[k].MinDistance {
				out[k].MinDistance = d
			}
		}
	}
}

func computeRanges(values []Aggregate, numCats int) []Range {
	ranges := make([]Range, numCats)
	if numCats == 0 {
		return ranges
	}
	numCells := len(values) / numCats
	for k := 0; k < numCats; k++ {
		mins := make([]float64, 0, numCells)
		pots := make([]float64, 0, numCells)
		for c := 0; c < numCells; c++ {
			agg := values[c*numCats+k]
			if agg.MinDistance != math.MaxFloat64 {
				mins = append(mins, agg.MinDistance)
			}
			pots = append(pots, agg.Potential)
		}
		if len(mins) > 0 {
			ranges[k].MinDistanceLo = floats.Min(mins)
			ranges[k].MinDistanceHi = floats.Max(mins)
		}
		if len(pots) > 0 {
			ranges[k].PotentialLo = floats.Min(pots)
			ranges[k].PotentialHi = floats.Max(pots)
		}
	}
	return ranges
}

// Build runs the whole offline pipeline: load POIs, partition, precompute
// and attach the road-quality surface.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table, err := poi.Load(cfg, logger)
	if err != nil {
		return nil, err
	}
	b, err := NewBuilder(cfg, logger)
	if err != nil {
		return nil, err
	}
	apf, err := LoadAPF(cfg.APFPath(), b.Layout())
	if err != nil {
		return nil, err
	}
	b.Partition(table)
	idx, err := b.Precompute(ctx)
	if err != nil {
		return nil, err
	}
	idx.APF = apf
	idx.OnRoad = cfg.Map.OnRoad
	return idx, nil
}
