// Package field serves attraction vectors and road membership from a field
// file built by package grid. A Server is immutable after Open and is shared
// lock-free by every concurrent rollout.
package field

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"trajneat/internal/config"
	"trajneat/internal/grid"
	"trajneat/internal/model"
)

// ErrOutOfBounds is returned for any query outside the map extent.
var ErrOutOfBounds = errors.New("point outside map bounds")

type Mode int

const (
	MinDistance Mode = iota
	Potential
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "min_distance":
		return MinDistance, nil
	case "potential":
		return Potential, nil
	default:
		return 0, config.Errorf("unsupported attraction mode: %s", s)
	}
}

func (m Mode) String() string {
	if m == Potential {
		return "potential"
	}
	return "min_distance"
}

// NeighborOffsets lists the 8-connected moves in direction order.
var NeighborOffsets = [8][2]int{
	{-1, 1}, {0, 1}, {1, 1}, {1, 0},
	{1, -1}, {0, -1}, {-1, -1}, {-1, 0},
}

type Server struct {
	header     grid.Header
	layout     grid.Layout
	categories []string
	mode       Mode
	ranges     []grid.Range

	values []byte
	road   []byte
	apf    []byte
	coords []byte

	release func() error
}

// Open memory-maps a field file read-only.
func Open(path string, mode Mode) (*Server, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, config.Errorf("field file %s not present", path)
		}
		return nil, config.Errorf("open field file %s: %v", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() < grid.HeaderSize {
		return nil, config.Errorf("field file %s too short: %d bytes", path, info.Size())
	}
	data, release, err := mapFile(f, int(info.Size()))
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	s, err := FromBytes(data, mode)
	if err != nil {
		_ = release()
		return nil, err
	}
	s.release = release
	return s, nil
}

// FromBytes serves a field held in memory. data must not be modified while
// the server is in use.
func FromBytes(data []byte, mode Mode) (*Server, error) {
	h, err := grid.ReadHeader(data)
	if err != nil {
		return nil, err
	}
	layout, err := grid.NewLayout(int(h.Width), int(h.Height), int(h.Cols), int(h.Rows))
	if err != nil {
		return nil, err
	}
	block := func(b grid.Block) []byte {
		start := h.Offsets[b]
		return data[start : start+h.BlockSize(b)]
	}

	cats, err := readCategories(data[h.Offsets[grid.BlockCategories]:h.Offsets[grid.BlockValues]], int(h.Categories))
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	rawRanges := block(grid.BlockRanges)
	ranges := make([]grid.Range, h.Categories)
	for k := range ranges {
		off := k * 32
		ranges[k] = grid.Range{
			MinDistanceLo: math.Float64frombits(le.Uint64(rawRanges[off:])),
			MinDistanceHi: math.Float64frombits(le.Uint64(rawRanges[off+8:])),
			PotentialLo:   math.Float64frombits(le.Uint64(rawRanges[off+16:])),
			PotentialHi:   math.Float64frombits(le.Uint64(rawRanges[off+24:])),
		}
	}
	return &Server{
		header:     h,
		layout:     layout,
		categories: cats,
		mode:       mode,
		ranges:     ranges,
		values:     block(grid.BlockValues),
		road:       block(grid.BlockRoad),
		apf:        block(grid.BlockAPF),
		coords:     block(grid.BlockCoords),
		release:    func() error { return nil },
	}, nil
}

func readCategories(data []byte, n int) ([]string, error) {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if len(data) < 2 {
			return nil, config.Errorf("field file category table truncated")
		}
		size := int(binary.LittleEndian.Uint16(data))
		data = data[2:]
		if len(data) < size {
			return nil, config.Errorf("field file category table truncated")
		}
		out = append(out, string(data[:size]))
		data = data[size:]
	}
	return out, nil
}

// Close releases the mapping. The server must not be used afterwards.
func (s *Server) Close() error {
	if s == nil || s.release == nil {
		return nil
	}
	release := s.release
	s.release = nil
	return release()
}

func (s *Server) Width() int           { return s.layout.Width }
func (s *Server) Height() int          { return s.layout.Height }
func (s *Server) Layout() grid.Layout  { return s.layout }
func (s *Server) Mode() Mode           { return s.mode }
func (s *Server) NumCategories() int   { return len(s.categories) }
func (s *Server) Categories() []string { return append([]string(nil), s.categories...) }
func (s *Server) Ranges() []grid.Range { return append([]grid.Range(nil), s.ranges...) }

func (s *Server) InBounds(p model.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < s.layout.Width && p.Y < s.layout.Height
}

func (s *Server) coordIndex(p model.Point) (int, error) {
	if !s.InBounds(p) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfBounds, p)
	}
	return s.layout.CoordIndex(p.X, p.Y), nil
}

// CellFor is an O(1) lookup in the dense coordinate table.
func (s *Server) CellFor(p model.Point) (grid.CellID, error) {
	i, err := s.coordIndex(p)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(s.coords[4*i:]), nil
}

// AttractionVector returns the precomputed per-category value of p's cell.
func (s *Server) AttractionVector(p model.Point) ([]float64, error) {
	out := make([]float64, len(s.categories))
	if err := s.AttractionInto(p, out); err != nil {
		return nil, err
	}
	return out, nil
}

// AttractionInto writes the attraction vector of p into dst, which must hold
// NumCategories values.
func (s *Server) AttractionInto(p model.Point, dst []float64) error {
	cell, err := s.CellFor(p)
	if err != nil {
		return err
	}
	k := len(s.categories)
	if len(dst) < k {
		panic(fmt.Sprintf("field: attraction buffer holds %d values, need %d", len(dst), k))
	}
	base := int(cell) * k * 16
	if s.mode == Potential {
		base += 8
	}
	for i := 0; i < k; i++ {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(s.values[base+16*i:]))
	}
	return nil
}

// NormalizedAttraction writes the attraction vector of p remapped into
// [-1, 1] with the per-category ranges recorded at build time.
func (s *Server) NormalizedAttraction(p model.Point, dst []float64) error {
	if err := s.AttractionInto(p, dst); err != nil {
		return err
	}
	for k, r := range s.ranges {
		lo, hi := r.MinDistanceLo, r.MinDistanceHi
		if s.mode == Potential {
			lo, hi = r.PotentialLo, r.PotentialHi
		}
		dst[k] = unitScale(dst[k], lo, hi)
	}
	return nil
}

func unitScale(v, lo, hi float64) float64 {
	if hi <= lo {
		return -1
	}
	v = math.Max(lo, math.Min(hi, v))
	return -1 + 2*(v-lo)/(hi-lo)
}

// Neighbors returns the in-bounds 8-connected neighbours of p in direction
// order.
func (s *Server) Neighbors(p model.Point) []model.Point {
	out := make([]model.Point, 0, len(NeighborOffsets))
	for _, d := range NeighborOffsets {
		n := p.Add(d[0], d[1])
		if s.InBounds(n) {
			out = append(out, n)
		}
	}
	return out
}

// NeighborsOnRoad filters Neighbors to points whose road bit is set.
func (s *Server) NeighborsOnRoad(p model.Point) ([]model.Point, error) {
	if !s.InBounds(p) {
		return nil, fmt.Errorf("%w: %s", ErrOutOfBounds, p)
	}
	out := make([]model.Point, 0, len(NeighborOffsets))
	for _, n := range s.Neighbors(p) {
		if s.IsOnRoad(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// IsOnRoad is false for points outside the map.
func (s *Server) IsOnRoad(p model.Point) bool {
	i, err := s.coordIndex(p)
	if err != nil {
		return false
	}
	return s.road[i/8]&(1<<(uint(i)%8)) != 0
}

// Quality returns the raw road-quality value at p.
func (s *Server) Quality(p model.Point) (uint8, error) {
	i, err := s.coordIndex(p)
	if err != nil {
		return 0, err
	}
	return s.apf[i], nil
}
