// Package grid builds the cell index and per-cell attraction aggregates that
// the field server memory-maps at simulation time.
package grid

import (
	"fmt"

	"trajneat/internal/config"
)

// CellID is the row-major index of a cell: row*cols + col.
type CellID = uint32

// Layout divides a width x height map into cols x rows cells. Cell bounds are
// half-open; the last column and row absorb the division remainder so every
// coordinate belongs to exactly one cell.
type Layout struct {
	Width  int
	Height int
	Cols   int
	Rows   int
	cellW  int
	cellH  int
}

func NewLayout(width, height, xDivision, yDivision int) (Layout, error) {
	if width <= 0 || height <= 0 {
		return Layout{}, config.Errorf("map dimensions must be > 0, got %dx%d", width, height)
	}
	if xDivision <= 0 || yDivision <= 0 || xDivision > width || yDivision > height {
		return Layout{}, config.Errorf("invalid divisions %dx%d for map %dx%d", xDivision, yDivision, width, height)
	}
	return Layout{
		Width:  width,
		Height: height,
		Cols:   xDivision,
		Rows:   yDivision,
		cellW:  width / xDivision,
		cellH:  height / yDivision,
	}, nil
}

func (l Layout) NumCells() int { return l.Cols * l.Rows }

func (l Layout) NumCoords() int { return l.Width * l.Height }

// Contains reports whether (x, y) lies inside [0, width) x [0, height).
func (l Layout) Contains(x, y float64) bool {
	return x >= 0 && y >= 0 && x < float64(l.Width) && y < float64(l.Height)
}

func (l Layout) col(x float64) int {
	c := int(x) / l.cellW
	if c >= l.Cols {
		c = l.Cols - 1
	}
	return c
}

func (l Layout) row(y float64) int {
	r := int(y) / l.cellH
	if r >= l.Rows {
		r = l.Rows - 1
	}
	return r
}

// CellOf returns the cell containing (x, y), or false outside the map.
func (l Layout) CellOf(x, y float64) (CellID, bool) {
	if !l.Contains(x, y) {
		return 0, false
	}
	return CellID(l.row(y)*l.Cols + l.col(x)), true
}

func (l Layout) RowCol(id CellID) (row, col int) {
	return int(id) / l.Cols, int(id) % l.Cols
}

// Bounds returns the half-open extent [minX, maxX) x [minY, maxY) of a cell.
func (l Layout) Bounds(id CellID) (minX, minY, maxX, maxY int) {
	row, col := l.RowCol(id)
	minX = col * l.cellW
	maxX = minX + l.cellW
	if col == l.Cols-1 {
		maxX = l.Width
	}
	minY = row * l.cellH
	maxY = minY + l.cellH
	if row == l.Rows-1 {
		maxY = l.Height
	}
	return minX, minY, maxX, maxY
}

// Centroid is the reference point of a cell in map-grid units.
func (l Layout) Centroid(id CellID) (x, y float64) {
	minX, minY, maxX, maxY := l.Bounds(id)
	return float64(minX+maxX) / 2, float64(minY+maxY) / 2
}

// Neighborhood returns the cell itself followed by its 8-connected
// neighbours, clipped at the grid edge.
func (l Layout) Neighborhood(id CellID) []CellID {
	row, col := l.RowCol(id)
	out := make([]CellID, 0, 9)
	out = append(out, id)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			r, c := row+dr, col+dc
			if r < 0 || c < 0 || r >= l.Rows || c >= l.Cols {
				continue
			}
			out = append(out, CellID(r*l.Cols+c))
		}
	}
	return out
}

// CoordIndex is the offset of an integer coordinate in the dense
// per-coordinate blocks (x-major).
func (l Layout) CoordIndex(x, y int) int {
	return x*l.Height + y
}

func (l Layout) String() string {
	return fmt.Sprintf("%dx%d map, %dx%d cells", l.Width, l.Height, l.Cols, l.Rows)
}
