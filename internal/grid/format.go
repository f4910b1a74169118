package grid

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"trajneat/internal/config"
)

// Index is the fully built attraction field, ready to be serialized.
type Index struct {
	Layout     Layout
	Categories []string

	// Values is cell-major: Values[cell*len(Categories)+k].
	Values []Aggregate
	Ranges []Range
	APF    []byte
	OnRoad uint8
}

// At returns the aggregate of category k at cell id.
func (idx *Index) At(id CellID, k int) Aggregate {
	return idx.Values[int(id)*len(idx.Categories)+k]
}

const (
	Magic         = "TRJFIELD"
	FormatVersion = 1
	HeaderSize    = 96
)

// Block identifies one flat section of the field file.
type Block int

const (
	BlockCategories Block = iota
	BlockValues
	BlockRanges
	BlockRoad
	BlockAPF
	BlockCoords
	BlockEnd
	numOffsets
)

// Header is the fixed-size preamble of a field file. Offsets are absolute
// byte positions; every multi-byte value is little-endian.
type Header struct {
	Version    uint32
	Width      uint32
	Height     uint32
	Cols       uint32
	Rows       uint32
	Categories uint32
	Offsets    [numOffsets]uint64
}

// BlockSize returns the expected byte size of a block for this header.
func (h Header) BlockSize(b Block) uint64 {
	cells := uint64(h.Cols) * uint64(h.Rows)
	coords := uint64(h.Width) * uint64(h.Height)
	cats := uint64(h.Categories)
	switch b {
	case BlockValues:
		return cells * cats * 16
	case BlockRanges:
		return cats * 32
	case BlockRoad:
		return (coords + 7) / 8
	case BlockAPF:
		return coords
	case BlockCoords:
		return coords * 4
	default:
		return 0
	}
}

// ReadHeader parses and validates the preamble of a field file.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, config.Errorf("field file too short: %d bytes", len(data))
	}
	if string(data[:8]) != Magic {
		return Header{}, config.Errorf("field file has bad magic %q", data[:8])
	}
	le := binary.LittleEndian
	h := Header{
		Version:    le.Uint32(data[8:]),
		Width:      le.Uint32(data[12:]),
		Height:     le.Uint32(data[16:]),
		Cols:       le.Uint32(data[20:]),
		Rows:       le.Uint32(data[24:]),
		Categories: le.Uint32(data[28:]),
	}
	for i := range h.Offsets {
		h.Offsets[i] = le.Uint64(data[40+8*i:])
	}
	if h.Version != FormatVersion {
		return Header{}, config.Errorf("field file version %d, want %d", h.Version, FormatVersion)
	}
	if h.Width == 0 || h.Height == 0 || h.Cols == 0 || h.Rows == 0 {
		return Header{}, config.Errorf("field file has empty dimensions")
	}
	if h.Offsets[BlockEnd] != uint64(len(data)) {
		return Header{}, config.Errorf("field file size %d does not match header %d", len(data), h.Offsets[BlockEnd])
	}
	if h.Offsets[BlockCategories] != HeaderSize {
		return Header{}, config.Errorf("field file category block at %d, want %d", h.Offsets[BlockCategories], HeaderSize)
	}
	for b := BlockValues; b < BlockEnd; b++ {
		start, next := h.Offsets[b], h.Offsets[b+1]
		if start < h.Offsets[b-1] || next < start || next-start < h.BlockSize(b) {
			return Header{}, config.Errorf("field file block %d is malformed", b)
		}
	}
	return h, nil
}

func align8(n uint64) uint64 { return (n + 7) &^ 7 }

func (idx *Index) header() Header {
	coords := uint64(idx.Layout.NumCoords())
	h := Header{
		Version:    FormatVersion,
		Width:      uint32(idx.Layout.Width),
		Height:     uint32(idx.Layout.Height),
		Cols:       uint32(idx.Layout.Cols),
		Rows:       uint32(idx.Layout.Rows),
		Categories: uint32(len(idx.Categories)),
	}
	catBytes := uint64(0)
	for _, name := range idx.Categories {
		catBytes += 2 + uint64(len(name))
	}
	off := uint64(HeaderSize)
	h.Offsets[BlockCategories] = off
	off = align8(off + catBytes)
	h.Offsets[BlockValues] = off
	off += h.BlockSize(BlockValues)
	h.Offsets[BlockRanges] = off
	off += h.BlockSize(BlockRanges)
	h.Offsets[BlockRoad] = off
	off = align8(off + (coords+7)/8)
	h.Offsets[BlockAPF] = off
	off = align8(off + coords)
	h.Offsets[BlockCoords] = off
	off += coords * 4
	h.Offsets[BlockEnd] = off
	return h
}

// Encode writes the flat field file. The coordinate table and the road
// bitmap are derived from the layout and APF surface while streaming.
func (idx *Index) Encode(w io.Writer) (int64, error) {
	if len(idx.APF) != idx.Layout.NumCoords() {
		return 0, fmt.Errorf("apf surface has %d values, want %d", len(idx.APF), idx.Layout.NumCoords())
	}
	if len(idx.Values) != idx.Layout.NumCells()*len(idx.Categories) || len(idx.Ranges) != len(idx.Categories) {
		return 0, fmt.Errorf("aggregate table does not match %d cells x %d categories", idx.Layout.NumCells(), len(idx.Categories))
	}
	for _, name := range idx.Categories {
		if len(name) > math.MaxUint16 {
			return 0, fmt.Errorf("category name too long: %d bytes", len(name))
		}
	}
	h := idx.header()
	buffered := bufio.NewWriterSize(w, 1<<20)
	bw := &countingWriter{w: buffered}
	le := binary.LittleEndian

	var pre [HeaderSize]byte
	copy(pre[:8], Magic)
	le.PutUint32(pre[8:], h.Version)
	le.PutUint32(pre[12:], h.Width)
	le.PutUint32(pre[16:], h.Height)
	le.PutUint32(pre[20:], h.Cols)
	le.PutUint32(pre[24:], h.Rows)
	le.PutUint32(pre[28:], h.Categories)
	for i, off := range h.Offsets {
		le.PutUint64(pre[40+8*i:], off)
	}
	bw.write(pre[:])

	for _, name := range idx.Categories {
		bw.write(le.AppendUint16(nil, uint16(len(name))))
		bw.write([]byte(name))
	}
	bw.pad(h.Offsets[BlockValues])

	buf := make([]byte, 0, 32)
	for _, agg := range idx.Values {
		buf = le.AppendUint64(buf[:0], math.Float64bits(agg.MinDistance))
		buf = le.AppendUint64(buf, math.Float64bits(agg.Potential))
		bw.write(buf)
	}
	for _, r := range idx.Ranges {
		buf = le.AppendUint64(buf[:0], math.Float64bits(r.MinDistanceLo))
		buf = le.AppendUint64(buf, math.Float64bits(r.MinDistanceHi))
		buf = le.AppendUint64(buf, math.Float64bits(r.PotentialLo))
		buf = le.AppendUint64(buf, math.Float64bits(r.PotentialHi))
		bw.write(buf)
	}

	road := make([]byte, h.BlockSize(BlockRoad))
	for i, q := range idx.APF {
		if q >= idx.OnRoad {
			road[i/8] |= 1 << (uint(i) % 8)
		}
	}
	bw.write(road)
	bw.pad(h.Offsets[BlockAPF])
	bw.write(idx.APF)
	bw.pad(h.Offsets[BlockCoords])

	l := idx.Layout
	rowCells := make([]uint32, l.Height)
	for y := 0; y < l.Height; y++ {
		rowCells[y] = uint32(l.row(float64(y)) * l.Cols)
	}
	line := make([]byte, 0, 4*l.Height)
	for x := 0; x < l.Width; x++ {
		col := uint32(l.col(float64(x)))
		line = line[:0]
		for y := 0; y < l.Height; y++ {
			line = le.AppendUint32(line, rowCells[y]+col)
		}
		bw.write(line)
	}

	if bw.err == nil {
		bw.err = buffered.Flush()
	}
	if bw.err != nil {
		return bw.n, fmt.Errorf("encode field: %w", bw.err)
	}
	if uint64(bw.n) != h.Offsets[BlockEnd] {
		return bw.n, fmt.Errorf("encode field: wrote %d bytes, header says %d", bw.n, h.Offsets[BlockEnd])
	}
	return bw.n, nil
}

// WriteFile publishes the index atomically: the file only appears at path
// once it is complete.
func (idx *Index) WriteFile(path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var n int64
	err := writeAtomic(path, func(f *os.File) error {
		var err error
		n, err = idx.Encode(f)
		return err
	})
	if err != nil {
		return err
	}
	logger.Info("field file written", "path", path, "size", humanize.Bytes(uint64(n)), "layout", idx.Layout.String())
	return nil
}

func writeAtomic(path string, fill func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) write(p []byte) {
	if c.err != nil {
		return
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
}

func (c *countingWriter) pad(to uint64) {
	if gap := int64(to) - c.n; gap > 0 {
		c.write(make([]byte, gap))
	}
}
