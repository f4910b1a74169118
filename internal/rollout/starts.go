package rollout

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"trajneat/internal/config"
	"trajneat/internal/model"
)

// LoadStartPoints reads a start point file: a CSV with an "x,y" header, or
// one "x-y" key per line.
func LoadStartPoints(path string) ([]model.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, config.Errorf("start points file %s not found", path)
		}
		return nil, err
	}
	defer f.Close()

	points, err := ReadStartPoints(f)
	if err != nil {
		return nil, config.Errorf("start points %s: %v", path, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: start points %s: %w", config.ErrConfiguration, path, ErrNoStartPoints)
	}
	return points, nil
}

func ReadStartPoints(r io.Reader) ([]model.Point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []model.Point
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "x") {
			continue
		}
		switch len(rec) {
		case 1:
			p, err := model.ParsePointKey(rec[0])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			out = append(out, p)
		default:
			x, errX := strconv.Atoi(strings.TrimSpace(rec[0]))
			y, errY := strconv.Atoi(strings.TrimSpace(rec[1]))
			if errX != nil || errY != nil {
				return nil, fmt.Errorf("line %d: malformed point %q", line, strings.Join(rec, ","))
			}
			out = append(out, model.Point{X: x, Y: y})
		}
	}
}

// WriteStartPoints writes points in the CSV form LoadStartPoints reads.
func WriteStartPoints(w io.Writer, points []model.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"x", "y"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write([]string{strconv.Itoa(p.X), strconv.Itoa(p.Y)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
