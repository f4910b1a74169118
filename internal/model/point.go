package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Point is an integer map-grid coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Add(dx, dy int) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// Key renders the "x-y" form used by start point files.
func (p Point) Key() string {
	return strconv.Itoa(p.X) + "-" + strconv.Itoa(p.Y)
}

func (p Point) Vec() [2]float64 {
	return [2]float64{float64(p.X), float64(p.Y)}
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// ParsePointKey parses the "x-y" form produced by Key.
func ParsePointKey(s string) (Point, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, "-")
	if idx <= 0 || idx == len(s)-1 {
		return Point{}, fmt.Errorf("malformed point key %q", s)
	}
	x, err := strconv.Atoi(s[:idx])
	if err != nil {
		return Point{}, fmt.Errorf("malformed point key %q: %w", s, err)
	}
	y, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return Point{}, fmt.Errorf("malformed point key %q: %w", s, err)
	}
	return Point{X: x, Y: y}, nil
}
