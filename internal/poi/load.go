// Package poi loads the per-category point-of-interest tables that feed the
// grid index builder.
package poi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"trajneat/internal/config"
)

// POI is one record in map-grid units.
type POI struct {
	X   float64
	Y   float64
	Tag string
}

type Category struct {
	Name string
	Tags []string
}

// Table holds the POIs of every category; the category index is stable for
// the lifetime of a run.
type Table struct {
	Categories []Category
	POIs       [][]POI
}

// OthersTag is the tag unknown sub-types fold into for a category.
func OthersTag(category string) string {
	return "others_" + category
}

// Load reads one CSV file per configured category. Each file has a header
// with at least the columns names, x and y. Rows with an empty x are skipped.
func Load(cfg config.Config, logger *slog.Logger) (Table, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table := Table{
		Categories: make([]Category, 0, len(cfg.Categories)),
		POIs:       make([][]POI, 0, len(cfg.Categories)),
	}
	for i, name := range cfg.CategoryNames() {
		tags := normalizeTags(name, cfg.Categories[i].Tags)
		path := cfg.CategoryFile(name)
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Table{}, config.Errorf("category file %s not present", path)
			}
			return Table{}, config.Errorf("open category file %s: %v", path, err)
		}
		pois, err := Read(f, name, tags)
		_ = f.Close()
		if err != nil {
			return Table{}, fmt.Errorf("%s: %w", path, err)
		}
		table.Categories = append(table.Categories, Category{Name: name, Tags: tags})
		table.POIs = append(table.POIs, pois)
		logger.Debug("category loaded", "category", name, "pois", len(pois), "path", path)
	}
	logger.Info("poi tables loaded", "categories", len(table.Categories), "pois", table.Total())
	return table, nil
}

// Read parses one category table from r.
func Read(r io.Reader, category string, tags []string) ([]POI, error) {
	accepted := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		accepted[tag] = struct{}{}
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, config.Errorf("read header: %v", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	nameCol, okName := cols["names"]
	xCol, okX := cols["x"]
	yCol, okY := cols["y"]
	if !okName || !okX || !okY {
		return nil, config.Errorf("header must contain names, x and y columns, got %v", header)
	}

	others := OthersTag(category)
	var out []POI
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, config.Errorf("line %d: %v", line, err)
		}
		if xCol >= len(row) || strings.TrimSpace(row[xCol]) == "" {
			continue
		}
		if yCol >= len(row) || nameCol >= len(row) {
			return nil, config.Errorf("line %d: short row", line)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(row[xCol]), 64)
		if err != nil {
			return nil, config.Errorf("line %d: parse x: %v", line, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(row[yCol]), 64)
		if err != nil {
			return nil, config.Errorf("line %d: parse y: %v", line, err)
		}
		tag := strings.ToLower(strings.TrimSpace(row[nameCol]))
		if _, ok := accepted[tag]; !ok {
			tag = others
		}
		out = append(out, POI{X: x, Y: y, Tag: tag})
	}
	return out, nil
}

func normalizeTags(category string, tags []string) []string {
	out := make([]string, 0, len(tags)+1)
	seen := map[string]struct{}{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || tag == "others" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return append(out, OthersTag(category))
}

func (t Table) Len() int { return len(t.Categories) }

func (t Table) Count(k int) int { return len(t.POIs[k]) }

func (t Table) Total() int {
	total := 0
	for _, pois := range t.POIs {
		total += len(pois)
	}
	return total
}

// Index returns the category index for name, or -1.
func (t Table) Index(name string) int {
	name = strings.ToLower(name)
	for i, c := range t.Categories {
		if c.Name == name {
			return i
		}
	}
	return -1
}

type TagCount struct {
	Tag   string
	Count int
}

// Tags returns the tag histogram of category k, most frequent first.
func (t Table) Tags(k int) []TagCount {
	counts := map[string]int{}
	for _, p := range t.POIs[k] {
		counts[p.Tag]++
	}
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}
