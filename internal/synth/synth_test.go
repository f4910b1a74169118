package synth

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/paulmach/orb"

	"trajneat/internal/config"
	"trajneat/internal/field"
	"trajneat/internal/grid"
	"trajneat/internal/landscape"
	"trajneat/internal/poi"
	"trajneat/internal/rollout"
)

func smallConfig(dir string) config.Config {
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Map.Width = 60
	cfg.Map.Height = 40
	cfg.Grid.XDivision = 6
	cfg.Grid.YDivision = 4
	cfg.Grid.Workers = 2
	cfg.Categories = []config.Category{
		{Name: "shop", Tags: []string{"supermarket", "bakery"}},
		{Name: "school"},
	}
	return cfg
}

func smallOptions(seed int64) Options {
	opts := DefaultOptions(seed)
	opts.POIsPerCategory = 20
	opts.StartPoints = 10
	opts.RoadSpacing = 10
	return opts
}

func TestGenerateProducesLoadableDataset(t *testing.T) {
	cfg := smallConfig(t.TempDir())
	summary, err := Generate(cfg, smallOptions(7))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if summary.POIs != 40 || summary.StartPoints != 10 || summary.APFBytes != 60*40 || summary.RoadCoords == 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	table, err := poi.Load(cfg, nil)
	if err != nil {
		t.Fatalf("load pois: %v", err)
	}
	if table.Count(0) != 20 || table.Count(1) != 20 {
		t.Fatalf("poi counts: got=%d,%d want=20,20", table.Count(0), table.Count(1))
	}
	for _, p := range table.POIs[1] {
		if p.Tag != poi.OthersTag("school") {
			t.Fatalf("untagged category should fold into others: %+v", p)
		}
	}

	if _, err := landscape.Load(cfg.LandscapePath()); err != nil {
		t.Fatalf("load landscape: %v", err)
	}

	starts, err := rollout.LoadStartPoints(cfg.StartPointsPath())
	if err != nil {
		t.Fatalf("load starts: %v", err)
	}

	idx, err := grid.Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	if err := idx.WriteFile(cfg.FieldPath(), nil); err != nil {
		t.Fatalf("write field: %v", err)
	}
	srv, err := field.Open(cfg.FieldPath(), field.MinDistance)
	if err != nil {
		t.Fatalf("open field: %v", err)
	}
	defer srv.Close()
	for _, p := range starts {
		q, err := srv.Quality(p)
		if err != nil {
			t.Fatalf("quality %v: %v", p, err)
		}
		if !srv.IsOnRoad(p) || q < cfg.Rollout.QualityThreshold {
			t.Fatalf("start point %v off road: quality=%d", p, q)
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, b := smallConfig(t.TempDir()), smallConfig(t.TempDir())
	if _, err := Generate(a, smallOptions(3)); err != nil {
		t.Fatalf("generate a: %v", err)
	}
	if _, err := Generate(b, smallOptions(3)); err != nil {
		t.Fatalf("generate b: %v", err)
	}
	for _, path := range [][2]string{
		{a.APFPath(), b.APFPath()},
		{a.StartPointsPath(), b.StartPointsPath()},
		{a.CategoryFile("shop"), b.CategoryFile("shop")},
	} {
		da, err := os.ReadFile(path[0])
		if err != nil {
			t.Fatalf("read %s: %v", path[0], err)
		}
		db, err := os.ReadFile(path[1])
		if err != nil {
			t.Fatalf("read %s: %v", path[1], err)
		}
		if !bytes.Equal(da, db) {
			t.Fatalf("same seed produced different %s", path[0])
		}
	}
}

func TestGenerateRejectsBadOptions(t *testing.T) {
	cfg := smallConfig(t.TempDir())
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{name: "pois", mutate: func(o *Options) { o.POIsPerCategory = 0 }},
		{name: "starts", mutate: func(o *Options) { o.StartPoints = 0 }},
		{name: "spacing", mutate: func(o *Options) { o.RoadSpacing = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := smallOptions(1)
			tc.mutate(&opts)
			if _, err := Generate(cfg, opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDefaultLandscapeScoresInnerZone(t *testing.T) {
	bundle, err := DefaultLandscape(5000).Bundle()
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	if got := len(bundle.Names()); got != len(landscape.Names) {
		t.Fatalf("surfaces: got=%d want=%d", got, len(landscape.Names))
	}
	s := bundle.MustSurface(landscape.CurlinessLength)
	if raw := s.Raw(orb.Point{60, 500}); raw != 0 {
		t.Fatalf("inner point raw: got=%v want=0", raw)
	}
	if raw := s.Raw(orb.Point{200, 500}); raw >= 0 {
		t.Fatalf("outside point raw: got=%v want<0", raw)
	}
}
