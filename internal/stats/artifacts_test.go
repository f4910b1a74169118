package stats

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"trajneat/internal/model"
)

func TestWriteRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := RunArtifacts{
		RunID:  "run-123",
		Config: []byte("seed: 1\n"),
		Generations: []model.GenerationRecord{
			{Generation: 1, BestFitness: 12.5, MeanFitness: 6, MinFitness: 1, ArchiveSize: 1},
			{Generation: 0, BestFitness: 10, MeanFitness: 5, MinFitness: 0.5},
		},
		TopGenomes: []TopGenome{{Rank: 1, Fitness: 12.5, Genome: model.Genome{ID: "g1"}}},
		Archive:    []model.Behavior{{1, 2, 3, 4, 5}},
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{configFile, fitnessFile, topGenomesFile, archiveFile} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}
	cfg, err := os.ReadFile(filepath.Join(runDir, configFile))
	if err != nil || string(cfg) != "seed: 1\n" {
		t.Fatalf("config: got=%q err=%v", cfg, err)
	}

	series, ok, err := ReadFitnessSeries(baseDir, "run-123")
	if err != nil || !ok {
		t.Fatalf("read series: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(series, []float64{10, 12.5}) {
		t.Fatalf("series: got=%v want=[10 12.5]", series)
	}
	if _, ok, err := ReadFitnessSeries(baseDir, "missing"); ok || err != nil {
		t.Fatalf("missing run: ok=%v err=%v", ok, err)
	}

	top, ok, err := ReadTopGenomes(baseDir, "run-123")
	if err != nil || !ok || len(top) != 1 || top[0].Genome.ID != "g1" {
		t.Fatalf("top genomes: %+v ok=%v err=%v", top, ok, err)
	}

	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{}); err == nil {
		t.Fatal("expected error without run id")
	}
}

func TestWriteFitnessCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFitnessCSV(&buf, []model.GenerationRecord{
		{Generation: 0, BestFitness: 3, MeanFitness: 1.5, MinFitness: -1, BestRaw: 2.25, ArchiveSize: 4, Failures: 2},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "generation,best,mean,min,best_raw,archive_size,failures\n0,3,1.5,-1,2.25,4,2\n"
	if buf.String() != want {
		t.Fatalf("csv mismatch:\ngot=%q\nwant=%q", buf.String(), want)
	}
}

func TestWriteTrajectoriesSplitsBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay", "best.json")
	result := model.EvaluationResult{
		Fitness: 42,
		Bundle: []model.TrajectoryRecord{
			{Points: []model.Point{{X: 1, Y: 1}, {X: 1, Y: 2}}, Fitness: 42, Reason: "stop_action"},
		},
	}
	if err := WriteTrajectories(path, "g7", result); err != nil {
		t.Fatalf("write: %v", err)
	}
	bundle, err := ReadTrajectories(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if bundle.GenomeID != "g7" || bundle.Result.Fitness != 42 || bundle.Result.Bundle != nil {
		t.Fatalf("unexpected bundle header: %+v", bundle)
	}
	if len(bundle.Trajectories) != 1 || bundle.Trajectories[0].Points[1] != (model.Point{X: 1, Y: 2}) {
		t.Fatalf("unexpected trajectories: %+v", bundle.Trajectories)
	}

	raw, _ := os.ReadFile(path)
	if strings.Count(string(raw), `"points"`) != 1 {
		t.Fatalf("bundle should be written once:\n%s", raw)
	}
}

func TestRunIndexOrdering(t *testing.T) {
	baseDir := t.TempDir()
	entries := []RunIndexEntry{
		{RunID: "a", CreatedAtUTC: "2024-01-01T00:00:00Z"},
		{RunID: "b", CreatedAtUTC: "2024-01-02T00:00:00Z"},
		{RunID: "c", CreatedAtUTC: "2024-01-02T00:00:00Z"},
	}
	for _, e := range entries {
		if err := AppendRunIndex(baseDir, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", CreatedAtUTC: "2024-01-01T00:00:00Z", FinalBestFitness: 9}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	listed, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, e := range listed {
		ids = append(ids, e.RunID)
	}
	if !reflect.DeepEqual(ids, []string{"c", "b", "a"}) {
		t.Fatalf("order: got=%v want=[c b a]", ids)
	}
	if listed[2].FinalBestFitness != 9 {
		t.Fatalf("entry not replaced: %+v", listed[2])
	}

	empty, err := ListRunIndex(t.TempDir())
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty index: %v err=%v", empty, err)
	}
}
