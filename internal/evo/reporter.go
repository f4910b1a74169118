package evo

import (
	"context"
	"errors"
	"log/slog"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"trajneat/internal/model"
	"trajneat/internal/storage"
)

// GenerationReport is what a reporter sees once a generation is ranked.
type GenerationReport struct {
	RunID       string
	Generation  int
	Ranked      []ScoredGenome
	ArchiveSize int
	ArchiveGrew bool

	// Archive holds a copy of the archive contents after the update.
	Archive []model.Behavior
}

// Record summarizes the report for persistence. Failed genomes are counted
// but excluded from the mean and min.
func (r GenerationReport) Record() model.GenerationRecord {
	rec := model.GenerationRecord{
		RunID:       r.RunID,
		Generation:  r.Generation,
		ArchiveSize: r.ArchiveSize,
	}
	if len(r.Ranked) == 0 {
		return rec
	}
	best := r.Ranked[0]
	rec.BestFitness = best.Fitness
	rec.BestGenome = best.Genome.ID
	rec.BestRaw = best.Outcome.Result.Fitness

	values := make([]float64, 0, len(r.Ranked))
	for _, item := range r.Ranked {
		if item.Outcome.Err != nil {
			rec.Failures++
			continue
		}
		values = append(values, item.Fitness)
	}
	if len(values) > 0 {
		rec.MeanFitness = stat.Mean(values, nil)
		rec.MinFitness = floats.Min(values)
	}
	return rec
}

type GenerationReporter interface {
	ReportGeneration(ctx context.Context, report GenerationReport) error
}

// LogReporter writes one structured line per generation and one per failed
// genome.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) ReportGeneration(_ context.Context, report GenerationReport) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := report.Record()
	for _, item := range report.Ranked {
		if item.Outcome.Err != nil {
			logger.Warn("genome evaluation failed", "generation", report.Generation, "genome", item.Genome.ID, "err", item.Outcome.Err)
		}
	}
	logger.Info("generation complete",
		"run", report.RunID,
		"generation", rec.Generation,
		"best", rec.BestFitness,
		"best_raw", rec.BestRaw,
		"mean", rec.MeanFitness,
		"min", rec.MinFitness,
		"best_genome", rec.BestGenome,
		"archive", rec.ArchiveSize,
		"failures", rec.Failures,
	)
	return nil
}

// StoreReporter persists the generation record and the best genome. The
// archive is snapshotted only in generations where it grew.
type StoreReporter struct {
	Store storage.Store
}

func (r StoreReporter) ReportGeneration(ctx context.Context, report GenerationReport) error {
	if r.Store == nil {
		return errors.New("store is required")
	}
	if err := r.Store.SaveGeneration(ctx, report.Record()); err != nil {
		return err
	}
	if len(report.Ranked) > 0 && report.Ranked[0].Outcome.Err == nil {
		best := report.Ranked[0].Genome
		if best.SchemaVersion == 0 {
			best.VersionedRecord = storage.CurrentVersion()
		}
		if err := r.Store.SaveGenome(ctx, best); err != nil {
			return err
		}
	}
	if report.ArchiveGrew {
		return r.Store.SaveArchive(ctx, model.ArchiveSnapshot{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           report.RunID,
			Generation:      report.Generation,
			Items:           report.Archive,
		})
	}
	return nil
}

// MultiReporter fans a report out in order and stops at the first error.
type MultiReporter []GenerationReporter

func (m MultiReporter) ReportGeneration(ctx context.Context, report GenerationReport) error {
	for _, r := range m {
		if err := r.ReportGeneration(ctx, report); err != nil {
			return err
		}
	}
	return nil
}
