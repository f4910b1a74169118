// Package storage persists runs, per-generation statistics, novelty archive
// snapshots, checkpoints and genomes.
package storage

import (
	"context"

	"trajneat/internal/model"
)

// Store defines the persistence operations of an evolution run. Getters
// report false when the record does not exist.
type Store interface {
	Init(ctx context.Context) error

	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)

	SaveGeneration(ctx context.Context, record model.GenerationRecord) error
	ListGenerations(ctx context.Context, runID string) ([]model.GenerationRecord, error)

	// SaveArchive keeps one snapshot per run and generation; GetArchive
	// returns the newest.
	SaveArchive(ctx context.Context, snapshot model.ArchiveSnapshot) error
	GetArchive(ctx context.Context, runID string) (model.ArchiveSnapshot, bool, error)

	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (model.Checkpoint, bool, error)
	LatestCheckpoint(ctx context.Context, runID string) (model.Checkpoint, bool, error)

	SaveGenome(ctx context.Context, genome model.Genome) error
	GetGenome(ctx context.Context, id string) (model.Genome, bool, error)
}
