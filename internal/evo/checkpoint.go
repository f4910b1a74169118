package evo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"trajneat/internal/model"
	"trajneat/internal/storage"
)

// Checkpointable is offered the run state at the start of every generation
// and decides itself whether to keep it.
type Checkpointable interface {
	Checkpoint(ctx context.Context, cp model.Checkpoint) error
	Restore(ctx context.Context, runID string) (model.Checkpoint, bool, error)
}

// StoreCheckpointer saves every Every-th generation to a store. Every <= 0
// disables saving but still allows restoring.
type StoreCheckpointer struct {
	Store storage.Store
	Every int
}

func (c StoreCheckpointer) Checkpoint(ctx context.Context, cp model.Checkpoint) error {
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Every <= 0 || cp.Generation%c.Every != 0 {
		return nil
	}
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.VersionedRecord = storage.CurrentVersion()
	return c.Store.SaveCheckpoint(ctx, cp)
}

func (c StoreCheckpointer) Restore(ctx context.Context, runID string) (model.Checkpoint, bool, error) {
	if c.Store == nil {
		return model.Checkpoint{}, false, errors.New("store is required")
	}
	return c.Store.LatestCheckpoint(ctx, runID)
}
