package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"trajneat/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

// MemoryStore keeps records in maps. Values are round-tripped through the
// codec on save so callers never share slices with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string][]byte
	generations map[string]map[int]model.GenerationRecord
	archives    map[string]map[int][]byte
	checkpoints map[string][]byte
	genomes     map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.runs = make(map[string][]byte)
	s.generations = make(map[string]map[int]model.GenerationRecord)
	s.archives = make(map[string]map[int][]byte)
	s.checkpoints = make(map[string][]byte)
	s.genomes = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = payload
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, payload := range s.runs {
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (s *MemoryStore) SaveGeneration(_ context.Context, record model.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	byGen, ok := s.generations[record.RunID]
	if !ok {
		byGen = make(map[int]model.GenerationRecord)
		s.generations[record.RunID] = byGen
	}
	byGen[record.Generation] = record
	return nil
}

func (s *MemoryStore) ListGenerations(_ context.Context, runID string) ([]model.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.GenerationRecord, 0, len(s.generations[runID]))
	for _, record := range s.generations[runID] {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out, nil
}

func (s *MemoryStore) SaveArchive(_ context.Context, snapshot model.ArchiveSnapshot) error {
	payload, err := EncodeArchive(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	byGen, ok := s.archives[snapshot.RunID]
	if !ok {
		byGen = make(map[int][]byte)
		s.archives[snapshot.RunID] = byGen
	}
	byGen[snapshot.Generation] = payload
	return nil
}

func (s *MemoryStore) GetArchive(_ context.Context, runID string) (model.ArchiveSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, found := -1, false
	for gen := range s.archives[runID] {
		if !found || gen > latest {
			latest, found = gen, true
		}
	}
	if !found {
		return model.ArchiveSnapshot{}, false, nil
	}
	snapshot, err := DecodeArchive(s.archives[runID][latest])
	if err != nil {
		return model.ArchiveSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, cp model.Checkpoint) error {
	payload, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.checkpoints[cp.ID] = payload
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, id string) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	payload, ok := s.checkpoints[id]
	s.mu.RUnlock()
	if !ok {
		return model.Checkpoint{}, false, nil
	}
	cp, err := DecodeCheckpoint(payload)
	if err != nil {
		return model.Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (s *MemoryStore) LatestCheckpoint(_ context.Context, runID string) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best model.Checkpoint
	found := false
	for _, payload := range s.checkpoints {
		cp, err := DecodeCheckpoint(payload)
		if err != nil {
			return model.Checkpoint{}, false, err
		}
		if cp.RunID != runID {
			continue
		}
		if !found || cp.Generation > best.Generation {
			best, found = cp, true
		}
	}
	return best, found, nil
}

func (s *MemoryStore) SaveGenome(_ context.Context, genome model.Genome) error {
	payload, err := EncodeGenome(genome)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.genomes[genome.ID] = payload
	return nil
}

func (s *MemoryStore) GetGenome(_ context.Context, id string) (model.Genome, bool, error) {
	s.mu.RLock()
	payload, ok := s.genomes[id]
	s.mu.RUnlock()
	if !ok {
		return model.Genome{}, false, nil
	}
	genome, err := DecodeGenome(payload)
	if err != nil {
		return model.Genome{}, false, err
	}
	return genome, true, nil
}
