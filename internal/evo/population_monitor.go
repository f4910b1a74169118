package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"trajneat/internal/model"
	"trajneat/internal/novelty"
)

// ErrAllEvaluationsFailed is returned when no genome of a generation could be
// evaluated; breeding from failure scores alone is meaningless.
var ErrAllEvaluationsFailed = errors.New("every genome evaluation failed")

type ScoredGenome struct {
	Genome  model.Genome
	Fitness float64
	Outcome Outcome
}

type RunResult struct {
	RunID            string
	BestByGeneration []float64
	FinalPopulation  []ScoredGenome
	Archive          []model.Behavior
}

type MonitorConfig struct {
	RunID          string
	Evaluator      FitnessEvaluator
	Mutation       Operator
	MutationPolicy []WeightedMutation
	Selector       Selector
	Reporter       GenerationReporter
	Checkpointer   Checkpointable
	PopulationSize int
	EliteCount     int
	Generations    int

	// MutationsPerChild operators are applied in sequence to every offspring.
	MutationsPerChild int
	Seed              int64

	// Rand is shared with the mutation operators. It is reseeded before each
	// generation is bred so a resumed run breeds like an uninterrupted one.
	Rand *rand.Rand

	ArchiveMaxSize int
	ArchiveProbAdd float64
	Logger         *slog.Logger
}

type PopulationMonitor struct {
	cfg        MonitorConfig
	rng        *rand.Rand
	archiveRng *rand.Rand
	archive    *novelty.Archive
	nextID     int
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Mutation == nil && len(cfg.MutationPolicy) == 0 {
		return nil, fmt.Errorf("mutation operator or policy is required")
	}
	positivePolicyWeight := false
	for i, item := range cfg.MutationPolicy {
		if item.Operator == nil {
			return nil, fmt.Errorf("mutation policy operator is required at index %d", i)
		}
		if item.Weight < 0 {
			return nil, fmt.Errorf("mutation policy weight must be >= 0 at index %d", i)
		}
		if item.Weight > 0 {
			positivePolicyWeight = true
		}
	}
	if len(cfg.MutationPolicy) > 0 && !positivePolicyWeight {
		return nil, fmt.Errorf("mutation policy requires at least one positive weight")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.EliteCount <= 0 || cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("elite count must be in [1, population size]")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.MutationsPerChild <= 0 {
		cfg.MutationsPerChild = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = EliteSelector{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	archiveRng := rand.New(rand.NewSource(cfg.Seed))

	return &PopulationMonitor{
		cfg:        cfg,
		rng:        rng,
		archiveRng: archiveRng,
		archive:    novelty.NewArchive(cfg.ArchiveMaxSize, cfg.ArchiveProbAdd, archiveRng),
	}, nil
}

// Archive exposes the novelty archive shared with the evaluator.
func (m *PopulationMonitor) Archive() *novelty.Archive { return m.archive }

func (m *PopulationMonitor) Run(ctx context.Context, initial []model.Genome) (RunResult, error) {
	if len(initial) != m.cfg.PopulationSize {
		return RunResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), m.cfg.PopulationSize)
	}
	m.nextID = len(initial)
	return m.run(ctx, 0, initial, false)
}

// Resume continues a run from the start of the checkpointed generation.
func (m *PopulationMonitor) Resume(ctx context.Context, cp model.Checkpoint) (RunResult, error) {
	if len(cp.Population) != m.cfg.PopulationSize {
		return RunResult{}, fmt.Errorf("checkpoint population mismatch: got=%d want=%d", len(cp.Population), m.cfg.PopulationSize)
	}
	if cp.Generation < 0 || cp.Generation >= m.cfg.Generations {
		return RunResult{}, fmt.Errorf("checkpoint generation %d outside run of %d generations", cp.Generation, m.cfg.Generations)
	}
	m.archive.Restore(cp.Archive)
	m.nextID = cp.NextID
	m.cfg.Logger.Info("resuming run", "run", m.cfg.RunID, "generation", cp.Generation, "archive", m.archive.Len())
	return m.run(ctx, cp.Generation, cp.Population, true)
}

// run evolves from generation start. A resumed run does not checkpoint the
// generation it was restored from again.
func (m *PopulationMonitor) run(ctx context.Context, start int, initial []model.Genome, resumed bool) (RunResult, error) {
	population := make([]model.Genome, len(initial))
	copy(population, initial)

	bestHistory := make([]float64, 0, m.cfg.Generations-start)
	var ranked []ScoredGenome

	for gen := start; gen < m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		if m.cfg.Checkpointer != nil && !(resumed && gen == start) {
			err := m.cfg.Checkpointer.Checkpoint(ctx, model.Checkpoint{
				RunID:      m.cfg.RunID,
				Generation: gen,
				Population: population,
				Archive:    m.archive.Items(),
				NextID:     m.nextID,
			})
			if err != nil {
				return RunResult{}, fmt.Errorf("checkpoint generation %d: %w", gen, err)
			}
		}

		var err error
		ranked, err = m.evaluatePopulation(ctx, population, gen)
		if err != nil {
			return RunResult{}, err
		}
		bestHistory = append(bestHistory, ranked[0].Fitness)

		grew := m.updateArchive(ranked, gen)
		if m.cfg.Reporter != nil {
			report := GenerationReport{
				RunID:       m.cfg.RunID,
				Generation:  gen,
				Ranked:      ranked,
				ArchiveSize: m.archive.Len(),
				ArchiveGrew: grew,
			}
			if grew {
				report.Archive = m.archive.Items()
			}
			if err := m.cfg.Reporter.ReportGeneration(ctx, report); err != nil {
				return RunResult{}, fmt.Errorf("report generation %d: %w", gen, err)
			}
		}

		if gen == m.cfg.Generations-1 {
			break
		}
		population, err = m.nextGeneration(ctx, ranked, gen)
		if err != nil {
			return RunResult{}, err
		}
	}

	return RunResult{
		RunID:            m.cfg.RunID,
		BestByGeneration: bestHistory,
		FinalPopulation:  ranked,
		Archive:          m.archive.Items(),
	}, nil
}

// evaluatePopulation returns the generation ranked by fitness, best first.
// Equal fitness keeps population order.
func (m *PopulationMonitor) evaluatePopulation(ctx context.Context, population []model.Genome, generation int) ([]ScoredGenome, error) {
	outcomes, err := m.cfg.Evaluator.Evaluate(ctx, generation, population, m.archive)
	if err != nil {
		return nil, err
	}
	if len(outcomes) != len(population) {
		return nil, fmt.Errorf("evaluator returned %d outcomes for %d genomes", len(outcomes), len(population))
	}

	scored := make([]ScoredGenome, len(population))
	var firstErr error
	failures := 0
	for i, o := range outcomes {
		scored[i] = ScoredGenome{Genome: population[i], Fitness: o.Fitness, Outcome: o}
		if o.Err != nil {
			failures++
			if firstErr == nil {
				firstErr = o.Err
			}
		}
	}
	if failures == len(scored) {
		return nil, fmt.Errorf("generation %d: %w: %w", generation, ErrAllEvaluationsFailed, firstErr)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Fitness > scored[j].Fitness
	})
	return scored, nil
}

// updateArchive offers the generation's successful genomes to the archive.
func (m *PopulationMonitor) updateArchive(ranked []ScoredGenome, generation int) bool {
	batch := make([]novelty.Individual, 0, len(ranked))
	for _, item := range ranked {
		if item.Outcome.Err != nil {
			continue
		}
		batch = append(batch, novelty.Individual{Fitness: item.Fitness, Behavior: item.Outcome.Result.Behavior})
	}
	m.archiveRng.Seed(m.cfg.Seed ^ int64(generation+1)<<20)
	return m.archive.Update(batch)
}

func (m *PopulationMonitor) nextGeneration(ctx context.Context, ranked []ScoredGenome, generation int) ([]model.Genome, error) {
	m.rng.Seed(m.cfg.Seed + int64(generation+1)*7919)
	next := make([]model.Genome, 0, m.cfg.PopulationSize)

	for i := 0; i < m.cfg.EliteCount; i++ {
		next = append(next, ranked[i].Genome.Clone())
	}
	for len(next) < m.cfg.PopulationSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parent, err := m.cfg.Selector.PickParent(m.rng, ranked, m.cfg.EliteCount)
		if err != nil {
			return nil, err
		}
		child, err := m.mutateFromParent(ctx, parent, generation)
		if err != nil {
			return nil, err
		}
		next = append(next, child)
	}
	return next, nil
}

func (m *PopulationMonitor) mutateFromParent(ctx context.Context, parent model.Genome, generation int) (model.Genome, error) {
	mutated := parent.Clone()
	mutated.ID = genomeID(generation+1, m.nextID)
	m.nextID++

	for step := 0; step < m.cfg.MutationsPerChild; step++ {
		operator := m.chooseMutation()
		next, opErr := operator.Apply(ctx, mutated)
		if opErr != nil && m.cfg.Mutation != nil && operator != m.cfg.Mutation {
			next, opErr = m.cfg.Mutation.Apply(ctx, mutated)
		}
		if opErr != nil {
			if noChoice(opErr) {
				continue
			}
			return model.Genome{}, fmt.Errorf("mutate %s: %w", parent.ID, opErr)
		}
		mutated = next
	}
	return mutated, nil
}

func noChoice(err error) bool {
	return errors.Is(err, ErrNoSynapses) ||
		errors.Is(err, ErrNoNeurons) ||
		errors.Is(err, ErrNoMutationChoice) ||
		errors.Is(err, ErrSynapseExists)
}

func (m *PopulationMonitor) chooseMutation() Operator {
	if len(m.cfg.MutationPolicy) == 0 {
		return m.cfg.Mutation
	}

	total := 0.0
	for _, item := range m.cfg.MutationPolicy {
		total += item.Weight
	}
	if total <= 0 {
		return m.cfg.Mutation
	}
	pick := m.rng.Float64() * total
	acc := 0.0
	for _, item := range m.cfg.MutationPolicy {
		acc += item.Weight
		if pick <= acc {
			return item.Operator
		}
	}
	return m.cfg.MutationPolicy[len(m.cfg.MutationPolicy)-1].Operator
}
