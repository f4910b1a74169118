package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sourcegraph/conc/pool"

	"trajneat/internal/config"
	"trajneat/internal/fitness"
	"trajneat/internal/model"
	"trajneat/internal/nn"
	"trajneat/internal/novelty"
	"trajneat/internal/scape"
)

// ErrEvaluationTimeout marks a genome whose evaluation outlived its job
// timeout. The genome is scored as a failure, never as a silent zero.
var ErrEvaluationTimeout = errors.New("evaluation timed out")

// Outcome is the evaluation of one genome of a batch.
type Outcome struct {
	Result model.EvaluationResult
	Trace  scape.Trace

	// Novelty is only computed for strategies that read it.
	Novelty float64

	// Fitness is the strategy-combined value used for ranking.
	Fitness float64
	Err     error
}

// FitnessEvaluator scores a whole generation. Outcomes are index-aligned with
// the population.
type FitnessEvaluator interface {
	Evaluate(ctx context.Context, generation int, population []model.Genome, archive *novelty.Archive) ([]Outcome, error)
}

type EvaluatorConfig struct {
	Scape          scape.Scape
	Strategy       fitness.Strategy
	MaxFitness     float64
	NoveltyK       int
	Workers        int
	Timeout        time.Duration
	Seed           int64
	FailureFitness float64
}

// ParallelEvaluator runs one job per genome on a fixed-size pool. A failing
// genome never aborts the batch; only cancellation of ctx does.
type ParallelEvaluator struct {
	cfg EvaluatorConfig
}

func NewParallelEvaluator(cfg EvaluatorConfig) (*ParallelEvaluator, error) {
	if cfg.Scape == nil {
		return nil, fmt.Errorf("scape is required")
	}
	if cfg.MaxFitness <= 0 {
		return nil, config.Errorf("max fitness must be > 0")
	}
	if cfg.Strategy.NeedsNovelty() && cfg.NoveltyK <= 0 {
		return nil, config.Errorf("novelty k must be > 0 for strategy %s", cfg.Strategy)
	}
	if _, err := cfg.Strategy.Combine(fitness.Input{}, cfg.MaxFitness); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &ParallelEvaluator{cfg: cfg}, nil
}

// EvaluatorFromConfig wires an evaluator for the configured strategy.
func EvaluatorFromConfig(cfg config.Config, s scape.Scape) (*ParallelEvaluator, error) {
	strategy, err := fitness.ParseStrategy(cfg.Fitness.Strategy)
	if err != nil {
		return nil, err
	}
	return NewParallelEvaluator(EvaluatorConfig{
		Scape:          s,
		Strategy:       strategy,
		MaxFitness:     cfg.Fitness.MaxFitness,
		NoveltyK:       cfg.Novelty.K,
		Workers:        cfg.Evolution.Workers,
		Timeout:        cfg.Evolution.Timeout,
		Seed:           cfg.Evolution.Seed,
		FailureFitness: cfg.Evolution.FailureFitness,
	})
}

func (e *ParallelEvaluator) Strategy() fitness.Strategy { return e.cfg.Strategy }

func (e *ParallelEvaluator) Evaluate(ctx context.Context, generation int, population []model.Genome, archive *novelty.Archive) ([]Outcome, error) {
	outcomes := make([]Outcome, len(population))

	p := pool.New().WithMaxGoroutines(e.cfg.Workers).WithContext(ctx)
	for i := range population {
		p.Go(func(ctx context.Context) error {
			outcomes[i] = e.evaluateOne(ctx, population[i], GenomeSeed(e.cfg.Seed, generation, i))
			return nil
		})
	}
	_ = p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if e.cfg.Strategy.NeedsNovelty() {
		e.scoreNovelty(outcomes, archive)
	}
	for i := range outcomes {
		o := &outcomes[i]
		if o.Err != nil {
			o.Fitness = e.cfg.FailureFitness
			continue
		}
		combined, err := e.cfg.Strategy.Combine(fitness.Input{
			Real:       o.Result.Fitness,
			Novelty:    o.Novelty,
			Variance:   o.Result.Variance,
			Diversity:  o.Result.Diversity,
			Direction:  o.Result.Direction,
			MeanLength: o.Result.MeanLength,
		}, e.cfg.MaxFitness)
		if err != nil {
			o.Err = err
			o.Fitness = e.cfg.FailureFitness
			continue
		}
		o.Fitness = combined
	}
	return outcomes, nil
}

func (e *ParallelEvaluator) evaluateOne(ctx context.Context, genome model.Genome, seed int64) Outcome {
	jobCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	net, err := nn.Compile(genome)
	if err != nil {
		return Outcome{Err: fmt.Errorf("genome %s: %w", genome.ID, err)}
	}
	result, trace, err := e.cfg.Scape.Evaluate(jobCtx, net, rand.New(rand.NewSource(seed)))
	if err == nil && jobCtx.Err() != nil {
		// The deadline passed during the final rollout.
		err = jobCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("genome %s: %w after %s", genome.ID, ErrEvaluationTimeout, e.cfg.Timeout)
		} else {
			err = fmt.Errorf("genome %s: %w", genome.ID, err)
		}
		return Outcome{Err: err}
	}
	return Outcome{Result: result, Trace: trace}
}

// scoreNovelty rates the successful outcomes against each other plus the
// archive. Failed genomes have no behaviour and score zero novelty.
func (e *ParallelEvaluator) scoreNovelty(outcomes []Outcome, archive *novelty.Archive) {
	if archive == nil {
		archive = novelty.NewArchive(0, 0, nil)
	}
	idx := make([]int, 0, len(outcomes))
	batch := make([]model.Behavior, 0, len(outcomes))
	for i, o := range outcomes {
		if o.Err != nil {
			continue
		}
		idx = append(idx, i)
		batch = append(batch, o.Result.Behavior)
	}
	if len(batch) == 0 {
		return
	}
	scores := novelty.Score(batch, archive, e.cfg.NoveltyK)
	for j, i := range idx {
		outcomes[i].Novelty = scores[j]
	}
}

// GenomeSeed derives the rollout seed of one genome so a batch is
// reproducible regardless of worker scheduling.
func GenomeSeed(runSeed int64, generation, index int) int64 {
	return runSeed*1_000_003 + int64(generation)*10_007 + int64(index)
}
