package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"trajneat/internal/config"
	"trajneat/internal/evo"
	"trajneat/internal/model"
	"trajneat/internal/rollout"
	"trajneat/internal/stats"
	"trajneat/internal/storage"
)

func runEvolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evolve", flag.ContinueOnError)
	cf := registerConfigFlags(fs)
	runIDFlag := fs.String("run-id", "", "run id (default: random uuid)")
	resume := fs.String("resume", "", "resume this run id from its latest checkpoint")
	topN := fs.Int("top", 5, "genomes written to top_genomes.json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runIDFlag != "" && *resume != "" {
		return fmt.Errorf("use either --run-id or --resume, not both")
	}
	if *topN < 0 {
		return errors.New("top must be >= 0")
	}
	cfg, logger, err := cf.setup(fs)
	if err != nil {
		return err
	}

	env, err := openEnvironment(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = env.Close()
	}()

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	runID := *runIDFlag
	switch {
	case *resume != "":
		runID = *resume
	case runID == "":
		runID = uuid.NewString()
	}

	result, err := evolve(ctx, cfg, env, store, runID, *resume != "", logger)
	if err != nil {
		return err
	}
	runDir, err := writeArtifacts(ctx, cfg, store, result, *topN)
	if err != nil {
		return err
	}

	best := result.BestByGeneration[len(result.BestByGeneration)-1]
	fmt.Printf("run_id=%s strategy=%s generations=%d best_fitness=%.6f archive=%d artifacts=%s\n",
		runID,
		cfg.Fitness.Strategy,
		len(result.BestByGeneration),
		best,
		len(result.Archive),
		runDir,
	)
	return nil
}

// evolve runs or resumes one evolution run against env.
func evolve(ctx context.Context, cfg config.Config, env *environment, store storage.Store, runID string, resume bool, logger *slog.Logger) (evo.RunResult, error) {
	evaluator, err := evo.EvaluatorFromConfig(cfg, env.scape)
	if err != nil {
		return evo.RunResult{}, err
	}
	selector, err := evo.SelectorByName(cfg.Evolution.Selector)
	if err != nil {
		return evo.RunResult{}, err
	}
	checkpointer := evo.StoreCheckpointer{Store: store, Every: cfg.Evolution.CheckpointEvery}

	rng := rand.New(rand.NewSource(cfg.Evolution.Seed))
	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		RunID:          runID,
		Evaluator:      evaluator,
		MutationPolicy: evo.DefaultMutationPolicy(rng, cfg.Evolution.MaxWeightDelta),
		Selector:       selector,
		Reporter: evo.MultiReporter{
			evo.LogReporter{Logger: logger},
			evo.StoreReporter{Store: store},
		},
		Checkpointer:      checkpointer,
		PopulationSize:    cfg.Evolution.Population,
		EliteCount:        cfg.Evolution.EliteCount,
		Generations:       cfg.Evolution.Generations,
		MutationsPerChild: cfg.Evolution.Mutations,
		Seed:              cfg.Evolution.Seed,
		Rand:              rng,
		ArchiveMaxSize:    cfg.Novelty.MaxSize,
		ArchiveProbAdd:    cfg.Novelty.ProbAdd,
		Logger:            logger,
	})
	if err != nil {
		return evo.RunResult{}, err
	}

	if resume {
		cp, ok, err := checkpointer.Restore(ctx, runID)
		if err != nil {
			return evo.RunResult{}, err
		}
		if !ok {
			return evo.RunResult{}, fmt.Errorf("no checkpoint for run %s in %s store", runID, cfg.Store.Kind)
		}
		return monitor.Resume(ctx, cp)
	}

	rendered, err := cfg.Marshal()
	if err != nil {
		return evo.RunResult{}, err
	}
	err = store.SaveRun(ctx, model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              runID,
		Strategy:        cfg.Fitness.Strategy,
		Seed:            cfg.Evolution.Seed,
		StartedAt:       time.Now().UTC(),
		Config:          rendered,
	})
	if err != nil {
		return evo.RunResult{}, err
	}

	inputs := env.scape.Engine().InputSize()
	logger.Info("starting run",
		"run", runID,
		"strategy", cfg.Fitness.Strategy,
		"population", cfg.Evolution.Population,
		"generations", cfg.Evolution.Generations,
		"inputs", inputs,
		"outputs", rollout.NumActions,
	)
	initial := evo.SeedPopulation(rng, cfg.Evolution.Population, inputs, rollout.NumActions)
	return monitor.Run(ctx, initial)
}

func writeArtifacts(ctx context.Context, cfg config.Config, store storage.Store, result evo.RunResult, topN int) (string, error) {
	rendered, err := cfg.Marshal()
	if err != nil {
		return "", err
	}
	generations, err := store.ListGenerations(ctx, result.RunID)
	if err != nil {
		return "", err
	}

	top := make([]stats.TopGenome, 0, topN)
	for _, item := range result.FinalPopulation {
		if len(top) == topN {
			break
		}
		if item.Outcome.Err != nil {
			continue
		}
		top = append(top, stats.TopGenome{Rank: len(top) + 1, Fitness: item.Fitness, Genome: item.Genome})
	}

	runDir, err := stats.WriteRunArtifacts(cfg.OutputDir, stats.RunArtifacts{
		RunID:       result.RunID,
		Config:      rendered,
		Generations: generations,
		TopGenomes:  top,
		Archive:     result.Archive,
	})
	if err != nil {
		return "", err
	}

	err = stats.AppendRunIndex(cfg.OutputDir, stats.RunIndexEntry{
		RunID:            result.RunID,
		Strategy:         cfg.Fitness.Strategy,
		PopulationSize:   cfg.Evolution.Population,
		Generations:      cfg.Evolution.Generations,
		Seed:             cfg.Evolution.Seed,
		FinalBestFitness: result.BestByGeneration[len(result.BestByGeneration)-1],
	})
	if err != nil {
		return "", err
	}
	return runDir, nil
}
