package evo

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"trajneat/internal/model"
	"trajneat/internal/novelty"
	"trajneat/internal/storage"
)

// sumEvaluator scores a genome by the sum of its enabled weights.
type sumEvaluator struct {
	failAll     bool
	generations []int
}

func (e *sumEvaluator) Evaluate(_ context.Context, generation int, population []model.Genome, _ *novelty.Archive) ([]Outcome, error) {
	e.generations = append(e.generations, generation)
	out := make([]Outcome, len(population))
	for i, g := range population {
		if e.failAll {
			out[i] = Outcome{Err: errors.New("forced failure"), Fitness: -1}
			continue
		}
		sum := 0.0
		for _, s := range g.Synapses {
			if s.Enabled {
				sum += s.Weight
			}
		}
		out[i] = Outcome{
			Fitness: sum,
			Result:  model.EvaluationResult{Fitness: sum, Behavior: model.Behavior{sum, 0, 0, 0, 0}},
		}
	}
	return out, nil
}

type captureReporter struct {
	reports []GenerationReport
}

func (r *captureReporter) ReportGeneration(_ context.Context, report GenerationReport) error {
	r.reports = append(r.reports, report)
	return nil
}

type namedNoopMutation struct {
	name string
}

func (o namedNoopMutation) Name() string { return o.name }

func (o namedNoopMutation) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	return genome, nil
}

func monitorConfig(eval FitnessEvaluator, generations int) MonitorConfig {
	rng := rand.New(rand.NewSource(5))
	return MonitorConfig{
		RunID:             "run",
		Evaluator:         eval,
		MutationPolicy:    DefaultMutationPolicy(rng, 0.5),
		Rand:              rng,
		PopulationSize:    8,
		EliteCount:        2,
		Generations:       generations,
		MutationsPerChild: 2,
		Seed:              5,
		ArchiveProbAdd:    0.5,
	}
}

func TestPopulationMonitorElitismKeepsBestNonDecreasing(t *testing.T) {
	eval := &sumEvaluator{}
	reporter := &captureReporter{}
	cfg := monitorConfig(eval, 6)
	cfg.Reporter = reporter
	monitor, err := NewPopulationMonitor(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	initial := SeedPopulation(rand.New(rand.NewSource(1)), 8, 3, 2)
	result, err := monitor.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.BestByGeneration) != 6 || !reflect.DeepEqual(eval.generations, []int{0, 1, 2, 3, 4, 5}) {
		t.Fatalf("unexpected generations: best=%v evaluated=%v", result.BestByGeneration, eval.generations)
	}
	for i := 1; i < len(result.BestByGeneration); i++ {
		if result.BestByGeneration[i] < result.BestByGeneration[i-1] {
			t.Fatalf("best fitness decreased at generation %d: %v", i, result.BestByGeneration)
		}
	}
	if len(result.FinalPopulation) != 8 {
		t.Fatalf("final population size: got=%d want=8", len(result.FinalPopulation))
	}

	if len(reporter.reports) != 6 {
		t.Fatalf("reports: got=%d want=6", len(reporter.reports))
	}
	for _, report := range reporter.reports {
		ids := make(map[string]struct{}, len(report.Ranked))
		for i, item := range report.Ranked {
			if i > 0 && item.Fitness > report.Ranked[i-1].Fitness {
				t.Fatalf("generation %d not ranked", report.Generation)
			}
			if _, dup := ids[item.Genome.ID]; dup {
				t.Fatalf("duplicate genome id %s in generation %d", item.Genome.ID, report.Generation)
			}
			ids[item.Genome.ID] = struct{}{}
		}
		if report.ArchiveGrew && len(report.Archive) != report.ArchiveSize {
			t.Fatalf("archive copy size: got=%d want=%d", len(report.Archive), report.ArchiveSize)
		}
	}
	if len(result.Archive) != reporter.reports[5].ArchiveSize {
		t.Fatalf("archive size: got=%d want=%d", len(result.Archive), reporter.reports[5].ArchiveSize)
	}
}

func TestPopulationMonitorResumeMatchesUninterruptedRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}

	cfg := monitorConfig(&sumEvaluator{}, 4)
	cfg.Checkpointer = StoreCheckpointer{Store: store, Every: 2}
	full, err := NewPopulationMonitor(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	want, err := full.Run(ctx, SeedPopulation(rand.New(rand.NewSource(1)), 8, 3, 2))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	cp, ok, err := cfg.Checkpointer.Restore(ctx, "run")
	if err != nil || !ok {
		t.Fatalf("restore: ok=%v err=%v", ok, err)
	}
	if cp.Generation != 2 {
		t.Fatalf("latest checkpoint generation: got=%d want=2", cp.Generation)
	}

	resumedCfg := monitorConfig(&sumEvaluator{}, 4)
	resumedCfg.Checkpointer = cfg.Checkpointer
	resumed, err := NewPopulationMonitor(resumedCfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	got, err := resumed.Resume(ctx, cp)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	if !reflect.DeepEqual(got.BestByGeneration, want.BestByGeneration[2:]) {
		t.Fatalf("best history: got=%v want=%v", got.BestByGeneration, want.BestByGeneration[2:])
	}
	for i := range want.FinalPopulation {
		g, w := got.FinalPopulation[i], want.FinalPopulation[i]
		if g.Genome.ID != w.Genome.ID || g.Fitness != w.Fitness {
			t.Fatalf("final population %d: got=%s/%f want=%s/%f", i, g.Genome.ID, g.Fitness, w.Genome.ID, w.Fitness)
		}
	}
	if !reflect.DeepEqual(got.Archive, want.Archive) {
		t.Fatalf("archive: got=%v want=%v", got.Archive, want.Archive)
	}
}

func TestPopulationMonitorAllFailures(t *testing.T) {
	monitor, err := NewPopulationMonitor(monitorConfig(&sumEvaluator{failAll: true}, 3))
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	_, err = monitor.Run(context.Background(), SeedPopulation(rand.New(rand.NewSource(1)), 8, 1, 1))
	if !errors.Is(err, ErrAllEvaluationsFailed) {
		t.Fatalf("expected ErrAllEvaluationsFailed, got %v", err)
	}
}

func TestPopulationMonitorSkipsMutationsWithoutChoice(t *testing.T) {
	cfg := monitorConfig(&sumEvaluator{}, 2)
	cfg.MutationPolicy = nil
	cfg.Mutation = &PerturbRandomWeight{Rand: cfg.Rand, MaxDelta: 1}
	cfg.PopulationSize = 3
	cfg.EliteCount = 1
	reporter := &captureReporter{}
	cfg.Reporter = reporter
	monitor, err := NewPopulationMonitor(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	bare := []model.Genome{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if _, err := monitor.Run(context.Background(), bare); err != nil {
		t.Fatalf("run: %v", err)
	}
	second := reporter.reports[1].Ranked
	if second[1].Genome.ID != "g1-3" || second[2].Genome.ID != "g1-4" {
		t.Fatalf("unexpected offspring ids: %s %s", second[1].Genome.ID, second[2].Genome.ID)
	}
}

func TestPopulationMonitorValidation(t *testing.T) {
	valid := func() MonitorConfig { return monitorConfig(&sumEvaluator{}, 2) }
	tests := []struct {
		name   string
		mutate func(*MonitorConfig)
	}{
		{name: "evaluator", mutate: func(c *MonitorConfig) { c.Evaluator = nil }},
		{name: "mutation", mutate: func(c *MonitorConfig) { c.MutationPolicy = nil }},
		{name: "zero-weights", mutate: func(c *MonitorConfig) {
			c.MutationPolicy = []WeightedMutation{{Operator: namedNoopMutation{name: "noop"}, Weight: 0}}
		}},
		{name: "negative-weight", mutate: func(c *MonitorConfig) {
			c.MutationPolicy = []WeightedMutation{{Operator: namedNoopMutation{name: "noop"}, Weight: -1}}
		}},
		{name: "population", mutate: func(c *MonitorConfig) { c.PopulationSize = 0 }},
		{name: "elite", mutate: func(c *MonitorConfig) { c.EliteCount = 9 }},
		{name: "generations", mutate: func(c *MonitorConfig) { c.Generations = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			if _, err := NewPopulationMonitor(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	monitor, err := NewPopulationMonitor(valid())
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	if _, err := monitor.Run(context.Background(), SeedPopulation(rand.New(rand.NewSource(1)), 3, 1, 1)); err == nil {
		t.Fatal("expected population size mismatch")
	}
	if _, err := monitor.Resume(context.Background(), model.Checkpoint{Generation: 5, Population: make([]model.Genome, 8)}); err == nil {
		t.Fatal("expected checkpoint generation error")
	}
}
