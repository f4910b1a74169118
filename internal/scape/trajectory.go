package scape

import (
	"context"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"trajneat/internal/config"
	"trajneat/internal/fitness"
	"trajneat/internal/landscape"
	"trajneat/internal/model"
	"trajneat/internal/rollout"
)

type TrajectoryConfig struct {
	Trajectories int
	Penalty      bool
	KeepBundle   bool
}

// TrajectoryScape generates a fixed number of trajectories per policy and
// scores them against the landscape.
type TrajectoryScape struct {
	engine   *rollout.Engine
	combiner *fitness.Combiner
	cfg      TrajectoryConfig
}

func NewTrajectoryScape(engine *rollout.Engine, combiner *fitness.Combiner, cfg TrajectoryConfig) (*TrajectoryScape, error) {
	if engine == nil || combiner == nil {
		return nil, config.Errorf("trajectory scape needs an engine and a combiner")
	}
	if cfg.Trajectories <= 0 {
		return nil, config.Errorf("trajectories per genome must be > 0")
	}
	return &TrajectoryScape{engine: engine, combiner: combiner, cfg: cfg}, nil
}

// FromConfig wires the engine and combiner for a loaded field, landscape and
// start point set.
func FromConfig(cfg config.Config, f rollout.Field, bundle *landscape.Bundle, starts []model.Point) (*TrajectoryScape, error) {
	rc, err := rollout.ConfigFrom(cfg.Rollout)
	if err != nil {
		return nil, err
	}
	engine, err := rollout.NewEngine(f, starts, rc)
	if err != nil {
		return nil, err
	}
	combiner, err := fitness.NewCombiner(bundle, cfg.Fitness.PointDistance, cfg.Fitness.MaxFitness)
	if err != nil {
		return nil, err
	}
	return NewTrajectoryScape(engine, combiner, TrajectoryConfig{
		Trajectories: cfg.Rollout.Trajectories,
		Penalty:      cfg.Fitness.Penalty,
		KeepBundle:   cfg.Rollout.KeepBundle,
	})
}

func (s *TrajectoryScape) Name() string { return "trajectory" }

func (s *TrajectoryScape) Engine() *rollout.Engine { return s.engine }

func (s *TrajectoryScape) Combiner() *fitness.Combiner { return s.combiner }

// WithBundle returns a copy of the scape that keeps or drops the per-
// trajectory records.
func (s *TrajectoryScape) WithBundle(keep bool) *TrajectoryScape {
	out := *s
	out.cfg.KeepBundle = keep
	return &out
}

// Evaluate runs every rollout of one genome in order. ctx is only checked
// between rollouts; a started rollout always runs to termination.
func (s *TrajectoryScape) Evaluate(ctx context.Context, policy rollout.Policy, rng *rand.Rand) (model.EvaluationResult, Trace, error) {
	n := s.cfg.Trajectories
	scores := make([]float64, n)
	behaviors := make([]model.Behavior, n)
	bearings := make([]float64, n)
	lengths := make([]float64, n)
	paths := make([][]model.Point, n)
	var bundle []model.TrajectoryRecord
	reasons := make(map[string]int)
	var histogram [rollout.NumActions]int

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return model.EvaluationResult{}, nil, err
		}
		traj, err := s.engine.Generate(policy, i, n, rng)
		if err != nil {
			return model.EvaluationResult{}, nil, fmt.Errorf("trajectory %d: %w", i, err)
		}
		m := fitness.Measure(traj.Points, traj.Steps)
		total, parts := s.combiner.Score(m)

		scores[i] = total
		behaviors[i] = m.Behavior()
		bearings[i] = fitness.Bearing(traj.Points[0], traj.Points[len(traj.Points)-1])
		lengths[i] = float64(len(traj.Points))
		paths[i] = traj.Points
		reasons[traj.Reason.String()]++
		for a, c := range traj.Histogram {
			histogram[a] += c
		}
		if s.cfg.KeepBundle {
			bundle = append(bundle, model.TrajectoryRecord{
				Points:     traj.Points,
				Fitness:    total,
				Components: parts,
				Behavior:   behaviors[i],
				Bearing:    bearings[i],
				Compass:    fitness.Compass(bearings[i]),
				Reason:     traj.Reason.String(),
			})
		}
	}

	result := model.EvaluationResult{
		Fitness:    stat.Mean(scores, nil),
		Behavior:   fitness.MeanBehavior(behaviors),
		Variance:   fitness.Variance(behaviors, scores, s.combiner.MaxTotal()),
		Direction:  fitness.Spread(bearings),
		MeanLength: stat.Mean(lengths, nil),
		Bundle:     bundle,
	}
	if s.cfg.Penalty {
		result.Diversity = fitness.Diversity(paths, s.combiner.MaxFitness())
	}
	trace := Trace{
		"reasons":   reasons,
		"histogram": histogram,
		"best":      floats.Max(scores),
	}
	return result, trace, nil
}
