// Package scape evaluates a policy in the trajectory environment: it drives
// the rollouts of one genome and folds them into a single result.
package scape

import (
	"context"
	"math/rand"

	"trajneat/internal/model"
	"trajneat/internal/rollout"
)

// Trace carries diagnostics that are not part of the evaluation result.
type Trace map[string]any

type Scape interface {
	Name() string
	Evaluate(ctx context.Context, policy rollout.Policy, rng *rand.Rand) (model.EvaluationResult, Trace, error)
}
