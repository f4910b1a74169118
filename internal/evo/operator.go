package evo

import (
	"context"

	"trajneat/internal/model"
)

type Operator interface {
	Name() string
	Apply(ctx context.Context, genome model.Genome) (model.Genome, error)
}

// WeightedMutation pairs an operator with its relative selection weight.
type WeightedMutation struct {
	Operator Operator
	Weight   float64
}
