package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"trajneat/internal/model"
)

var (
	ErrNoSynapses       = errors.New("genome has no synapses")
	ErrNoNeurons        = errors.New("genome has no neurons")
	ErrSynapseExists    = errors.New("synapse already exists")
	ErrNoMutationChoice = errors.New("no mutation choice available")
)

// DefaultActivations are the functions AddRandomNeuron draws from.
var DefaultActivations = []string{"identity", "relu", "tanh", "sigmoid"}

// PerturbRandomWeight mutates a random synapse using uniform delta in [-MaxDelta, MaxDelta].
type PerturbRandomWeight struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomWeight) Name() string {
	return "perturb_random_weight"
}

func (o *PerturbRandomWeight) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.MaxDelta <= 0 {
		return model.Genome{}, errors.New("max delta must be > 0")
	}

	idx := o.Rand.Intn(len(genome.Synapses))
	delta := (o.Rand.Float64()*2 - 1) * o.MaxDelta

	mutated := genome.Clone()
	mutated.Synapses[idx].Weight += delta
	return mutated, nil
}

// PerturbRandomBias mutates the bias of a random non-input neuron.
type PerturbRandomBias struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomBias) Name() string {
	return "perturb_random_bias"
}

func (o *PerturbRandomBias) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	candidates := nonInputNeurons(genome)
	if len(candidates) == 0 {
		return model.Genome{}, ErrNoNeurons
	}
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.MaxDelta <= 0 {
		return model.Genome{}, errors.New("max delta must be > 0")
	}

	idx := candidates[o.Rand.Intn(len(candidates))]
	delta := (o.Rand.Float64()*2 - 1) * o.MaxDelta

	mutated := genome.Clone()
	mutated.Neurons[idx].Bias += delta
	return mutated, nil
}

// ToggleRandomSynapse flips the enabled flag of a random synapse. Enabling
// never introduces a cycle because disabled synapses are kept acyclic too.
type ToggleRandomSynapse struct {
	Rand *rand.Rand
}

func (o *ToggleRandomSynapse) Name() string {
	return "toggle_random_synapse"
}

func (o *ToggleRandomSynapse) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	idx := o.Rand.Intn(len(genome.Synapses))
	mutated := genome.Clone()
	mutated.Synapses[idx].Enabled = !mutated.Synapses[idx].Enabled
	return mutated, nil
}

// AddRandomSynapse connects two unconnected neurons with a uniform weight in
// [-MaxAbsWeight, MaxAbsWeight]. Only links that keep the genome acyclic and
// do not feed an input neuron are candidates.
type AddRandomSynapse struct {
	Rand         *rand.Rand
	MaxAbsWeight float64
}

func (o *AddRandomSynapse) Name() string {
	return "add_random_synapse"
}

func (o *AddRandomSynapse) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if len(genome.Neurons) == 0 {
		return model.Genome{}, ErrNoNeurons
	}
	if o.MaxAbsWeight <= 0 {
		return model.Genome{}, errors.New("max abs weight must be > 0")
	}

	type pair struct {
		from string
		to   string
	}
	inputs := toIDSet(genome.Inputs)
	adjacency := successors(genome)
	candidates := make([]pair, 0, len(genome.Neurons))
	for _, to := range genome.Neurons {
		if _, ok := inputs[to.ID]; ok {
			continue
		}
		// Any neuron reachable from `to` would close a cycle.
		downstream := reachable(adjacency, to.ID)
		for _, from := range genome.Neurons {
			if from.ID == to.ID || hasDirectedSynapse(genome, from.ID, to.ID) {
				continue
			}
			if _, cycle := downstream[from.ID]; cycle {
				continue
			}
			candidates = append(candidates, pair{from: from.ID, to: to.ID})
		}
	}
	if len(candidates) == 0 {
		return model.Genome{}, ErrSynapseExists
	}
	selected := candidates[o.Rand.Intn(len(candidates))]
	id := uniqueSynapseID(genome, o.Rand)
	weight := (o.Rand.Float64()*2 - 1) * o.MaxAbsWeight

	mutated := genome.Clone()
	mutated.Synapses = append(mutated.Synapses, model.Synapse{
		ID:      id,
		From:    selected.from,
		To:      selected.to,
		Weight:  weight,
		Enabled: true,
	})
	return mutated, nil
}

// AddRandomNeuron inserts a neuron by splitting a random enabled synapse.
// The incoming half gets weight 1 and the outgoing half keeps the old
// weight, so the split starts close to the original behaviour.
type AddRandomNeuron struct {
	Rand        *rand.Rand
	Activations []string
}

func (o *AddRandomNeuron) Name() string {
	return "add_random_neuron"
}

func (o *AddRandomNeuron) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	candidates := make([]int, 0, len(genome.Synapses))
	for i, s := range genome.Synapses {
		if s.Enabled {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}
	activations := o.Activations
	if len(activations) == 0 {
		activations = DefaultActivations
	}

	idx := candidates[o.Rand.Intn(len(candidates))]
	activation := activations[o.Rand.Intn(len(activations))]
	neuronID := uniqueNeuronID(genome, o.Rand)

	mutated := genome.Clone()
	target := mutated.Synapses[idx]
	mutated.Synapses[idx].Enabled = false
	mutated.Neurons = append(mutated.Neurons, model.Neuron{ID: neuronID, Activation: activation})
	mutated.Synapses = append(mutated.Synapses, model.Synapse{
		ID:      uniqueSynapseID(mutated, o.Rand),
		From:    target.From,
		To:      neuronID,
		Weight:  1,
		Enabled: true,
	})
	mutated.Synapses = append(mutated.Synapses, model.Synapse{
		ID:      uniqueSynapseID(mutated, o.Rand),
		From:    neuronID,
		To:      target.To,
		Weight:  target.Weight,
		Enabled: true,
	})
	return mutated, nil
}

// DefaultMutationPolicy favours parametric changes over structural ones.
func DefaultMutationPolicy(rng *rand.Rand, maxDelta float64) []WeightedMutation {
	return []WeightedMutation{
		{Operator: &PerturbRandomWeight{Rand: rng, MaxDelta: maxDelta}, Weight: 0.6},
		{Operator: &PerturbRandomBias{Rand: rng, MaxDelta: maxDelta}, Weight: 0.2},
		{Operator: &AddRandomSynapse{Rand: rng, MaxAbsWeight: 1}, Weight: 0.1},
		{Operator: &AddRandomNeuron{Rand: rng}, Weight: 0.05},
		{Operator: &ToggleRandomSynapse{Rand: rng}, Weight: 0.05},
	}
}

func nonInputNeurons(g model.Genome) []int {
	inputs := toIDSet(g.Inputs)
	out := make([]int, 0, len(g.Neurons))
	for i, n := range g.Neurons {
		if _, ok := inputs[n.ID]; !ok {
			out = append(out, i)
		}
	}
	return out
}

func successors(g model.Genome) map[string][]string {
	out := make(map[string][]string, len(g.Neurons))
	for _, s := range g.Synapses {
		out[s.From] = append(out[s.From], s.To)
	}
	return out
}

func reachable(adjacency map[string][]string, start string) map[string]struct{} {
	seen := map[string]struct{}{start: {}}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adjacency[id] {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return seen
}

func hasDirectedSynapse(g model.Genome, from, to string) bool {
	for _, s := range g.Synapses {
		if s.From == from && s.To == to {
			return true
		}
	}
	return false
}

func hasSynapse(g model.Genome, id string) bool {
	for _, s := range g.Synapses {
		if s.ID == id {
			return true
		}
	}
	return false
}

func hasNeuron(g model.Genome, id string) bool {
	for _, n := range g.Neurons {
		if n.ID == id {
			return true
		}
	}
	return false
}

func uniqueSynapseID(g model.Genome, rng *rand.Rand) string {
	for {
		candidate := fmt.Sprintf("srand-%d", rng.Int63())
		if !hasSynapse(g, candidate) {
			return candidate
		}
	}
}

func uniqueNeuronID(g model.Genome, rng *rand.Rand) string {
	for {
		candidate := fmt.Sprintf("nrand-%d", rng.Int63())
		if !hasNeuron(g, candidate) {
			return candidate
		}
	}
}

func toIDSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
