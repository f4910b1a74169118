// Package nn turns genomes into feed-forward policies.
package nn

import (
	"errors"
	"fmt"

	"trajneat/internal/model"
)

var (
	ErrCycle        = errors.New("genome is not feed-forward")
	ErrInputSize    = errors.New("input size mismatch")
	ErrUnknownInput = errors.New("unknown neuron reference")
)

// Forward evaluates the genome once. Neurons listed in inputByNeuron keep
// their given value; every other neuron is evaluated in topological order.
func Forward(genome model.Genome, inputByNeuron map[string]float64) (map[string]float64, error) {
	net, err := Compile(genome)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(net.ids))
	fixed := make([]bool, len(net.ids))
	for id, v := range inputByNeuron {
		i, ok := net.index[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownInput, id)
		}
		values[i] = v
		fixed[i] = true
	}
	net.run(values, fixed)

	out := make(map[string]float64, len(values))
	for i, id := range net.ids {
		out[id] = values[i]
	}
	return out, nil
}

type link struct {
	from   int
	weight float64
}

type node struct {
	index    int
	bias     float64
	fn       ActivationFunc
	incoming []link
}

// Network is a compiled genome. It is stateless and safe for concurrent use.
type Network struct {
	ids     []string
	index   map[string]int
	order   []node
	inputs  []int
	outputs []int
}

// Compile resolves activations and orders neurons so every enabled synapse
// points forward. Input neurons are never evaluated.
func Compile(genome model.Genome) (*Network, error) {
	net := &Network{
		ids:   make([]string, len(genome.Neurons)),
		index: make(map[string]int, len(genome.Neurons)),
	}
	for i, n := range genome.Neurons {
		if _, dup := net.index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate neuron %s", n.ID)
		}
		net.ids[i] = n.ID
		net.index[n.ID] = i
	}
	resolve := func(ids []string) ([]int, error) {
		out := make([]int, len(ids))
		for i, id := range ids {
			idx, ok := net.index[id]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownInput, id)
			}
			out[i] = idx
		}
		return out, nil
	}
	var err error
	if net.inputs, err = resolve(genome.Inputs); err != nil {
		return nil, err
	}
	if net.outputs, err = resolve(genome.Outputs); err != nil {
		return nil, err
	}

	isInput := make([]bool, len(genome.Neurons))
	for _, i := range net.inputs {
		isInput[i] = true
	}
	incoming := make([][]link, len(genome.Neurons))
	indegree := make([]int, len(genome.Neurons))
	outgoing := make([][]int, len(genome.Neurons))
	for _, s := range genome.Synapses {
		if !s.Enabled {
			continue
		}
		from, ok := net.index[s.From]
		if !ok {
			return nil, fmt.Errorf("synapse %s: %w: %s", s.ID, ErrUnknownInput, s.From)
		}
		to, ok := net.index[s.To]
		if !ok {
			return nil, fmt.Errorf("synapse %s: %w: %s", s.ID, ErrUnknownInput, s.To)
		}
		if isInput[to] {
			continue
		}
		incoming[to] = append(incoming[to], link{from: from, weight: s.Weight})
		indegree[to]++
		outgoing[from] = append(outgoing[from], to)
	}

	// Kahn's algorithm, seeded in genome order for a stable evaluation order.
	queue := make([]int, 0, len(genome.Neurons))
	for i := range genome.Neurons {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	visited := 0
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		visited++
		if !isInput[i] {
			fn, err := GetActivation(genome.Neurons[i].Activation)
			if err != nil {
				return nil, fmt.Errorf("neuron %s: %w", genome.Neurons[i].ID, err)
			}
			net.order = append(net.order, node{index: i, bias: genome.Neurons[i].Bias, fn: fn, incoming: incoming[i]})
		}
		for _, to := range outgoing[i] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	if visited != len(genome.Neurons) {
		return nil, ErrCycle
	}
	return net, nil
}

func (n *Network) NumInputs() int  { return len(n.inputs) }
func (n *Network) NumOutputs() int { return len(n.outputs) }

// Activate implements the rollout policy signature.
func (n *Network) Activate(input []float64) ([]float64, error) {
	if len(input) != len(n.inputs) {
		return nil, fmt.Errorf("%w: got=%d want=%d", ErrInputSize, len(input), len(n.inputs))
	}
	values := make([]float64, len(n.ids))
	fixed := make([]bool, len(n.ids))
	for i, idx := range n.inputs {
		values[idx] = input[i]
		fixed[idx] = true
	}
	n.run(values, fixed)

	out := make([]float64, len(n.outputs))
	for i, idx := range n.outputs {
		out[i] = values[idx]
	}
	return out, nil
}

func (n *Network) run(values []float64, fixed []bool) {
	for _, nd := range n.order {
		if fixed[nd.index] {
			continue
		}
		total := nd.bias
		for _, l := range nd.incoming {
			total += values[l.from] * l.weight
		}
		values[nd.index] = nd.fn(total)
	}
}
