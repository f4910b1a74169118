package evo

import (
	"fmt"
	"math/rand"

	"trajneat/internal/model"
	"trajneat/internal/storage"
)

// SeedGenome builds a fully connected feed-forward genome with no hidden
// neurons and weights drawn uniformly from [-1, 1].
func SeedGenome(rng *rand.Rand, id string, inputs, outputs int) model.Genome {
	g := model.Genome{
		VersionedRecord: storage.CurrentVersion(),
		ID:              id,
		Neurons:         make([]model.Neuron, 0, inputs+outputs),
		Synapses:        make([]model.Synapse, 0, inputs*outputs),
		Inputs:          make([]string, inputs),
		Outputs:         make([]string, outputs),
	}
	for i := 0; i < inputs; i++ {
		g.Inputs[i] = fmt.Sprintf("in-%d", i)
		g.Neurons = append(g.Neurons, model.Neuron{ID: g.Inputs[i], Activation: "identity"})
	}
	for o := 0; o < outputs; o++ {
		g.Outputs[o] = fmt.Sprintf("out-%d", o)
		g.Neurons = append(g.Neurons, model.Neuron{ID: g.Outputs[o], Activation: "tanh"})
	}
	for i := 0; i < inputs; i++ {
		for o := 0; o < outputs; o++ {
			g.Synapses = append(g.Synapses, model.Synapse{
				ID:      fmt.Sprintf("s-%d-%d", i, o),
				From:    g.Inputs[i],
				To:      g.Outputs[o],
				Weight:  rng.Float64()*2 - 1,
				Enabled: true,
			})
		}
	}
	return g
}

// SeedPopulation returns size independent seed genomes.
func SeedPopulation(rng *rand.Rand, size, inputs, outputs int) []model.Genome {
	out := make([]model.Genome, size)
	for i := range out {
		out[i] = SeedGenome(rng, genomeID(0, i), inputs, outputs)
	}
	return out
}

func genomeID(generation, n int) string {
	return fmt.Sprintf("g%d-%d", generation, n)
}
