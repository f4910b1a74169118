package nn

import (
	"errors"
	"math"
	"sync"
	"testing"

	"trajneat/internal/model"
)

func TestForwardSimpleFeedForward(t *testing.T) {
	genome := model.Genome{
		Neurons: []model.Neuron{
			{ID: "i1", Activation: "identity"},
			{ID: "i2", Activation: "identity"},
			{ID: "o", Activation: "identity", Bias: 0.5},
		},
		Synapses: []model.Synapse{
			{From: "i1", To: "o", Weight: 2, Enabled: true},
			{From: "i2", To: "o", Weight: -1, Enabled: true},
		},
	}

	values, err := Forward(genome, map[string]float64{"i1": 1.0, "i2": 0.25})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if math.Abs(values["o"]-2.25) > 1e-9 {
		t.Fatalf("unexpected output: got=%f want=2.25", values["o"])
	}
}

func TestForwardUnsupportedActivation(t *testing.T) {
	genome := model.Genome{
		Neurons: []model.Neuron{{ID: "o", Activation: "unknown"}},
	}
	if _, err := Forward(genome, map[string]float64{}); !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected ErrActivationNotFound, got: %v", err)
	}
}

// hidden is listed after the output so evaluation must follow the synapses,
// not the neuron order.
func layeredGenome() model.Genome {
	return model.Genome{
		Neurons: []model.Neuron{
			{ID: "in0", Activation: "identity"},
			{ID: "in1", Activation: "identity"},
			{ID: "out0", Activation: "identity"},
			{ID: "out1", Activation: "relu", Bias: -1},
			{ID: "h", Activation: "identity", Bias: 1},
		},
		Synapses: []model.Synapse{
			{ID: "s1", From: "in0", To: "h", Weight: 1, Enabled: true},
			{ID: "s2", From: "h", To: "out0", Weight: 2, Enabled: true},
			{ID: "s3", From: "in1", To: "out1", Weight: 1, Enabled: true},
			{ID: "s4", From: "in1", To: "out0", Weight: 100, Enabled: false},
		},
		Inputs:  []string{"in0", "in1"},
		Outputs: []string{"out0", "out1"},
	}
}

func TestNetworkActivate(t *testing.T) {
	net, err := Compile(layeredGenome())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if net.NumInputs() != 2 || net.NumOutputs() != 2 {
		t.Fatalf("unexpected shape: in=%d out=%d", net.NumInputs(), net.NumOutputs())
	}
	out, err := net.Activate([]float64{3, 0.5})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if out[0] != 8 || out[1] != 0 {
		t.Fatalf("outputs: got=%v want=[8 0]", out)
	}
	if _, err := net.Activate([]float64{1}); !errors.Is(err, ErrInputSize) {
		t.Fatalf("expected ErrInputSize, got: %v", err)
	}
}

func TestNetworkIsSafeForConcurrentUse(t *testing.T) {
	net, err := Compile(layeredGenome())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(x float64) {
			defer wg.Done()
			out, err := net.Activate([]float64{x, 0})
			if err != nil || out[0] != 2*(x+1) {
				t.Errorf("activate(%v): out=%v err=%v", x, out, err)
			}
		}(float64(i))
	}
	wg.Wait()
}

func TestCompileRejectsInvalidGenomes(t *testing.T) {
	cyclic := layeredGenome()
	cyclic.Synapses = append(cyclic.Synapses, model.Synapse{ID: "loop", From: "out0", To: "h", Weight: 1, Enabled: true})
	if _, err := Compile(cyclic); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got: %v", err)
	}

	disabledLoop := layeredGenome()
	disabledLoop.Synapses = append(disabledLoop.Synapses, model.Synapse{ID: "loop", From: "out0", To: "h", Weight: 1})
	if _, err := Compile(disabledLoop); err != nil {
		t.Fatalf("disabled synapses must not count: %v", err)
	}

	missing := layeredGenome()
	missing.Outputs = append(missing.Outputs, "ghost")
	if _, err := Compile(missing); !errors.Is(err, ErrUnknownInput) {
		t.Fatalf("expected ErrUnknownInput, got: %v", err)
	}

	dangling := layeredGenome()
	dangling.Synapses = append(dangling.Synapses, model.Synapse{ID: "x", From: "ghost", To: "h", Enabled: true})
	if _, err := Compile(dangling); !errors.Is(err, ErrUnknownInput) {
		t.Fatalf("expected ErrUnknownInput for synapse, got: %v", err)
	}
}
