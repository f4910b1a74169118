package evo

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"trajneat/internal/config"
	"trajneat/internal/model"
	"trajneat/internal/nn"
	"trajneat/internal/storage"
)

func rankedOf(fitness ...float64) []ScoredGenome {
	out := make([]ScoredGenome, len(fitness))
	for i, f := range fitness {
		out[i] = ScoredGenome{Genome: model.Genome{ID: string(rune('a' + i))}, Fitness: f}
	}
	return out
}

func TestEliteSelectorPicksFromTop(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ranked := rankedOf(9, 8, 7, 6, 5)
	for i := 0; i < 100; i++ {
		g, err := EliteSelector{}.PickParent(rng, ranked, 2)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if g.ID != "a" && g.ID != "b" {
			t.Fatalf("picked outside elite set: %s", g.ID)
		}
	}
	if _, err := (EliteSelector{}).PickParent(rng, ranked, 6); err == nil {
		t.Fatal("expected invalid elite count error")
	}
	if _, err := (EliteSelector{}).PickParent(nil, ranked, 1); err == nil {
		t.Fatal("expected random source error")
	}
}

func TestTournamentSelectorStaysInPool(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ranked := rankedOf(9, 8, 7, 6, 5, 4)
	sel := TournamentSelector{PoolSize: 3, TournamentSize: 2}
	for i := 0; i < 100; i++ {
		g, err := sel.PickParent(rng, ranked, 1)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if g.ID > "c" {
			t.Fatalf("picked outside pool: %s", g.ID)
		}
	}
}

func TestSelectorByName(t *testing.T) {
	for name, want := range map[string]string{"": "elite", "elite": "elite", "tournament": "tournament"} {
		sel, err := SelectorByName(name)
		if err != nil || sel.Name() != want {
			t.Fatalf("selector %q: got=%v err=%v want=%s", name, sel, err, want)
		}
	}
	if _, err := SelectorByName("roulette"); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestSeedGenomeIsFullyConnected(t *testing.T) {
	g := SeedGenome(rand.New(rand.NewSource(3)), "seed", 4, 3)
	if len(g.Synapses) != 12 || len(g.Inputs) != 4 || len(g.Outputs) != 3 {
		t.Fatalf("unexpected shape: synapses=%d inputs=%d outputs=%d", len(g.Synapses), len(g.Inputs), len(g.Outputs))
	}
	for _, s := range g.Synapses {
		if s.Weight < -1 || s.Weight > 1 || !s.Enabled {
			t.Fatalf("bad seed synapse: %+v", s)
		}
	}
	net, err := nn.Compile(g)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if net.NumInputs() != 4 || net.NumOutputs() != 3 {
		t.Fatalf("network io: got=%d/%d want=4/3", net.NumInputs(), net.NumOutputs())
	}

	pop := SeedPopulation(rand.New(rand.NewSource(3)), 5, 2, 2)
	ids := make(map[string]struct{}, len(pop))
	for _, g := range pop {
		ids[g.ID] = struct{}{}
	}
	if len(ids) != 5 {
		t.Fatalf("seed ids not unique: %v", ids)
	}
}

func TestStoreCheckpointerInterval(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	cp := StoreCheckpointer{Store: store, Every: 3}
	for gen := 0; gen < 5; gen++ {
		err := cp.Checkpoint(ctx, model.Checkpoint{
			RunID:      "run",
			Generation: gen,
			Population: []model.Genome{linearGenome("g", float64(gen))},
			NextID:     gen,
		})
		if err != nil {
			t.Fatalf("checkpoint %d: %v", gen, err)
		}
	}
	latest, ok, err := cp.Restore(ctx, "run")
	if err != nil || !ok {
		t.Fatalf("restore: ok=%v err=%v", ok, err)
	}
	if latest.Generation != 3 || latest.ID == "" || latest.CreatedAt.IsZero() {
		t.Fatalf("unexpected checkpoint: %+v", latest)
	}

	disabled := StoreCheckpointer{Store: store}
	if err := disabled.Checkpoint(ctx, model.Checkpoint{RunID: "other"}); err != nil {
		t.Fatalf("disabled checkpoint: %v", err)
	}
	if _, ok, _ := disabled.Restore(ctx, "other"); ok {
		t.Fatal("disabled checkpointer should not save")
	}
}
