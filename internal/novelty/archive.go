// Package novelty keeps the behaviour archive and computes k-nearest-neighbour
// novelty scores over behaviour descriptors.
package novelty

import (
	"math/rand"

	"trajneat/internal/model"
)

// Individual is what the archive needs from one member of a generation.
type Individual struct {
	Fitness  float64
	Behavior model.Behavior
}

// Archive is an ordered, optionally bounded collection of behaviour
// snapshots. Entries never change after insertion; the oldest entry is
// evicted when the archive grows past its capacity.
type Archive struct {
	maxSize int
	probAdd float64
	rng     *rand.Rand
	items   []model.Behavior
}

// NewArchive returns an empty archive. maxSize <= 0 means unbounded.
func NewArchive(maxSize int, probAdd float64, rng *rand.Rand) *Archive {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Archive{maxSize: maxSize, probAdd: probAdd, rng: rng}
}

func (a *Archive) MaxSize() int     { return a.maxSize }
func (a *Archive) ProbAdd() float64 { return a.probAdd }
func (a *Archive) Len() int         { return len(a.items) }

// Update draws u from [0, 1) and, when u < probAdd, admits the behaviour of
// the highest-fitness individual of the batch. It reports whether an entry
// was admitted. Ties go to the earliest individual.
func (a *Archive) Update(batch []Individual) bool {
	u := a.rng.Float64()
	if len(batch) == 0 {
		return false
	}
	best := 0
	for i := 1; i < len(batch); i++ {
		if batch[i].Fitness > batch[best].Fitness {
			best = i
		}
	}
	if u >= a.probAdd {
		return false
	}
	a.Insert(batch[best].Behavior)
	return true
}

// Insert appends a deep copy of b, evicting the oldest entry when the
// archive is over capacity.
func (a *Archive) Insert(b model.Behavior) {
	a.items = append(a.items, b.Clone())
	if a.maxSize > 0 && len(a.items) > a.maxSize {
		a.items = append(a.items[:0], a.items[1:]...)
	}
}

// At returns a copy of entry i.
func (a *Archive) At(i int) model.Behavior {
	return a.items[i].Clone()
}

// Items returns deep copies of every entry, oldest first.
func (a *Archive) Items() []model.Behavior {
	out := make([]model.Behavior, len(a.items))
	for i, b := range a.items {
		out[i] = b.Clone()
	}
	return out
}

func (a *Archive) Clear() {
	a.items = nil
}

// Restore replaces the contents with copies of items, keeping only the
// newest maxSize entries.
func (a *Archive) Restore(items []model.Behavior) {
	a.Clear()
	for _, b := range items {
		a.Insert(b)
	}
}
