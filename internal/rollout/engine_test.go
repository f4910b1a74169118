package rollout

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"trajneat/internal/field"
	"trajneat/internal/model"
)

type fakeField struct {
	w, h    int
	quality func(p model.Point) uint8
}

func (f fakeField) InBounds(p model.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < f.w && p.Y < f.h
}

func (f fakeField) IsOnRoad(p model.Point) bool {
	return f.InBounds(p) && f.quality(p) > 0
}

func (f fakeField) Quality(p model.Point) (uint8, error) {
	if !f.InBounds(p) {
		return 0, field.ErrOutOfBounds
	}
	return f.quality(p), nil
}

func (f fakeField) NormalizedAttraction(p model.Point, dst []float64) error {
	for i := range dst[:f.NumCategories()] {
		dst[i] = float64(p.X+i) / 100
	}
	return nil
}

func (f fakeField) NumCategories() int { return 2 }

func openField(w, h int) fakeField {
	return fakeField{w: w, h: h, quality: func(model.Point) uint8 { return 100 }}
}

func newEngine(t *testing.T, f Field, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(f, []model.Point{{X: 2, Y: 0}, {X: 5, Y: 5}}, cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func constant(values ...float64) Policy {
	return PolicyFunc(func([]float64) ([]float64, error) {
		return append([]float64(nil), values...), nil
	})
}

func oneHot(action int) []float64 {
	out := make([]float64, NumActions)
	out[action] = 1
	return out
}

var defaultCfg = Config{StepLimit: 5000, QualityThreshold: 40}

func TestAllZeroPolicyStopsWithPathLengthOne(t *testing.T) {
	e := newEngine(t, openField(10, 10), defaultCfg)
	traj, err := e.Run(constant(make([]float64, NumActions)...), model.Point{X: 5, Y: 5}, ConditioningFor(0, 1), rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(traj.Points) != 1 || traj.Steps != 1 {
		t.Fatalf("unexpected path length: points=%d steps=%d", len(traj.Points), traj.Steps)
	}
	if traj.Reason != ReasonZeroOutput {
		t.Fatalf("unexpected reason: got=%s want=%s", traj.Reason, ReasonZeroOutput)
	}
	if traj.Points[0] != (model.Point{X: 5, Y: 5}) {
		t.Fatalf("unexpected start: %s", traj.Points[0])
	}
}

func TestStopActionTerminates(t *testing.T) {
	e := newEngine(t, openField(10, 10), defaultCfg)
	traj, err := e.Run(constant(oneHot(StopAction)...), model.Point{X: 5, Y: 5}, ConditioningFor(0, 1), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if traj.Reason != ReasonStop || len(traj.Points) != 1 || traj.Histogram[StopAction] != 1 {
		t.Fatalf("unexpected stop trajectory: %+v", traj)
	}
}

func TestLeavingTheMapTerminatesOnQuality(t *testing.T) {
	e := newEngine(t, openField(10, 10), defaultCfg)
	traj, err := e.Run(constant(oneHot(1)...), model.Point{X: 2, Y: 0}, ConditioningFor(0, 1), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if traj.Reason != ReasonLowQuality {
		t.Fatalf("unexpected reason: %s", traj.Reason)
	}
	if len(traj.Points) != 10 || traj.Points[9] != (model.Point{X: 2, Y: 9}) {
		t.Fatalf("unexpected path: %v", traj.Points)
	}
	if traj.Histogram[1] != 10 {
		t.Fatalf("unexpected histogram: %v", traj.Histogram)
	}
}

func TestLowQualityTerminatesBeforeMoving(t *testing.T) {
	f := fakeField{w: 10, h: 10, quality: func(p model.Point) uint8 {
		if p.X == 4 {
			return 39
		}
		return 100
	}}
	e := newEngine(t, f, defaultCfg)
	// Direction 7 moves towards lower x.
	traj, err := e.Run(constant(oneHot(7)...), model.Point{X: 6, Y: 3}, ConditioningFor(0, 1), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []model.Point{{X: 6, Y: 3}, {X: 5, Y: 3}}
	if !reflect.DeepEqual(traj.Points, want) || traj.Reason != ReasonLowQuality {
		t.Fatalf("unexpected trajectory: points=%v reason=%s", traj.Points, traj.Reason)
	}
}

func TestStepLimitBoundsEveryRollout(t *testing.T) {
	cfg := Config{StepLimit: 20, QualityThreshold: 40}
	e := newEngine(t, openField(10, 10), cfg)
	step := 0
	bounce := PolicyFunc(func([]float64) ([]float64, error) {
		step++
		if step%2 == 1 {
			return oneHot(1), nil
		}
		return oneHot(5), nil
	})
	traj, err := e.Run(bounce, model.Point{X: 5, Y: 5}, ConditioningFor(0, 1), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if traj.Reason != ReasonStepLimit || traj.Steps != cfg.StepLimit+1 {
		t.Fatalf("unexpected step limit outcome: reason=%s steps=%d", traj.Reason, traj.Steps)
	}

	uniform := constant(1, 1, 1, 1, 1, 1, 1, 1, 0.5)
	for seed := int64(0); seed < 50; seed++ {
		traj, err := e.Run(uniform, model.Point{X: 5, Y: 5}, ConditioningFor(0, 1), rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("run seed %d: %v", seed, err)
		}
		if traj.Steps > cfg.StepLimit+1 || traj.Steps != len(traj.Points) {
			t.Fatalf("seed %d: steps=%d points=%d", seed, traj.Steps, len(traj.Points))
		}
	}
}

func TestSeededTieBreakIsReproducible(t *testing.T) {
	e := newEngine(t, openField(30, 30), Config{StepLimit: 200, QualityThreshold: 40})
	uniform := constant(1, 1, 1, 1, 1, 1, 1, 1, 1)
	run := func() Trajectory {
		traj, err := e.Run(uniform, model.Point{X: 15, Y: 15}, ConditioningFor(3, 10), rand.New(rand.NewSource(42)))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return traj
	}
	a, b := run(), run()
	if !reflect.DeepEqual(a.Points, b.Points) || a.Reason != b.Reason {
		t.Fatalf("identical seeds produced different rollouts: %v vs %v", a.Points, b.Points)
	}
}

func TestUniformPolicyStopsWhenTieBreakDrawsStop(t *testing.T) {
	// The first rng draw of a rollout is the tie-break among all nine actions.
	var stopSeed, moveSeed int64 = -1, -1
	for s := int64(1); s < 1000 && (stopSeed < 0 || moveSeed < 0); s++ {
		if rand.New(rand.NewSource(s)).Intn(NumActions) == StopAction {
			if stopSeed < 0 {
				stopSeed = s
			}
		} else if moveSeed < 0 {
			moveSeed = s
		}
	}
	if stopSeed < 0 || moveSeed < 0 {
		t.Fatalf("no suitable seeds: stop=%d move=%d", stopSeed, moveSeed)
	}

	e := newEngine(t, openField(30, 30), Config{StepLimit: 200, QualityThreshold: 40})
	uniform := constant(0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5)
	start := model.Point{X: 15, Y: 15}

	traj, err := e.Run(uniform, start, ConditioningFor(0, 1), rand.New(rand.NewSource(stopSeed)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(traj.Points) != 1 || traj.Reason != ReasonStop || traj.Histogram[StopAction] != 1 {
		t.Fatalf("seed %d: got points=%v reason=%s want a single point stopped", stopSeed, traj.Points, traj.Reason)
	}

	traj, err = e.Run(uniform, start, ConditioningFor(0, 1), rand.New(rand.NewSource(moveSeed)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(traj.Points) < 2 || traj.Histogram[StopAction] > 1 {
		t.Fatalf("seed %d: expected the first step to move: points=%v", moveSeed, traj.Points)
	}
}

func TestTieFirstPicksLowestIndex(t *testing.T) {
	e := newEngine(t, openField(10, 10), Config{StepLimit: 3, QualityThreshold: 40, TieBreak: TieFirst})
	traj, err := e.Run(constant(1, 1, 1, 1, 1, 1, 1, 1, 1), model.Point{X: 5, Y: 5}, ConditioningFor(0, 1), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Direction 0 is (-1, +1).
	want := []model.Point{{X: 5, Y: 5}, {X: 4, Y: 6}, {X: 3, Y: 7}, {X: 2, Y: 8}}
	if !reflect.DeepEqual(traj.Points, want) {
		t.Fatalf("unexpected path: got=%v want=%v", traj.Points, want)
	}
}

func TestInputVectorLayout(t *testing.T) {
	e := newEngine(t, openField(10, 10), defaultCfg)
	var seen []float64
	recorder := PolicyFunc(func(in []float64) ([]float64, error) {
		seen = append([]float64(nil), in...)
		return oneHot(StopAction), nil
	})
	cond := ConditioningFor(2, 10)
	if _, err := e.Run(recorder, model.Point{X: 0, Y: 0}, cond, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(seen) != e.InputSize() || len(seen) != 8*2+9+6 {
		t.Fatalf("unexpected input size: got=%d want=%d", len(seen), 8*2+9+6)
	}
	// From the origin only directions 1 (0,+1), 2 (+1,+1) and 3 (+1,0) are on the map.
	onMap := map[int]model.Point{1: {X: 0, Y: 1}, 2: {X: 1, Y: 1}, 3: {X: 1, Y: 0}}
	for d := 0; d < NumDirections; d++ {
		flag := seen[16+d]
		slot := seen[d*2 : d*2+2]
		if n, ok := onMap[d]; ok {
			if flag != 1 || slot[0] != float64(n.X)/100 || slot[1] != float64(n.X+1)/100 {
				t.Fatalf("direction %d: flag=%v slot=%v", d, flag, slot)
			}
			continue
		}
		if flag != Sentinel || slot[0] != Sentinel || slot[1] != Sentinel {
			t.Fatalf("direction %d should be sentinel: flag=%v slot=%v", d, flag, slot)
		}
	}
	if seen[24] != 0 {
		t.Fatalf("step clock at start: got=%v want=0", seen[24])
	}
	if !reflect.DeepEqual(seen[25:], cond) {
		t.Fatalf("conditioning tail: got=%v want=%v", seen[25:], cond)
	}
}

type resettable struct {
	resets int
}

func (r *resettable) Activate([]float64) ([]float64, error) { return oneHot(StopAction), nil }
func (r *resettable) Reset()                                { r.resets++ }

func TestResetterCalledOnTermination(t *testing.T) {
	e := newEngine(t, openField(10, 10), defaultCfg)
	p := &resettable{}
	for i := 0; i < 3; i++ {
		if _, err := e.Generate(p, i, 3, rand.New(rand.NewSource(1))); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	if p.resets != 3 {
		t.Fatalf("unexpected reset count: got=%d want=3", p.resets)
	}
}

func TestOutOfBoundsStartAndBadPolicy(t *testing.T) {
	e := newEngine(t, openField(10, 10), defaultCfg)
	if _, err := e.Run(constant(oneHot(0)...), model.Point{X: 10, Y: 0}, ConditioningFor(0, 1), nil); !errors.Is(err, field.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := e.Run(constant(1, 2, 3), model.Point{X: 1, Y: 1}, ConditioningFor(0, 1), nil); err == nil {
		t.Fatal("expected error for short policy output")
	}
	if _, err := NewEngine(openField(2, 2), nil, defaultCfg); !errors.Is(err, ErrNoStartPoints) {
		t.Fatalf("expected ErrNoStartPoints, got %v", err)
	}
}

func TestStartPointSelection(t *testing.T) {
	e := newEngine(t, openField(10, 10), defaultCfg)
	if got := e.StartPoint(3, nil); got != (model.Point{X: 5, Y: 5}) {
		t.Fatalf("deterministic start wraps: got=%s", got)
	}
	random := newEngine(t, openField(10, 10), Config{StepLimit: 10, RandomStart: true})
	a := random.StartPoint(0, rand.New(rand.NewSource(9)))
	b := random.StartPoint(0, rand.New(rand.NewSource(9)))
	if a != b {
		t.Fatalf("random start must be seeded: %s vs %s", a, b)
	}
}

func TestConditioningVectors(t *testing.T) {
	ext := Extended()
	if len(ext) != 30 {
		t.Fatalf("unexpected extended size: got=%d want=30", len(ext))
	}
	seen := map[string]struct{}{}
	for _, v := range ext {
		seen[permKey(v)] = struct{}{}
	}
	if len(seen) != 30 {
		t.Fatalf("extended vectors are not unique: %d", len(seen))
	}
	if got := ConditioningFor(11, 10); !reflect.DeepEqual(got, Predefined()[1]) {
		t.Fatalf("short list must wrap: got=%v", got)
	}
	if got := ConditioningFor(12, 30); !reflect.DeepEqual(got, ext[12]) {
		t.Fatalf("more than ten rollouts use the extended list: got=%v", got)
	}
	got := ConditioningFor(0, 5)
	got[0] = 99
	if Predefined()[0][0] == 99 {
		t.Fatal("conditioning vectors must be copies")
	}
}
