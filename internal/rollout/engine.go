// Package rollout drives a policy step by step over the attraction field and
// records the resulting trajectory.
package rollout

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"trajneat/internal/config"
	"trajneat/internal/field"
	"trajneat/internal/model"
)

const (
	NumDirections = 8
	StopAction    = 8
	NumActions    = 9

	// Sentinel fills input slots of off-road or off-map neighbours.
	Sentinel = -1.0
)

// Policy maps an input vector to NumActions outputs.
type Policy interface {
	Activate(input []float64) ([]float64, error)
}

// Resetter is implemented by stateful policies; Reset is called whenever a
// rollout terminates.
type Resetter interface {
	Reset()
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(input []float64) ([]float64, error)

func (f PolicyFunc) Activate(input []float64) ([]float64, error) { return f(input) }

// Field is the read-only query surface a rollout needs. *field.Server
// implements it.
type Field interface {
	InBounds(p model.Point) bool
	IsOnRoad(p model.Point) bool
	Quality(p model.Point) (uint8, error)
	NormalizedAttraction(p model.Point, dst []float64) error
	NumCategories() int
}

var ErrNoStartPoints = errors.New("no start points")

type TieBreak int

const (
	TieRandom TieBreak = iota
	TieFirst
)

func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "random":
		return TieRandom, nil
	case "first":
		return TieFirst, nil
	default:
		return 0, config.Errorf("unsupported tie break: %s", s)
	}
}

type Config struct {
	StepLimit        int
	QualityThreshold uint8
	RandomStart      bool
	TieBreak         TieBreak
}

func ConfigFrom(c config.RolloutConfig) (Config, error) {
	tie, err := ParseTieBreak(c.TieBreak)
	if err != nil {
		return Config{}, err
	}
	if c.StepLimit <= 0 {
		return Config{}, config.Errorf("rollout step limit must be > 0")
	}
	return Config{
		StepLimit:        c.StepLimit,
		QualityThreshold: c.QualityThreshold,
		RandomStart:      c.RandomStart,
		TieBreak:         tie,
	}, nil
}

type State int

const (
	Advancing State = iota
	Terminated
)

// Reason records which termination condition ended a rollout.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonZeroOutput
	ReasonStop
	ReasonLowQuality
	ReasonStepLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonZeroOutput:
		return "zero_output"
	case ReasonStop:
		return "stop"
	case ReasonLowQuality:
		return "low_quality"
	case ReasonStepLimit:
		return "step_limit"
	default:
		return "none"
	}
}

// Trajectory is the outcome of one rollout. Points[0] is the start point and
// every policy step appends the position it was taken from, so
// len(Points) == Steps.
type Trajectory struct {
	Points    []model.Point
	Outputs   [][]float64
	Steps     int
	Reason    Reason
	Histogram [NumActions]int
}

type Engine struct {
	field  Field
	starts []model.Point
	cfg    Config
}

func NewEngine(f Field, starts []model.Point, cfg Config) (*Engine, error) {
	if len(starts) == 0 {
		return nil, ErrNoStartPoints
	}
	if cfg.StepLimit <= 0 {
		return nil, config.Errorf("rollout step limit must be > 0")
	}
	return &Engine{field: f, starts: append([]model.Point(nil), starts...), cfg: cfg}, nil
}

// InputSize is 8 attraction blocks, 8 road flags, the step clock and the
// conditioning vector.
func (e *Engine) InputSize() int {
	return NumDirections*e.field.NumCategories() + NumDirections + 1 + ConditioningWidth
}

func (e *Engine) Config() Config { return e.cfg }

// StartPoint picks the start of rollout i: index i (wrapping) or uniformly at
// random when RandomStart is set.
func (e *Engine) StartPoint(i int, rng *rand.Rand) model.Point {
	if e.cfg.RandomStart {
		return e.starts[rng.Intn(len(e.starts))]
	}
	return e.starts[i%len(e.starts)]
}

// Generate runs rollout i of total with its start point and conditioning
// vector.
func (e *Engine) Generate(policy Policy, i, total int, rng *rand.Rand) (Trajectory, error) {
	return e.Run(policy, e.StartPoint(i, rng), ConditioningFor(i, total), rng)
}

// Run drives policy from start until a termination condition fires. It
// always returns within StepLimit+1 policy steps.
func (e *Engine) Run(policy Policy, start model.Point, conditioning []float64, rng *rand.Rand) (Trajectory, error) {
	if !e.field.InBounds(start) {
		return Trajectory{}, fmt.Errorf("start %s: %w", start, field.ErrOutOfBounds)
	}
	if len(conditioning) != ConditioningWidth {
		panic(fmt.Sprintf("rollout: conditioning vector has %d values, want %d", len(conditioning), ConditioningWidth))
	}
	w := &walker{
		engine:       e,
		policy:       policy,
		rng:          rng,
		conditioning: conditioning,
		pos:          start,
		input:        make([]float64, e.InputSize()),
	}
	for w.state == Advancing {
		if err := w.step(); err != nil {
			if r, ok := policy.(Resetter); ok {
				r.Reset()
			}
			return Trajectory{}, err
		}
	}
	if r, ok := policy.(Resetter); ok {
		r.Reset()
	}
	w.traj.Steps = len(w.traj.Outputs)
	return w.traj, nil
}

type walker struct {
	engine       *Engine
	policy       Policy
	rng          *rand.Rand
	conditioning []float64
	pos          model.Point
	steps        int
	state        State
	input        []float64
	traj         Trajectory
}

func (w *walker) step() error {
	w.traj.Points = append(w.traj.Points, w.pos)
	if err := w.buildInput(); err != nil {
		return err
	}
	out, err := w.policy.Activate(w.input)
	if err != nil {
		return fmt.Errorf("activate policy: %w", err)
	}
	if len(out) != NumActions {
		return fmt.Errorf("policy returned %d outputs, want %d", len(out), NumActions)
	}
	w.traj.Outputs = append(w.traj.Outputs, append([]float64(nil), out...))

	if allZero(out[:NumDirections]) {
		w.terminate(ReasonZeroOutput)
	} else {
		action := w.choose(out)
		w.traj.Histogram[action]++
		if action == StopAction {
			w.terminate(ReasonStop)
		} else {
			next := w.pos.Add(field.NeighborOffsets[action][0], field.NeighborOffsets[action][1])
			if w.belowThreshold(next) {
				w.terminate(ReasonLowQuality)
			} else {
				w.pos = next
			}
		}
	}

	w.steps++
	if w.state == Advancing && w.steps > w.engine.cfg.StepLimit {
		w.terminate(ReasonStepLimit)
	}
	return nil
}

func (w *walker) terminate(r Reason) {
	w.state = Terminated
	w.traj.Reason = r
}

func (w *walker) belowThreshold(p model.Point) bool {
	if !w.engine.field.InBounds(p) {
		return true
	}
	q, err := w.engine.field.Quality(p)
	return err != nil || q < w.engine.cfg.QualityThreshold
}

func (w *walker) buildInput() error {
	f := w.engine.field
	k := f.NumCategories()
	flags := w.input[NumDirections*k : NumDirections*k+NumDirections]
	for d, off := range field.NeighborOffsets {
		slot := w.input[d*k : (d+1)*k]
		n := w.pos.Add(off[0], off[1])
		if f.InBounds(n) && f.IsOnRoad(n) {
			if err := f.NormalizedAttraction(n, slot); err != nil {
				return err
			}
			flags[d] = 1
			continue
		}
		for i := range slot {
			slot[i] = Sentinel
		}
		flags[d] = Sentinel
	}
	clock := NumDirections*k + NumDirections
	w.input[clock] = math.Min(float64(w.steps)/float64(w.engine.cfg.StepLimit), 1)
	copy(w.input[clock+1:], w.conditioning)
	return nil
}

// choose returns the index of the maximal output. Ties are broken uniformly
// at random with the rollout's rng, or by lowest index under TieFirst.
func (w *walker) choose(out []float64) int {
	best := math.Inf(-1)
	for _, v := range out {
		if v > best {
			best = v
		}
	}
	var ties [NumActions]int
	n := 0
	for i, v := range out {
		if v == best {
			ties[n] = i
			n++
		}
	}
	if n == 0 {
		// Every output is NaN.
		return StopAction
	}
	if n == 1 || w.engine.cfg.TieBreak == TieFirst {
		return ties[0]
	}
	return ties[w.rng.Intn(n)]
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}
