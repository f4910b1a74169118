package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Genome struct {
	VersionedRecord
	ID       string    `json:"id"`
	Neurons  []Neuron  `json:"neurons"`
	Synapses []Synapse `json:"synapses"`
	Inputs   []string  `json:"inputs"`
	Outputs  []string  `json:"outputs"`
}

type Neuron struct {
	ID         string  `json:"id"`
	Activation string  `json:"activation"`
	Bias       float64 `json:"bias"`
}

type Synapse struct {
	ID      string  `json:"id"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Weight  float64 `json:"weight"`
	Enabled bool    `json:"enabled"`
}

// Clone returns a deep copy so mutations never alias the parent.
func (g Genome) Clone() Genome {
	out := g
	out.Neurons = append([]Neuron(nil), g.Neurons...)
	out.Synapses = append([]Synapse(nil), g.Synapses...)
	out.Inputs = append([]string(nil), g.Inputs...)
	out.Outputs = append([]string(nil), g.Outputs...)
	return out
}

// Behavior summarizes a trajectory for novelty comparison:
// length, curliness, further distance, distance to middle, distance to end.
type Behavior []float64

const BehaviorSize = 5

func (b Behavior) Clone() Behavior {
	if b == nil {
		return nil
	}
	return append(Behavior(nil), b...)
}

// TrajectoryRecord is one rollout retained in an evaluation bundle.
type TrajectoryRecord struct {
	Points     []Point    `json:"points"`
	Fitness    float64    `json:"fitness"`
	Components [3]float64 `json:"components"`
	Behavior   Behavior   `json:"behavior"`
	Bearing    float64    `json:"bearing"`
	Compass    string     `json:"compass"`
	Reason     string     `json:"reason"`
}

// EvaluationResult is the sole handoff from a genome evaluation to the
// evolutionary loop and the persistence layer.
type EvaluationResult struct {
	Fitness    float64            `json:"fitness"`
	Behavior   Behavior           `json:"behavior"`
	Variance   float64            `json:"variance"`
	Diversity  float64            `json:"diversity"`
	Direction  float64            `json:"direction"`
	MeanLength float64            `json:"mean_length"`
	Bundle     []TrajectoryRecord `json:"bundle,omitempty"`
}

type RunRecord struct {
	VersionedRecord
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Seed      int64     `json:"seed"`
	StartedAt time.Time `json:"started_at"`
	Config    []byte    `json:"config,omitempty"`
}

type GenerationRecord struct {
	RunID       string  `json:"run_id"`
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
	MinFitness  float64 `json:"min_fitness"`
	BestGenome  string  `json:"best_genome"`
	BestRaw     float64 `json:"best_raw"`
	ArchiveSize int     `json:"archive_size"`
	Failures    int     `json:"failures"`
}

type ArchiveSnapshot struct {
	VersionedRecord
	RunID      string     `json:"run_id"`
	Generation int        `json:"generation"`
	Items      []Behavior `json:"items"`
}

// Checkpoint is enough state to resume a run at the start of a generation.
type Checkpoint struct {
	VersionedRecord
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	Generation int        `json:"generation"`
	Population []Genome   `json:"population"`
	Archive    []Behavior `json:"archive"`
	NextID     int        `json:"next_id"`
	CreatedAt  time.Time  `json:"created_at"`
}
