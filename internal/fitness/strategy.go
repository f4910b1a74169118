package fitness

import (
	"errors"
	"fmt"

	"trajneat/internal/config"
)

// ErrNotImplemented marks strategies that exist by name but have no
// combination function.
var ErrNotImplemented = errors.New("fitness strategy not implemented")

// Strategy is the closed set of ways the per-genome signals combine into the
// evolutionary fitness.
type Strategy int

const (
	Normal Strategy = iota
	Novelty
	Same
	ForceLength
	ForceLengthSum
	VarianceBonus
	NormalDirection
	NormalDirectionFive
	NormalDirectionTen
	NormalDirectionFifteen
	NormalDirectionTwenty
	DirectionNormal
	NormalDirectionDivision
	NormalSeparation
	NormalBoth
	MultiObjective
	MixMultiplication
	MixWeighted
	MixInverse
)

var strategyNames = map[Strategy]string{
	Normal:                  "normal",
	Novelty:                 "novelty",
	Same:                    "same",
	ForceLength:             "force_length",
	ForceLengthSum:          "force_length_sum",
	VarianceBonus:           "variance",
	NormalDirection:         "normal_direction",
	NormalDirectionFive:     "normal_direction_five",
	NormalDirectionTen:      "normal_direction_ten",
	NormalDirectionFifteen:  "normal_direction_fifteen",
	NormalDirectionTwenty:   "normal_direction_twenty",
	DirectionNormal:         "direction_normal",
	NormalDirectionDivision: "normal_direction_division",
	NormalSeparation:        "normal_separation",
	NormalBoth:              "normal_both",
	MultiObjective:          "moo",
	MixMultiplication:       "mix_multiplication",
	MixWeighted:             "mix_weighted",
	MixInverse:              "mix_inverse",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, config.Errorf("unknown fitness strategy: %s", name)
}

// NeedsNovelty reports whether Combine reads the novelty score.
func (s Strategy) NeedsNovelty() bool {
	switch s {
	case Novelty, Same, ForceLength, ForceLengthSum:
		return true
	default:
		return false
	}
}

// Input carries every per-genome signal a strategy may combine.
type Input struct {
	Real       float64
	Novelty    float64
	Variance   float64
	Diversity  float64
	Direction  float64
	MeanLength float64
}

// Combine applies the strategy. maxFitness is the best single-surface score.
func (s Strategy) Combine(in Input, maxFitness float64) (float64, error) {
	maxTotal := 3 * maxFitness
	realScore := Convert(penaltyFloor, maxTotal, 0, 100, in.Real)
	noveltyScore := Convert(0, 1000, 1, 100, in.Novelty)
	lengthScore := Convert(0, 5000, 1, 100, in.MeanLength)
	directionScore := Convert(0, 12, 1, maxFitness, in.Direction)

	switch s {
	case Normal:
		return in.Real, nil
	case Novelty:
		return in.Novelty, nil
	case Same:
		return realScore * noveltyScore, nil
	case ForceLength:
		return realScore * noveltyScore * lengthScore, nil
	case ForceLengthSum:
		return realScore + noveltyScore + lengthScore, nil
	case VarianceBonus:
		return in.Real + in.Variance, nil
	case NormalDirection:
		return in.Real + directionScore, nil
	case NormalDirectionFive:
		return in.Real + 5*directionScore, nil
	case NormalDirectionTen:
		return in.Real + 10*directionScore, nil
	case NormalDirectionFifteen:
		return in.Real + 15*directionScore, nil
	case NormalDirectionTwenty:
		return in.Real + 20*directionScore, nil
	case DirectionNormal:
		if directionScore > 125 {
			return directionScore + in.Real, nil
		}
		return directionScore, nil
	case NormalDirectionDivision:
		return (in.Real + directionScore) / 4, nil
	case NormalSeparation:
		return in.Real + in.Diversity, nil
	case NormalBoth:
		return in.Real + Convert(1, 8, 1, maxFitness, in.Direction) + in.Diversity, nil
	case MultiObjective, MixMultiplication, MixWeighted, MixInverse:
		return 0, fmt.Errorf("%w: %s", ErrNotImplemented, s)
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotImplemented, s)
	}
}

// MaxPossible is the best fitness the strategy can produce, or false when it
// has no fixed upper bound.
func (s Strategy) MaxPossible(maxFitness float64) (float64, bool) {
	switch s {
	case Same:
		return 100 * 100, true
	case ForceLength:
		return 100 * 100 * 100, true
	case ForceLengthSum:
		return 100 + 100 + 100, true
	case Novelty, VarianceBonus, MultiObjective, MixMultiplication, MixWeighted, MixInverse:
		return 0, false
	default:
		return 3 * maxFitness, true
	}
}
