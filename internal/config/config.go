// Package config holds the immutable run configuration. A Config is built
// once at startup, validated, and then passed by value into every component.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks fatal setup problems: missing data files, malformed
// artifacts or invalid values. Nothing is evaluated once it is returned.
var ErrConfiguration = errors.New("configuration error")

// Errorf wraps ErrConfiguration with context.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

type Config struct {
	DataDir    string          `yaml:"data_dir"`
	OutputDir  string          `yaml:"output_dir"`
	Test       bool            `yaml:"test"`
	Map        MapConfig       `yaml:"map"`
	Grid       GridConfig      `yaml:"grid"`
	Categories []Category      `yaml:"categories"`
	Rollout    RolloutConfig   `yaml:"rollout"`
	Fitness    FitnessConfig   `yaml:"fitness"`
	Novelty    NoveltyConfig   `yaml:"novelty"`
	Evolution  EvolutionConfig `yaml:"evolution"`
	Store      StoreConfig     `yaml:"store"`
	Log        LogConfig       `yaml:"log"`
}

type MapConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Georeference of map-grid units: x runs along latitude, y along longitude.
	OriginLat float64 `yaml:"origin_lat"`
	OriginLon float64 `yaml:"origin_lon"`
	LatStep   float64 `yaml:"lat_step"`
	LonStep   float64 `yaml:"lon_step"`
	APFFile   string  `yaml:"apf_file"`

	// OnRoad is the minimum APF value for a coordinate to count as road.
	OnRoad uint8 `yaml:"on_road"`
}

type GridConfig struct {
	XDivision  int    `yaml:"x_division"`
	YDivision  int    `yaml:"y_division"`
	FieldFile  string `yaml:"field_file"`
	Attraction string `yaml:"attraction"`
	Workers    int    `yaml:"workers"`
}

type Category struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
}

type RolloutConfig struct {
	Trajectories     int    `yaml:"trajectories"`
	StepLimit        int    `yaml:"step_limit"`
	QualityThreshold uint8  `yaml:"quality_threshold"`
	RandomStart      bool   `yaml:"random_start"`
	TieBreak         string `yaml:"tie_break"`
	StartPointsFile  string `yaml:"start_points_file"`
	KeepBundle       bool   `yaml:"keep_bundle"`
}

type FitnessConfig struct {
	LandscapeFile string  `yaml:"landscape_file"`
	Strategy      string  `yaml:"strategy"`
	PointDistance []int   `yaml:"point_distance"`
	Penalty       bool    `yaml:"penalty"`
	MaxFitness    float64 `yaml:"max_fitness"`
}

type NoveltyConfig struct {
	K       int     `yaml:"k"`
	ProbAdd float64 `yaml:"prob_add"`

	// MaxSize of 0 keeps the archive unbounded.
	MaxSize int `yaml:"max_size"`
}

type EvolutionConfig struct {
	Population      int           `yaml:"population"`
	Generations     int           `yaml:"generations"`
	EliteCount      int           `yaml:"elite_count"`
	Workers         int           `yaml:"workers"`
	Timeout         time.Duration `yaml:"timeout"`
	Seed            int64         `yaml:"seed"`
	CheckpointEvery int           `yaml:"checkpoint_every"`
	MaxWeightDelta  float64       `yaml:"max_weight_delta"`
	FailureFitness  float64       `yaml:"failure_fitness"`
	Selector        string        `yaml:"selector"`
	Mutations       int           `yaml:"mutations"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used by the original experiments.
func Default() Config {
	return Config{
		DataDir:   "data",
		OutputDir: "output",
		Map: MapConfig{
			Width:     6159,
			Height:    6201,
			OriginLat: 52.2860,
			OriginLon: 4.7288,
			LatStep:   0.0000453,
			LonStep:   0.0000734,
			APFFile:   "apf.bin",
			OnRoad:    1,
		},
		Grid: GridConfig{
			XDivision:  40,
			YDivision:  40,
			FieldFile:  "field.bin",
			Attraction: "min_distance",
		},
		Rollout: RolloutConfig{
			Trajectories:     30,
			StepLimit:        5000,
			QualityThreshold: 40,
			TieBreak:         "random",
			StartPointsFile:  "start_points.csv",
		},
		Fitness: FitnessConfig{
			LandscapeFile: "landscape.json",
			Strategy:      "normal",
			MaxFitness:    200,
		},
		Novelty: NoveltyConfig{
			K:       15,
			ProbAdd: 0.1,
		},
		Evolution: EvolutionConfig{
			Population:      50,
			Generations:     10,
			EliteCount:      5,
			Workers:         4,
			Seed:            42,
			CheckpointEvery: 10,
			MaxWeightDelta:  0.5,
			FailureFitness:  -1e6,
			Selector:        "elite",
			Mutations:       1,
		},
		Store: StoreConfig{Kind: "memory", Path: "trajneat.db"},
		Log:   LogConfig{Level: "info", Format: "auto"},
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, Errorf("read config %s: %v", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, Errorf("decode config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders the config as YAML for run records.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c Config) Validate() error {
	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		return Errorf("map dimensions must be > 0, got %dx%d", c.Map.Width, c.Map.Height)
	}
	if c.Grid.XDivision <= 0 || c.Grid.YDivision <= 0 {
		return Errorf("grid divisions must be > 0, got %dx%d", c.Grid.XDivision, c.Grid.YDivision)
	}
	if c.Grid.XDivision > c.Map.Width || c.Grid.YDivision > c.Map.Height {
		return Errorf("grid divisions %dx%d exceed map %dx%d", c.Grid.XDivision, c.Grid.YDivision, c.Map.Width, c.Map.Height)
	}
	switch c.Grid.Attraction {
	case "min_distance", "potential":
	default:
		return Errorf("unsupported attraction mode: %s", c.Grid.Attraction)
	}
	if len(c.Categories) == 0 {
		return Errorf("at least one category is required")
	}
	seen := make(map[string]struct{}, len(c.Categories))
	for i, cat := range c.Categories {
		name := strings.ToLower(strings.TrimSpace(cat.Name))
		if name == "" {
			return Errorf("category name is required at index %d", i)
		}
		if _, dup := seen[name]; dup {
			return Errorf("duplicate category: %s", name)
		}
		seen[name] = struct{}{}
	}
	if c.Rollout.Trajectories <= 0 {
		return Errorf("rollout trajectories must be > 0")
	}
	if c.Rollout.StepLimit <= 0 {
		return Errorf("rollout step limit must be > 0")
	}
	switch c.Rollout.TieBreak {
	case "random", "first":
	default:
		return Errorf("unsupported tie break: %s", c.Rollout.TieBreak)
	}
	for _, idx := range c.Fitness.PointDistance {
		if idx < 0 || idx > 2 {
			return Errorf("point_distance selector must be within [0, 2], got %d", idx)
		}
	}
	if c.Fitness.MaxFitness <= 0 {
		return Errorf("max fitness must be > 0")
	}
	if c.Novelty.K <= 0 {
		return Errorf("novelty k must be > 0")
	}
	if c.Novelty.ProbAdd < 0 || c.Novelty.ProbAdd > 1 {
		return Errorf("novelty prob_add must be within [0, 1], got %f", c.Novelty.ProbAdd)
	}
	if c.Novelty.MaxSize < 0 {
		return Errorf("novelty max_size must be >= 0")
	}
	if c.Evolution.Population <= 0 {
		return Errorf("population size must be > 0")
	}
	if c.Evolution.Generations <= 0 {
		return Errorf("generations must be > 0")
	}
	if c.Evolution.EliteCount <= 0 || c.Evolution.EliteCount > c.Evolution.Population {
		return Errorf("elite count must be in [1, population size]")
	}
	if c.Evolution.Timeout < 0 {
		return Errorf("evaluation timeout must be >= 0")
	}
	if c.Evolution.MaxWeightDelta <= 0 {
		return Errorf("max weight delta must be > 0")
	}
	if c.Evolution.Mutations <= 0 {
		return Errorf("mutations per child must be > 0")
	}
	switch c.Evolution.Selector {
	case "", "elite", "tournament":
	default:
		return Errorf("unsupported selector: %s", c.Evolution.Selector)
	}
	switch c.Store.Kind {
	case "", "memory", "sqlite":
	default:
		return Errorf("unsupported store backend: %s", c.Store.Kind)
	}
	return nil
}

// CategoryNames returns the lower-cased names in index order.
func (c Config) CategoryNames() []string {
	out := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		out[i] = strings.ToLower(strings.TrimSpace(cat.Name))
	}
	return out
}

func (c Config) CategoryFile(name string) string {
	suffix := ".csv"
	if c.Test {
		suffix = "_test.csv"
	}
	return filepath.Join(c.DataDir, strings.ToLower(name)+suffix)
}

func (c Config) FieldPath() string       { return c.dataPath(c.Grid.FieldFile) }
func (c Config) APFPath() string         { return c.dataPath(c.Map.APFFile) }
func (c Config) LandscapePath() string   { return c.dataPath(c.Fitness.LandscapeFile) }
func (c Config) StartPointsPath() string { return c.dataPath(c.Rollout.StartPointsFile) }

func (c Config) dataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}
