package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"trajneat/internal/config"
)

// configFlags are the settings every config-driven command accepts. Flags
// only override the file when given explicitly.
type configFlags struct {
	path        *string
	dataDir     *string
	outputDir   *string
	seed        *int64
	workers     *int
	generations *int
	population  *int
	storeKind   *string
	dbPath      *string
	logLevel    *string
	logFormat   *string
}

func registerConfigFlags(fs *flag.FlagSet) *configFlags {
	return &configFlags{
		path:        fs.String("config", "", "path to the YAML run configuration"),
		dataDir:     fs.String("data-dir", "", "override data_dir"),
		outputDir:   fs.String("output-dir", "", "override output_dir"),
		seed:        fs.Int64("seed", 0, "override evolution seed"),
		workers:     fs.Int("workers", 0, "override evaluation workers"),
		generations: fs.Int("gens", 0, "override generations"),
		population:  fs.Int("pop", 0, "override population size"),
		storeKind:   fs.String("store", "", "override store backend: memory|sqlite"),
		dbPath:      fs.String("db-path", "", "override sqlite database path"),
		logLevel:    fs.String("log-level", "", "override log level"),
		logFormat:   fs.String("log-format", "", "override log format: auto|text|json"),
	}
}

// load reads the config file, applies explicit flag overrides and validates
// the result.
func (f *configFlags) load(fs *flag.FlagSet) (config.Config, error) {
	if *f.path == "" {
		return config.Config{}, errors.New("--config is required")
	}
	cfg, err := config.Load(*f.path)
	if err != nil {
		return config.Config{}, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "data-dir":
			cfg.DataDir = *f.dataDir
		case "output-dir":
			cfg.OutputDir = *f.outputDir
		case "seed":
			cfg.Evolution.Seed = *f.seed
		case "workers":
			cfg.Evolution.Workers = *f.workers
			cfg.Grid.Workers = *f.workers
		case "gens":
			cfg.Evolution.Generations = *f.generations
		case "pop":
			cfg.Evolution.Population = *f.population
		case "store":
			cfg.Store.Kind = *f.storeKind
		case "db-path":
			cfg.Store.Path = *f.dbPath
		case "log-level":
			cfg.Log.Level = *f.logLevel
		case "log-format":
			cfg.Log.Format = *f.logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setup loads the config and installs the process logger.
func (f *configFlags) setup(fs *flag.FlagSet) (config.Config, *slog.Logger, error) {
	cfg, err := f.load(fs)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
