package main

import (
	"log/slog"
	"slices"

	"trajneat/internal/config"
	"trajneat/internal/field"
	"trajneat/internal/landscape"
	"trajneat/internal/rollout"
	"trajneat/internal/scape"
)

// environment is everything a rollout reads: the mapped field, the landscape
// bundle and the start points, wired into a scape.
type environment struct {
	field *field.Server
	scape *scape.TrajectoryScape
}

func openEnvironment(cfg config.Config, logger *slog.Logger) (*environment, error) {
	mode, err := field.ParseMode(cfg.Grid.Attraction)
	if err != nil {
		return nil, err
	}
	srv, err := field.Open(cfg.FieldPath(), mode)
	if err != nil {
		return nil, err
	}
	if got, want := srv.Categories(), cfg.CategoryNames(); !slices.Equal(got, want) {
		_ = srv.Close()
		return nil, config.Errorf("field file %s has categories %v, config has %v; rebuild the field", cfg.FieldPath(), got, want)
	}

	bundle, err := landscape.Load(cfg.LandscapePath())
	if err != nil {
		_ = srv.Close()
		return nil, err
	}
	starts, err := rollout.LoadStartPoints(cfg.StartPointsPath())
	if err != nil {
		_ = srv.Close()
		return nil, err
	}
	s, err := scape.FromConfig(cfg, srv, bundle, starts)
	if err != nil {
		_ = srv.Close()
		return nil, err
	}

	logger.Info("environment ready",
		"field", cfg.FieldPath(),
		"mode", mode.String(),
		"layout", srv.Layout().String(),
		"surfaces", len(bundle.Names()),
		"starts", len(starts),
		"inputs", s.Engine().InputSize(),
	)
	return &environment{field: srv, scape: s}, nil
}

func (e *environment) Close() error {
	return e.field.Close()
}
