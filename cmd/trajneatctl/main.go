package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"trajneat/internal/field"
	"trajneat/internal/grid"
	"trajneat/internal/model"
	"trajneat/internal/nn"
	"trajneat/internal/stats"
	"trajneat/internal/storage"
	"trajneat/internal/synth"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "synth":
		return runSynth(ctx, args[1:])
	case "build-field":
		return runBuildField(ctx, args[1:])
	case "query":
		return runQuery(ctx, args[1:])
	case "evolve":
		return runEvolve(ctx, args[1:])
	case "replay":
		return runReplay(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: trajneatctl <synth|build-field|query|evolve|replay|runs> [flags]", msg)
}

func runSynth(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	cf := registerConfigFlags(fs)
	synthSeed := fs.Int64("synth-seed", 1, "noise and placement seed")
	pois := fs.Int("pois", 200, "POIs per category")
	starts := fs.Int("starts", 50, "start points")
	spacing := fs.Int("road-spacing", 25, "distance between lattice roads")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := cf.setup(fs)
	if err != nil {
		return err
	}

	opts := synth.DefaultOptions(*synthSeed)
	opts.POIsPerCategory = *pois
	opts.StartPoints = *starts
	opts.RoadSpacing = *spacing
	opts.Logger = logger
	summary, err := synth.Generate(cfg, opts)
	if err != nil {
		return err
	}
	fmt.Printf("synthesized data_dir=%s roads=%d pois=%d starts=%d apf=%s\n",
		cfg.DataDir,
		summary.RoadCoords,
		summary.POIs,
		summary.StartPoints,
		humanize.Bytes(uint64(summary.APFBytes)),
	)
	return nil
}

func runBuildField(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build-field", flag.ContinueOnError)
	cf := registerConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := cf.setup(fs)
	if err != nil {
		return err
	}

	idx, err := grid.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := idx.WriteFile(cfg.FieldPath(), logger); err != nil {
		return err
	}
	info, err := os.Stat(cfg.FieldPath())
	if err != nil {
		return err
	}
	fmt.Printf("field=%s layout=%q categories=%d size=%s\n",
		cfg.FieldPath(),
		idx.Layout.String(),
		len(idx.Categories),
		humanize.Bytes(uint64(info.Size())),
	)
	return nil
}

type queryResult struct {
	Point      model.Point   `json:"point"`
	Cell       grid.CellID   `json:"cell"`
	Quality    uint8         `json:"quality"`
	OnRoad     bool          `json:"on_road"`
	Categories []string      `json:"categories"`
	Attraction []float64     `json:"attraction"`
	Normalized []float64     `json:"normalized"`
	Neighbors  []model.Point `json:"neighbors_on_road"`
}

func runQuery(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	cf := registerConfigFlags(fs)
	x := fs.Int("x", 0, "map-grid x")
	y := fs.Int("y", 0, "map-grid y")
	mode := fs.String("mode", "", "attraction mode override: min_distance|potential")
	jsonOut := fs.Bool("json", false, "emit the query result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := cf.setup(fs)
	if err != nil {
		return err
	}
	if *mode == "" {
		*mode = cfg.Grid.Attraction
	}
	m, err := field.ParseMode(*mode)
	if err != nil {
		return err
	}
	srv, err := field.Open(cfg.FieldPath(), m)
	if err != nil {
		return err
	}
	defer func() {
		_ = srv.Close()
	}()

	p := model.Point{X: *x, Y: *y}
	res := queryResult{Point: p, Categories: srv.Categories(), OnRoad: srv.IsOnRoad(p)}
	if res.Cell, err = srv.CellFor(p); err != nil {
		return err
	}
	if res.Quality, err = srv.Quality(p); err != nil {
		return err
	}
	if res.Attraction, err = srv.AttractionVector(p); err != nil {
		return err
	}
	res.Normalized = make([]float64, srv.NumCategories())
	if err := srv.NormalizedAttraction(p, res.Normalized); err != nil {
		return err
	}
	if res.Neighbors, err = srv.NeighborsOnRoad(p); err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Printf("point=%s cell=%d quality=%d on_road=%t mode=%s\n", p, res.Cell, res.Quality, res.OnRoad, m)
	for k, name := range res.Categories {
		fmt.Printf("category=%s attraction=%.6g normalized=%.4f\n", name, res.Attraction[k], res.Normalized[k])
	}
	fmt.Printf("neighbors_on_road=%v\n", res.Neighbors)
	return nil
}

func runReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	cf := registerConfigFlags(fs)
	runID := fs.String("run-id", "", "replay the best genome of this run's artifacts")
	genomeID := fs.String("genome", "", "replay a genome saved in the store")
	out := fs.String("out", "", "output path (default <output_dir>/<run>/trajectories_<genome>.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*runID == "") == (*genomeID == "") {
		return errors.New("replay requires exactly one of --run-id or --genome")
	}
	cfg, logger, err := cf.setup(fs)
	if err != nil {
		return err
	}

	var genome model.Genome
	if *runID != "" {
		top, ok, err := stats.ReadTopGenomes(cfg.OutputDir, *runID)
		if err != nil {
			return err
		}
		if !ok || len(top) == 0 {
			return fmt.Errorf("no top genomes for run %s", *runID)
		}
		genome = top[0].Genome
	} else {
		store, err := storage.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer func() {
			_ = storage.CloseIfSupported(store)
		}()
		var ok bool
		genome, ok, err = store.GetGenome(ctx, *genomeID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("genome not found: %s", *genomeID)
		}
	}

	env, err := openEnvironment(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = env.Close()
	}()

	net, err := nn.Compile(genome)
	if err != nil {
		return fmt.Errorf("compile genome %s: %w", genome.ID, err)
	}
	rng := rand.New(rand.NewSource(cfg.Evolution.Seed))
	result, _, err := env.scape.WithBundle(true).Evaluate(ctx, net, rng)
	if err != nil {
		return fmt.Errorf("replay genome %s: %w", genome.ID, err)
	}

	path := *out
	if path == "" {
		dir := *runID
		if dir == "" {
			dir = "replay"
		}
		path = filepath.Join(cfg.OutputDir, dir, "trajectories_"+genome.ID+".json")
	}
	if err := stats.WriteTrajectories(path, genome.ID, result); err != nil {
		return err
	}
	fmt.Printf("replayed genome=%s fitness=%.6f trajectories=%d out=%s\n", genome.ID, result.Fitness, len(result.Bundle), path)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	outputDir := fs.String("output-dir", "output", "artifact directory holding run_index.json")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	storeKind := fs.String("store", "", "list runs recorded in this store instead of the index: memory|sqlite")
	dbPath := fs.String("db-path", "trajneat.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	if *storeKind != "" {
		return listStoreRuns(ctx, *storeKind, *dbPath, *limit, *jsonOut)
	}

	entries, err := stats.ListRunIndex(*outputDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, e := range entries {
		fmt.Printf("run_id=%s created_at=%s strategy=%s seed=%d pop=%d gens=%d final_best_fitness=%.6f\n",
			e.RunID,
			e.CreatedAtUTC,
			e.Strategy,
			e.Seed,
			e.PopulationSize,
			e.Generations,
			e.FinalBestFitness,
		)
	}
	return nil
}

func listStoreRuns(ctx context.Context, kind, dbPath string, limit int, jsonOut bool) error {
	store, err := storage.NewStore(kind, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	if jsonOut {
		for i := range runs {
			runs[i].Config = nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	for _, r := range runs {
		gens, err := store.ListGenerations(ctx, r.ID)
		if err != nil {
			return err
		}
		best := "n/a"
		if len(gens) > 0 {
			best = fmt.Sprintf("%.6f", gens[len(gens)-1].BestFitness)
		}
		fmt.Printf("run_id=%s started_at=%s strategy=%s seed=%d generations=%d best_fitness=%s\n",
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.Strategy,
			r.Seed,
			len(gens),
			best,
		)
	}
	return nil
}
