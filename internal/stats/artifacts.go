// Package stats writes the on-disk artifacts of an evolution run: the
// configuration it ran with, its per-generation fitness series, its best
// genomes and replayed trajectory bundles.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"trajneat/internal/model"
)

const (
	runIndexFile   = "run_index.json"
	configFile     = "config.yaml"
	fitnessFile    = "fitness.csv"
	topGenomesFile = "top_genomes.json"
	archiveFile    = "archive.json"
)

var fitnessHeader = []string{"generation", "best", "mean", "min", "best_raw", "archive_size", "failures"}

type TopGenome struct {
	Rank    int          `json:"rank"`
	Fitness float64      `json:"fitness"`
	Genome  model.Genome `json:"genome"`
}

type RunArtifacts struct {
	RunID       string
	Config      []byte
	Generations []model.GenerationRecord
	TopGenomes  []TopGenome
	Archive     []model.Behavior
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	Strategy         string  `json:"strategy"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes every artifact of a run under baseDir/<run id>
// and returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := WriteRunConfig(runDir, artifacts.Config); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(runDir, fitnessFile), func(w io.Writer) error {
		return WriteFitnessCSV(w, artifacts.Generations)
	}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, topGenomesFile), artifacts.TopGenomes); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, archiveFile), artifacts.Archive); err != nil {
		return "", err
	}
	return runDir, nil
}

// WriteRunConfig stores the rendered configuration next to the run output.
func WriteRunConfig(runDir string, rendered []byte) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, configFile), rendered, 0o644)
}

// WriteFitnessCSV writes one row per generation, ordered by generation.
func WriteFitnessCSV(w io.Writer, records []model.GenerationRecord) error {
	sorted := append([]model.GenerationRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Generation < sorted[j].Generation })

	writer := csv.NewWriter(w)
	if err := writer.Write(fitnessHeader); err != nil {
		return err
	}
	for _, r := range sorted {
		if err := writer.Write([]string{
			strconv.Itoa(r.Generation),
			formatFloat(r.BestFitness),
			formatFloat(r.MeanFitness),
			formatFloat(r.MinFitness),
			formatFloat(r.BestRaw),
			strconv.Itoa(r.ArchiveSize),
			strconv.Itoa(r.Failures),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadFitnessSeries returns the best fitness column of a run's fitness CSV.
func ReadFitnessSeries(baseDir, runID string) ([]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, fitnessFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

// ReadTopGenomes returns the ranked genomes written for a run.
func ReadTopGenomes(baseDir, runID string) ([]TopGenome, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, topGenomesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var top []TopGenome
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, false, fmt.Errorf("decode top genomes: %w", err)
	}
	return top, true, nil
}

// TrajectoryBundle is the replay of one genome.
type TrajectoryBundle struct {
	GenomeID     string                   `json:"genome_id"`
	Result       model.EvaluationResult   `json:"result"`
	Trajectories []model.TrajectoryRecord `json:"trajectories"`
}

// WriteTrajectories writes a replayed bundle as indented JSON.
func WriteTrajectories(path string, genomeID string, result model.EvaluationResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	trajectories := result.Bundle
	result.Bundle = nil
	return writeJSON(path, TrajectoryBundle{GenomeID: genomeID, Result: result, Trajectories: trajectories})
}

func ReadTrajectories(path string) (TrajectoryBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TrajectoryBundle{}, err
	}
	var bundle TrajectoryBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return TrajectoryBundle{}, fmt.Errorf("decode trajectories %s: %w", path, err)
	}
	return bundle, nil
}

// AppendRunIndex records a run in baseDir/run_index.json, replacing an
// earlier entry with the same run id.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if entry.CreatedAtUTC == "" {
		entry.CreatedAtUTC = time.Now().UTC().Format(time.RFC3339)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the indexed runs, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	// Later appends win ties on equal timestamps.
	order := make(map[string]int, len(entries))
	for i, e := range entries {
		order[e.RunID] = i
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAtUTC == entries[j].CreatedAtUTC {
			return order[entries[i].RunID] > order[entries[j].RunID]
		}
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func writeFile(path string, fill func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fill(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
