// Package storage keeps simulated scenario trajectories on disk, one
// directory per run with JSON metadata and a CSV file per scenario.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/dsfeas/internal/dynamo"
	"github.com/san-kum/dsfeas/internal/simulate"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Problem    string             `json:"problem"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       uint64             `json:"seed"`
	Dt         float64            `json:"dt"`
	Integrator string             `json:"integrator"`
	Design     map[string]float64 `json:"design,omitempty"`
	States     []string           `json:"states"`
	Scenarios  []ScenarioMetadata `json:"scenarios"`
}

type ScenarioMetadata struct {
	Index string `json:"index"`
	File  string `json:"file"`
	// Final holds each state's value at the end of the horizon.
	Final map[string]float64 `json:"final"`
}

// Save writes one CSV per trajectory and returns the new run ID. meta's ID,
// Timestamp, States and Scenarios are filled in.
func (s *Store) Save(meta RunMetadata, trajs []*simulate.Trajectory) (string, error) {
	meta.ID = fmt.Sprintf("%s_%s", meta.Problem, uuid.New().String()[:8])
	meta.Timestamp = time.Now().UTC()
	meta.Scenarios = make([]ScenarioMetadata, 0, len(trajs))
	if len(trajs) > 0 {
		meta.States = trajs[0].Names
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	for k, tr := range trajs {
		file := fmt.Sprintf("scenario_%03d.csv", k)
		if err := writeTrajectory(filepath.Join(runDir, file), tr); err != nil {
			return "", err
		}
		sm := ScenarioMetadata{Index: tr.Index.String(), File: file, Final: make(map[string]float64)}
		if n := len(tr.States); n > 0 {
			for i, name := range tr.Names {
				sm.Final[name] = tr.States[n-1][i]
			}
		}
		meta.Scenarios = append(meta.Scenarios, sm)
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func writeTrajectory(path string, tr *simulate.Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"time"}, tr.Names...)
	if err := w.Write(header); err != nil {
		return err
	}
	for k, x := range tr.States {
		row := []string{strconv.FormatFloat(tr.Times[k], 'g', -1, 64)}
		for _, v := range x {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the metadata of every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadTrajectory reads scenario k of a run back. The index is not restored.
func (s *Store) LoadTrajectory(runID string, k int) (*simulate.Trajectory, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	if k < 0 || k >= len(meta.Scenarios) {
		return nil, fmt.Errorf("run %s has %d scenarios, asked for %d", runID, len(meta.Scenarios), k)
	}

	file, err := os.Open(filepath.Join(s.baseDir, runID, meta.Scenarios[k].File))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header", meta.Scenarios[k].File)
	}

	tr := &simulate.Trajectory{Names: records[0][1:]}
	for line, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", meta.Scenarios[k].File, line+2, err)
			}
			vals[j] = v
		}
		tr.Times = append(tr.Times, vals[0])
		tr.States = append(tr.States, dynamo.State(vals[1:]))
	}
	return tr, nil
}
