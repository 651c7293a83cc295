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

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/solution"
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

// Run is what gets persisted: one post-processed solution and the cost of
// the point it came from.
type Run struct {
	Preset   string
	Model    string
	Solution *solution.Solution
	Terms    []solution.CostTerm
	Cost     float64
}

type RunMetadata struct {
	ID           string              `json:"id"`
	Preset       string              `json:"preset,omitempty"`
	Model        string              `json:"model"`
	Timestamp    time.Time           `json:"timestamp"`
	Phases       int                 `json:"phases"`
	PhaseTime    []float64           `json:"phase_time"`
	Shooting     []int               `json:"shooting"`
	States       []string            `json:"states"`
	Integrated   bool                `json:"integrated"`
	Interpolated bool                `json:"interpolated"`
	Merged       bool                `json:"merged"`
	Cost         float64             `json:"cost"`
	Terms        []solution.CostTerm `json:"terms,omitempty"`
	Solver       solution.Metadata   `json:"solver"`
}

func phaseFile(p int) string {
	return fmt.Sprintf("phase_%d.csv", p)
}

func (s *Store) Save(run Run) (string, error) {
	if run.Solution == nil {
		return "", fmt.Errorf("%w: run has no solution", dynamo.ErrInvalidArgument)
	}
	sol := run.Solution
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", run.Model, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	states := sol.States()
	meta := RunMetadata{
		ID:           runID,
		Preset:       run.Preset,
		Model:        run.Model,
		Timestamp:    now,
		Phases:       sol.PhaseCount(),
		PhaseTime:    sol.PhaseTime(),
		Shooting:     sol.Shooting(),
		Integrated:   sol.IsIntegrated(),
		Interpolated: sol.IsInterpolated(),
		Merged:       sol.IsMerged(),
		Cost:         run.Cost,
		Terms:        run.Terms,
		Solver:       sol.Metadata(),
	}
	if len(states) > 0 {
		meta.States = columnNames(states[0])
	}

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}

	times := sol.Time()
	for p, tr := range states {
		if err := writePhase(filepath.Join(runDir, phaseFile(p)), times[p], tr); err != nil {
			return "", fmt.Errorf("phase %d: %w", p, err)
		}
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// columnNames flattens a trajectory's rows, suffixing multi-row variables.
func columnNames(tr *dynamo.Trajectory) []string {
	var names []string
	for _, name := range tr.Names() {
		m, _ := tr.Get(name)
		r, _ := m.Dims()
		if r == 1 {
			names = append(names, name)
			continue
		}
		for i := 0; i < r; i++ {
			names = append(names, fmt.Sprintf("%s_%d", name, i))
		}
	}
	return names
}

func writePhase(path string, times []float64, tr *dynamo.Trajectory) error {
	stacked := tr.Stacked()
	if stacked == nil {
		return fmt.Errorf("%w: empty trajectory", dynamo.ErrInvalidArgument)
	}
	rows, cols := stacked.Dims()
	if cols != len(times) {
		return fmt.Errorf("%w: %d samples, %d times", dynamo.ErrDimensionMismatch, cols, len(times))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"time"}, columnNames(tr)...)); err != nil {
		return err
	}
	for j := 0; j < cols; j++ {
		record := make([]string, 0, rows+1)
		record = append(record, strconv.FormatFloat(times[j], 'g', -1, 64))
		for i := 0; i < rows; i++ {
			record = append(record, strconv.FormatFloat(stacked.At(i, j), 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every run, newest first. Directories without readable
// metadata are skipped.
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

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
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

// PhaseData is one phase read back from disk. States has one row per sample.
type PhaseData struct {
	Columns []string
	Times   []float64
	States  [][]float64
}

// Column returns the samples of the named state column.
func (d *PhaseData) Column(name string) ([]float64, error) {
	for k, c := range d.Columns {
		if c != name {
			continue
		}
		out := make([]float64, len(d.States))
		for i, row := range d.States {
			out[i] = row[k]
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: no column %q", dynamo.ErrInvalidArgument, name)
}

func (s *Store) LoadPhase(runID string, phase int) (*PhaseData, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, phaseFile(phase)))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header", phaseFile(phase))
	}

	data := &PhaseData{
		Columns: records[0][1:],
		Times:   make([]float64, 0, len(records)-1),
		States:  make([][]float64, 0, len(records)-1),
	}
	for i, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", phaseFile(phase), i+2, err)
			}
			vals[j] = v
		}
		data.Times = append(data.Times, vals[0])
		data.States = append(data.States, vals[1:])
	}
	return data, nil
}
