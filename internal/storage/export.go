package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/dynopt/internal/solution"
)

// ExportPhase holds the samples of one phase keyed by state column, named
// as in the phase CSV files.
type ExportPhase struct {
	Times  []float64            `json:"times"`
	States map[string][]float64 `json:"states"`
}

type ExportData struct {
	ID           string              `json:"id,omitempty"`
	Model        string              `json:"model"`
	Preset       string              `json:"preset,omitempty"`
	PhaseTime    []float64           `json:"phase_time"`
	Integrated   bool                `json:"integrated"`
	Interpolated bool                `json:"interpolated"`
	Merged       bool                `json:"merged"`
	Cost         float64             `json:"cost"`
	Terms        []solution.CostTerm `json:"terms,omitempty"`
	Phases       []ExportPhase       `json:"phases"`
}

// NewExportData flattens an in-memory run.
func NewExportData(run Run) ExportData {
	sol := run.Solution
	data := ExportData{
		Model:        run.Model,
		Preset:       run.Preset,
		PhaseTime:    sol.PhaseTime(),
		Integrated:   sol.IsIntegrated(),
		Interpolated: sol.IsInterpolated(),
		Merged:       sol.IsMerged(),
		Cost:         run.Cost,
		Terms:        run.Terms,
	}

	times := sol.Time()
	for p, tr := range sol.States() {
		ph := ExportPhase{
			Times:  append([]float64(nil), times[p]...),
			States: make(map[string][]float64),
		}
		stacked := tr.Stacked()
		for i, name := range columnNames(tr) {
			ph.States[name] = stacked.RawRowView(i)
		}
		data.Phases = append(data.Phases, ph)
	}
	return data
}

// Export reads a stored run back into its export form.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	data := &ExportData{
		ID:           meta.ID,
		Model:        meta.Model,
		Preset:       meta.Preset,
		PhaseTime:    meta.PhaseTime,
		Integrated:   meta.Integrated,
		Interpolated: meta.Interpolated,
		Merged:       meta.Merged,
		Cost:         meta.Cost,
		Terms:        meta.Terms,
	}
	for p := 0; p < meta.Phases; p++ {
		pd, err := s.LoadPhase(runID, p)
		if err != nil {
			return nil, err
		}
		ph := ExportPhase{Times: pd.Times, States: make(map[string][]float64, len(pd.Columns))}
		for _, name := range pd.Columns {
			if ph.States[name], err = pd.Column(name); err != nil {
				return nil, err
			}
		}
		data.Phases = append(data.Phases, ph)
	}
	return data, nil
}

func WriteJSON(w io.Writer, data ExportData) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func ExportJSON(path string, data ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, data)
}

func ExportJSONStdout(data ExportData) error {
	return WriteJSON(os.Stdout, data)
}
