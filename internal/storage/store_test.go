package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/san-kum/dynopt/internal/config"
	"github.com/san-kum/dynopt/internal/experiment"
	"github.com/san-kum/dynopt/internal/solution"
)

func testRun(t *testing.T, integrate bool) Run {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Phases[0].Shooting = 4
	cfg.Guess.States = []map[string]config.GuessEntry{
		{"theta": {Type: "linear", Values: [][]float64{{0, 1}}}},
	}
	exp, err := experiment.New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	sol, err := exp.Initial()
	if err != nil {
		t.Fatal(err)
	}
	cost, err := sol.Cost()
	if err != nil {
		t.Fatal(err)
	}
	terms, err := sol.Terms(solution.CostAll)
	if err != nil {
		t.Fatal(err)
	}
	if integrate {
		opts, err := exp.IntegrateOptions()
		if err != nil {
			t.Fatal(err)
		}
		if sol, err = sol.Integrate(context.Background(), opts); err != nil {
			t.Fatal(err)
		}
	}
	return Run{Preset: "test", Model: cfg.Model, Solution: sol, Terms: terms, Cost: cost}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(testRun(t, false))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Model != "pendulum" || meta.Preset != "test" {
		t.Errorf("meta = %+v", meta)
	}
	if diff := cmp.Diff([]string{"theta", "omega"}, meta.States); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4}, meta.Shooting); diff != "" {
		t.Errorf("shooting mismatch (-want +got):\n%s", diff)
	}
	if len(meta.Terms) != 1 || meta.Terms[0].Kind != "lagrange" {
		t.Errorf("terms = %+v", meta.Terms)
	}
	if meta.Integrated {
		t.Error("fresh run flagged as integrated")
	}

	data, err := st.LoadPhase(runID, 0)
	if err != nil {
		t.Fatalf("load phase failed: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 0.25, 0.5, 0.75, 1}, data.Times); diff != "" {
		t.Errorf("times mismatch (-want +got):\n%s", diff)
	}
	theta, err := data.Column("theta")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0, 0.25, 0.5, 0.75, 1}, theta); diff != "" {
		t.Errorf("theta mismatch (-want +got):\n%s", diff)
	}
	if _, err := data.Column("phi"); err == nil {
		t.Error("expected an error for an unknown column")
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	first, err := st.Save(testRun(t, false))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	second, err := st.Save(testRun(t, true))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("runs not newest first: %s, %s", runs[0].ID, runs[1].ID)
	}
	if !runs[0].Integrated {
		t.Error("integrated run not flagged")
	}
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "absent"))
	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Errorf("runs=%v err=%v", runs, err)
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(testRun(t, false))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	for _, name := range []string{"metadata.json", "phase_0.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestSaveWithoutSolution(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Save(Run{Model: "pendulum"}); err == nil {
		t.Error("expected an error")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, NewExportData(testRun(t, false))); err != nil {
		t.Fatal(err)
	}

	var got ExportData
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Model != "pendulum" || len(got.Phases) != 1 {
		t.Fatalf("export = %+v", got)
	}
	if diff := cmp.Diff([]float64{0, 0.25, 0.5, 0.75, 1}, got.Phases[0].States["theta"]); diff != "" {
		t.Errorf("theta mismatch (-want +got):\n%s", diff)
	}
}

func TestExportStoredRun(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	run := testRun(t, true)
	runID, err := st.Save(run)
	if err != nil {
		t.Fatal(err)
	}

	got, err := st.Export(runID)
	if err != nil {
		t.Fatal(err)
	}
	want := NewExportData(run)
	want.ID = runID
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("stored export mismatch (-want +got):\n%s", diff)
	}
}
