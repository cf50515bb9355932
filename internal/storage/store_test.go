package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/dsfeas/internal/dynamo"
	"github.com/san-kum/dsfeas/internal/scenario"
	"github.com/san-kum/dsfeas/internal/simulate"
)

func trajectory(idx scenario.Index, scale float64) *simulate.Trajectory {
	return &simulate.Trajectory{
		Index: idx,
		Names: []string{"cA", "cB"},
		Times: []float64{0, 0.5, 1},
		States: []dynamo.State{
			{2000 * scale, 0},
			{1000 * scale, 450.25},
			{155.125 * scale, 868.5},
		},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	meta := RunMetadata{
		Problem:    "reactor",
		Seed:       42,
		Dt:         0.01,
		Integrator: "rk4",
		Design:     map[string]float64{"tf": 300, "T": 285},
	}
	trajs := []*simulate.Trajectory{
		trajectory(scenario.Index{0}, 1),
		trajectory(scenario.Index{1}, 0.5),
	}

	runID, err := st.Save(meta, trajs)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run id")
	}

	loaded, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Problem != "reactor" {
		t.Errorf("expected problem 'reactor', got '%s'", loaded.Problem)
	}
	if loaded.Seed != 42 {
		t.Errorf("expected seed 42, got %d", loaded.Seed)
	}
	if loaded.Design["tf"] != 300 {
		t.Errorf("expected tf 300, got %f", loaded.Design["tf"])
	}
	if len(loaded.Scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(loaded.Scenarios))
	}
	if loaded.Scenarios[1].Index != "[1]" {
		t.Errorf("expected index [1], got %s", loaded.Scenarios[1].Index)
	}
	if got := loaded.Scenarios[1].Final["cA"]; got != 155.125*0.5 {
		t.Errorf("expected final cA %f, got %f", 155.125*0.5, got)
	}

	tr, err := st.LoadTrajectory(runID, 0)
	if err != nil {
		t.Fatalf("load trajectory failed: %v", err)
	}
	if len(tr.Names) != 2 || tr.Names[1] != "cB" {
		t.Errorf("unexpected names %v", tr.Names)
	}
	if len(tr.Times) != 3 || tr.Times[1] != 0.5 {
		t.Errorf("unexpected times %v", tr.Times)
	}
	if tr.States[1][1] != 450.25 {
		t.Errorf("expected cB 450.25, got %f", tr.States[1][1])
	}

	if _, err := st.LoadTrajectory(runID, 2); err == nil {
		t.Error("expected error for missing scenario")
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	for i := 0; i < 3; i++ {
		if _, err := st.Save(RunMetadata{Problem: "decay"}, []*simulate.Trajectory{trajectory(scenario.Index{0}, 1)}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	// unreadable runs are skipped
	if err := os.MkdirAll(filepath.Join(dir, "broken"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("expected 3 runs, got %d", len(runs))
	}
}

func TestStoreLoadMissing(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("nope"); err == nil {
		t.Error("expected error for missing run")
	}
}
