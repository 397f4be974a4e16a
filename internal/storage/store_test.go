package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	result := &Result{
		OK:      true,
		Metrics: map[string]float64{"downcall_p50_ns": 41.5},
		Names:   []string{"downcall", "upcall"},
		Series: map[string][]float64{
			"downcall": {40, 41.5, 43},
			"upcall":   {90, 95},
		},
	}
	runID, err := st.Save(KindBench, "libjoltc.so", "5.2.0", "go", result)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Kind != KindBench || meta.Version != "5.2.0" || !meta.OK {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Metrics["downcall_p50_ns"] != 41.5 {
		t.Errorf("expected p50 41.5, got %f", meta.Metrics["downcall_p50_ns"])
	}

	names, series, err := st.LoadSamples(runID)
	if err != nil {
		t.Fatalf("load samples failed: %v", err)
	}
	if diff := cmp.Diff(result.Names, names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(result.Series, series); diff != "" {
		t.Errorf("series (-want +got):\n%s", diff)
	}
}

func TestSelfCheckWithoutSamples(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(KindSelfCheck, "lib", "4.0.0", "go", &Result{
		Errors: []string{"jph: native version mismatch: 4.0.0 does not satisfy >= 5"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(st.Dir(), runID, "samples.csv")); !os.IsNotExist(err) {
		t.Error("self-check without series should not write samples.csv")
	}
	meta, _ := st.Load(runID)
	if meta.OK || len(meta.Errors) != 1 {
		t.Errorf("unexpected metadata %+v", meta)
	}
}

func TestListNewestFirst(t *testing.T) {
	st := New(t.TempDir())
	first, _ := st.Save(KindSelfCheck, "lib", "5.0.0", "go", &Result{OK: true})
	time.Sleep(2 * time.Millisecond)
	second, _ := st.Save(KindBench, "lib", "5.0.0", "go", &Result{OK: true})

	if err := os.WriteFile(filepath.Join(st.Dir(), "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != second || runs[1].ID != first {
		t.Errorf("list order = %v", runs)
	}
}

func TestListMissingDir(t *testing.T) {
	runs, err := New(filepath.Join(t.TempDir(), "none")).List()
	if err != nil || len(runs) != 0 {
		t.Errorf("got %v, %v", runs, err)
	}
}
