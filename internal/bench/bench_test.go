package bench

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/san-kum/jphbridge/internal/config"
	"github.com/san-kum/jphbridge/internal/jph"
	"github.com/san-kum/jphbridge/internal/native/nativetest"
)

func TestSummarize(t *testing.T) {
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = float64(100 - i)
	}
	got := Summarize(samples)
	want := Stats{N: 100, Mean: 50.5, Min: 1, Max: 100, P50: 50, P90: 90, P99: 99}
	got.StdDev = 0
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
	if samples[0] != 100 {
		t.Error("Summarize must not reorder its input")
	}
	if (Summarize(nil) != Stats{}) {
		t.Error("empty samples should give zero stats")
	}
}

func openEngine(t *testing.T) (*jph.Engine, *nativetest.Engine) {
	t.Helper()
	fake := nativetest.NewEngine()
	e, err := jph.Open(config.DefaultConfig(), fake.Lib)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e, fake
}

func TestRunCases(t *testing.T) {
	e, fake := openEngine(t)
	cfg := Config{Iterations: 50, Warmup: 5, Workers: 3}
	report, err := Run(context.Background(), e, cfg, Cases())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Cases) != len(Cases()) {
		t.Fatalf("cases = %d", len(report.Cases))
	}
	for _, c := range report.Cases {
		if len(c.Samples) != cfg.Iterations {
			t.Errorf("%s: %d samples, want %d", c.Name, len(c.Samples), cfg.Iterations)
		}
		if c.Stats.Min < 0 || c.Stats.P99 < c.Stats.P50 {
			t.Errorf("%s: implausible stats %+v", c.Name, c.Stats)
		}
	}
	if fake.BodyCount() != 0 {
		t.Errorf("%d probe bodies left behind", fake.BodyCount())
	}

	res := report.Result()
	if diff := cmp.Diff([]string{"downcall", "upcall", "identity", "identity-parallel"}, res.Names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if _, ok := res.Metrics["upcall_p99_ns"]; !ok {
		t.Error("missing upcall p99 metric")
	}
}

func TestRunStopsOnError(t *testing.T) {
	e, _ := openEngine(t)
	boom := errors.New("boom")
	cases := []Case{{
		Name: "failing",
		Setup: func(*jph.Engine) (func() error, func(), error) {
			return func() error { return boom }, func() {}, nil
		},
	}}
	if _, err := Run(context.Background(), e, Config{Iterations: 10}, cases); !errors.Is(err, boom) {
		t.Errorf("got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	e, _ := openEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, e, Config{Iterations: 10}, Cases()[:1]); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
}

func TestPlot(t *testing.T) {
	if Plot("downcall", nil, 40, 5) != "" {
		t.Error("empty series should not plot")
	}
	out := Plot("downcall", []float64{1, 3, 2, 5}, 40, 5)
	if !strings.Contains(out, "downcall latency (ns)") {
		t.Errorf("caption missing:\n%s", out)
	}
}
