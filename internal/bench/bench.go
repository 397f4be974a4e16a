// Package bench measures the cost of crossing the bridge: downcalls, upcalls
// through the dispatcher, and identity lookups, against whatever library the
// engine was opened on.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/jphbridge/internal/jph"
	"github.com/san-kum/jphbridge/internal/storage"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Iterations int
	Warmup     int
	// Workers is the goroutine count of the parallel cases.
	Workers int
}

func DefaultConfig() Config {
	return Config{Iterations: 2000, Warmup: 100, Workers: 4}
}

// Case prepares one measured operation on e. The returned op is timed once
// per iteration; release undoes setup.
type Case struct {
	Name     string
	Parallel bool
	Setup    func(e *jph.Engine) (op func() error, release func(), err error)
}

type CaseResult struct {
	Name    string
	Samples []float64
	Stats   Stats
}

type Report struct {
	Cases []CaseResult
}

// Cases returns the standard bridge benchmarks.
func Cases() []Case {
	return []Case{
		{Name: "downcall", Setup: setupDowncall},
		{Name: "upcall", Setup: setupUpcall},
		{Name: "identity", Setup: setupIdentity},
		{Name: "identity-parallel", Parallel: true, Setup: setupIdentity},
	}
}

func crate(e *jph.Engine) (*jph.Body, func(), error) {
	box, err := e.NewBox(jph.Vec3{X: 1, Y: 1, Z: 1}, jph.DefaultConvexRadius)
	if err != nil {
		return nil, nil, err
	}
	b, err := e.CreateBody(jph.DefaultBodyCreationSettings(box, jph.RVec3{}, jph.MotionStatic))
	if err != nil {
		box.Destroy()
		return nil, nil, err
	}
	return b, func() {
		e.DestroyBody(b)
		box.Destroy()
	}, nil
}

func setupDowncall(e *jph.Engine) (func() error, func(), error) {
	b, release, err := crate(e)
	if err != nil {
		return nil, nil, err
	}
	return func() error {
		_, err := b.Position()
		return err
	}, release, nil
}

func setupUpcall(e *jph.Engine) (func() error, func(), error) {
	_, release, err := crate(e)
	if err != nil {
		return nil, nil, err
	}
	return func() error {
		hit, err := e.CollidePoint(jph.Vec3{}, func(*jph.CollidePointResult) {})
		if err == nil && !hit {
			err = errors.New("bench: point query missed the probe body")
		}
		return err
	}, release, nil
}

func setupIdentity(e *jph.Engine) (func() error, func(), error) {
	b, release, err := crate(e)
	if err != nil {
		return nil, nil, err
	}
	id := b.ID()
	return func() error {
		got, err := e.BodyByID(id)
		if err != nil {
			return err
		}
		if got != b {
			return fmt.Errorf("bench: body %d resolved to a second wrapper", id)
		}
		return nil
	}, release, nil
}

// Run times every case on e.
func Run(ctx context.Context, e *jph.Engine, cfg Config, cases []Case) (*Report, error) {
	if cfg.Iterations <= 0 {
		return nil, fmt.Errorf("bench: iterations must be positive, got %d", cfg.Iterations)
	}
	report := &Report{}
	for _, c := range cases {
		samples, err := runCase(ctx, e, cfg, c)
		if err != nil {
			return nil, fmt.Errorf("bench %s: %w", c.Name, err)
		}
		report.Cases = append(report.Cases, CaseResult{Name: c.Name, Samples: samples, Stats: Summarize(samples)})
	}
	return report, nil
}

func runCase(ctx context.Context, e *jph.Engine, cfg Config, c Case) ([]float64, error) {
	op, release, err := c.Setup(e)
	if err != nil {
		return nil, err
	}
	defer release()

	for range cfg.Warmup {
		if err := op(); err != nil {
			return nil, err
		}
	}

	workers := 1
	if c.Parallel {
		workers = max(1, cfg.Workers)
	}
	per := (cfg.Iterations + workers - 1) / workers
	samples := make([][]float64, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			out := make([]float64, 0, per)
			for range per {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				if err := op(); err != nil {
					return err
				}
				out = append(out, float64(time.Since(start).Nanoseconds()))
			}
			samples[w] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make([]float64, 0, per*workers)
	for _, s := range samples {
		all = append(all, s...)
	}
	return all[:min(len(all), cfg.Iterations)], nil
}

// Result converts the report for the report store.
func (r *Report) Result() *storage.Result {
	res := &storage.Result{
		OK:      true,
		Metrics: make(map[string]float64),
		Series:  make(map[string][]float64),
	}
	for _, c := range r.Cases {
		res.Names = append(res.Names, c.Name)
		res.Series[c.Name] = c.Samples
		res.Metrics[c.Name+"_mean_ns"] = c.Stats.Mean
		res.Metrics[c.Name+"_p50_ns"] = c.Stats.P50
		res.Metrics[c.Name+"_p99_ns"] = c.Stats.P99
	}
	return res
}

// Plot draws the latency trace of one case.
func Plot(name string, samples []float64, width, height int) string {
	if len(samples) == 0 {
		return ""
	}
	return asciigraph.Plot(samples,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(name+" latency (ns)"),
	)
}
