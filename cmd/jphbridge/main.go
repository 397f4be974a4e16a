package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/jphbridge/internal/bench"
	"github.com/san-kum/jphbridge/internal/config"
	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/jph"
	"github.com/san-kum/jphbridge/internal/layout"
	"github.com/san-kum/jphbridge/internal/native"
	"github.com/san-kum/jphbridge/internal/native/nativetest"
	"github.com/san-kum/jphbridge/internal/storage"
	"github.com/san-kum/jphbridge/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	configFile string
	preset     string
	library    string
	allocator  string
	logLevel   string
	dataDir    string
	poison     bool
	fake       bool

	format string

	watch bool

	checkSymbols bool

	iterations int
	warmup     int
	workers    int
	caseNames  []string
	plot       bool

	checkLayouts bool
	theme        string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "jphbridge",
		Short:         "native bridge to the Jolt physics engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "start from a preset configuration")
	pf.StringVar(&library, "library", "", "engine shared library")
	pf.StringVar(&allocator, "allocator", config.DefaultAllocator, "region allocator (go, pages, libc)")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level")
	pf.StringVar(&dataDir, "data", config.DefaultDataDir, "report directory")
	pf.BoolVar(&poison, "poison", false, "poison released region memory")
	pf.BoolVar(&fake, "fake", false, "use the in-process engine instead of a shared library")

	layoutsCmd := &cobra.Command{
		Use:   "layouts",
		Short: "print the struct layout manifest",
		RunE:  printLayouts,
	}
	layoutsCmd.Flags().StringVar(&format, "format", "table", "output format (table, yaml, json)")

	selfcheckCmd := &cobra.Command{
		Use:   "selfcheck",
		Short: "check the engine library against this binary",
		RunE:  selfCheck,
	}
	selfcheckCmd.Flags().BoolVar(&watch, "watch", false, "re-run when the config or library changes")

	symbolsCmd := &cobra.Command{
		Use:   "symbols",
		Short: "list the native functions the bridge binds",
		RunE:  listSymbols,
	}
	symbolsCmd.Flags().BoolVar(&checkSymbols, "check", false, "look every symbol up in the library")

	def := bench.DefaultConfig()
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "measure downcall, upcall and identity latency",
		RunE:  runBench,
	}
	benchCmd.Flags().IntVar(&iterations, "iterations", def.Iterations, "timed iterations per case")
	benchCmd.Flags().IntVar(&warmup, "warmup", def.Warmup, "untimed iterations per case")
	benchCmd.Flags().IntVar(&workers, "workers", def.Workers, "goroutines for parallel cases")
	benchCmd.Flags().StringSliceVar(&caseNames, "case", nil, "cases to run (default all)")
	benchCmd.Flags().BoolVar(&plot, "plot", false, "plot each case's latency")

	browseCmd := &cobra.Command{
		Use:   "browse",
		Short: "browse struct layouts interactively",
		RunE:  browse,
	}
	browseCmd.Flags().BoolVar(&checkLayouts, "check", false, "flag layouts the library does not know")
	browseCmd.Flags().StringVar(&theme, "theme", viz.ThemeNeon.Name, fmt.Sprintf("color theme %v", viz.ThemeNames()))

	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "list saved reports",
		RunE:  listReports,
	}
	reportCmd := &cobra.Command{
		Use:   "report [id]",
		Short: "show a saved report",
		Args:  cobra.ExactArgs(1),
		RunE:  showReport,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "show, save and list configurations",
	}
	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				return yaml.NewEncoder(os.Stdout).Encode(cfg)
			},
		},
		&cobra.Command{
			Use:   "save [path]",
			Short: "write the effective configuration to a file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				if err := config.Save(args[0], cfg); err != nil {
					return err
				}
				fmt.Printf("saved %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "presets",
			Short: "list available presets",
			Run: func(cmd *cobra.Command, args []string) {
				for _, p := range config.ListPresets() {
					fmt.Printf("  %s\n", p)
				}
			},
		},
	)

	rootCmd.AddCommand(layoutsCmd, selfcheckCmd, symbolsCmd, benchCmd, browseCmd, reportsCmd, reportCmd, configCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, viz.StatusFail.Render("error:"), err)
		if fault.IsFatal(err) {
			fmt.Fprintln(os.Stderr, viz.Subtle.Render("the library does not match this build of jphbridge"))
		}
		os.Exit(1)
	}
}

// loadConfig layers defaults, preset, config file and explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("library") {
		cfg.Library = library
	}
	if flags.Changed("allocator") {
		cfg.Allocator = allocator
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("poison") {
		cfg.PoisonOnRelease = poison
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	return zc.Build()
}

// loadLibrary opens the configured engine library, or the in-process one
// with --fake.
func loadLibrary(cfg *config.Config) (native.Library, error) {
	if fake {
		return nativetest.NewEngine().Lib, nil
	}
	if cfg.Library != "" {
		return native.Load(cfg.Library)
	}
	return native.Load()
}

// session is what commands that talk to the engine share.
type session struct {
	cfg *config.Config
	log *zap.Logger
	lib native.Library
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	lib, err := loadLibrary(cfg)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, lib: lib}, nil
}

func (s *session) Close() {
	s.lib.Close()
	s.log.Sync()
}

func (s *session) open() (*jph.Engine, error) {
	return jph.Open(s.cfg, s.lib, jph.WithLogger(s.log))
}

func printLayouts(cmd *cobra.Command, args []string) error {
	descs := layout.Default().Describe()
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		return enc.Encode(descs)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(descs)
	case "table":
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, d := range descs {
		fmt.Fprintf(w, "%s\tsize %d\talign %d\n", viz.Title.Render(d.Name), d.Size, d.Align)
		for _, f := range d.Fields {
			typ := f.Type
			if f.Count > 0 {
				typ = fmt.Sprintf("%s(%d)", typ, f.Count)
			}
			fmt.Fprintf(w, "  %d\t%s\t%s\n", f.Offset, f.Name, typ)
		}
	}
	return w.Flush()
}

func selfCheck(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	err = checkOnce(s)
	if !watch {
		return err
	}
	if err != nil {
		fmt.Println(viz.StatusFail.Render("error:"), err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	var paths []string
	if configFile != "" {
		paths = append(paths, configFile)
	}
	if s.cfg.Library != "" && !fake {
		paths = append(paths, s.cfg.Library)
	}
	if len(paths) == 0 {
		return errors.New("--watch needs --config or a library path")
	}
	changes, err := config.Watch(ctx, 500*time.Millisecond, paths...)
	if err != nil {
		return err
	}
	fmt.Println(viz.KeyHint.Render("watching " + strings.Join(paths, ", ") + " (ctrl+c to stop)"))
	for ch := range changes {
		fmt.Println(viz.Separator(60))
		fmt.Printf("%s %s\n", viz.Subtle.Render(ch.Op.String()), ch.Path)
		if configFile != "" {
			cfg, err := loadConfig(cmd)
			if err != nil {
				fmt.Println(viz.StatusFail.Render("config:"), err)
				continue
			}
			s.cfg = cfg
		}
		if err := checkOnce(s); err != nil {
			fmt.Println(viz.StatusFail.Render("error:"), err)
		}
	}
	return nil
}

// checkOnce opens and closes an engine, which runs the layout check, prints
// the verdict and saves a report. A failed open is saved and then returned.
func checkOnce(s *session) error {
	cfg := *s.cfg

	res := &storage.Result{OK: true, Metrics: map[string]float64{
		"layouts": float64(len(layout.Default().Names())),
		"symbols": float64(len(jph.Symbols())),
	}}
	version := ""

	start := time.Now()
	e, openErr := jph.Open(&cfg, s.lib, jph.WithLogger(s.log))
	res.Metrics["open_ms"] = float64(time.Since(start).Microseconds()) / 1000
	if openErr != nil {
		res.OK = false
		res.Errors = append(res.Errors, openErr.Error())
	} else {
		version = e.Version().String()
		unknown := e.UnknownLayouts()
		res.Metrics["unknown_layouts"] = float64(len(unknown))
		for _, tag := range unknown {
			fmt.Printf("%s %s not reported by the library\n", viz.StatusWarn.Render("WARN"), tag)
		}
		if err := e.Close(); err != nil {
			res.OK = false
			res.Errors = append(res.Errors, err.Error())
		}
	}

	fmt.Printf("%s %s\n", viz.Status(res.OK), s.lib.Name())
	if version != "" {
		fmt.Println(viz.Metric("version", version))
	}
	fmt.Println(viz.Metric("layouts", fmt.Sprint(res.Metrics["layouts"])) + "  " +
		viz.Metric("symbols", fmt.Sprint(res.Metrics["symbols"])))
	for _, msg := range res.Errors {
		fmt.Println(viz.StatusFail.Render("  " + msg))
	}

	st := storage.New(s.cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	id, err := st.Save(storage.KindSelfCheck, s.lib.Name(), version, cfg.Allocator, res)
	if err != nil {
		return err
	}
	fmt.Println(viz.Subtle.Render("saved " + id))

	return openErr
}

func listSymbols(cmd *cobra.Command, args []string) error {
	var lib native.Library
	if checkSymbols {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		lib = s.lib
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := "SYMBOL\tSIGNATURE\tSTATUS"
	if lib != nil {
		header += "\tFOUND"
	}
	fmt.Fprintln(w, header)

	missing := 0
	for _, sym := range jph.Symbols() {
		line := fmt.Sprintf("%s\t%s\t%s", sym.Name, sym.Sig, sym.Status)
		if lib != nil {
			if _, err := lib.Lookup(sym.Name); err != nil {
				missing++
				line += "\t" + viz.StatusFail.Render("no")
			} else {
				line += "\t" + viz.StatusOK.Render("yes")
			}
		}
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if missing > 0 {
		return &fault.SymbolError{Symbol: fmt.Sprintf("%d of %d symbols", missing, len(jph.Symbols()))}
	}
	return nil
}

func selectCases(names []string) ([]bench.Case, error) {
	all := bench.Cases()
	if len(names) == 0 {
		return all, nil
	}
	var out []bench.Case
	for _, name := range names {
		i := slices.IndexFunc(all, func(c bench.Case) bool { return c.Name == name })
		if i < 0 {
			known := make([]string, len(all))
			for j, c := range all {
				known[j] = c.Name
			}
			return nil, fmt.Errorf("unknown case: %s (available: %v)", name, known)
		}
		out = append(out, all[i])
	}
	return out, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	cases, err := selectCases(caseNames)
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := s.open()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fmt.Printf("benchmarking %s %s\n\n", s.lib.Name(), e.Version())
	report, err := bench.Run(ctx, e, bench.Config{Iterations: iterations, Warmup: warmup, Workers: workers}, cases)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CASE\tN\tMEAN\tP50\tP90\tP99\tMAX\tTRACE")
	for _, c := range report.Cases {
		st := c.Stats
		fmt.Fprintf(w, "%s\t%d\t%.0fns\t%.0fns\t%.0fns\t%.0fns\t%.0fns\t%s\n",
			c.Name, st.N, st.Mean, st.P50, st.P90, st.P99, st.Max, viz.Sparkline(c.Samples, 20))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if plot {
		for _, c := range report.Cases {
			fmt.Println()
			fmt.Println(bench.Plot(c.Name, c.Samples, 80, 10))
		}
	}

	st := storage.New(s.cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	id, err := st.Save(storage.KindBench, s.lib.Name(), e.Version().String(), s.cfg.Allocator, report.Result())
	if err != nil {
		return err
	}
	fmt.Println(viz.Subtle.Render("\nsaved " + id))
	return nil
}

func browse(cmd *cobra.Command, args []string) error {
	var unknown []layout.Tag
	if checkLayouts {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		e, err := s.open()
		if err != nil {
			return err
		}
		unknown = e.UnknownLayouts()
		if err := e.Close(); err != nil {
			return err
		}
	}

	b := viz.NewBrowser(layout.Default().Describe(), unknown...)
	if err := b.SetTheme(theme); err != nil {
		return err
	}
	p := tea.NewProgram(b, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func listReports(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reports, err := storage.New(cfg.DataDir).List()
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("no reports found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTIME\tLIBRARY\tVERSION\tALLOC\tOK")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
			r.ID,
			r.Kind,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Library,
			r.Version,
			r.Allocator,
			r.OK,
		)
	}
	return w.Flush()
}

func showReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", viz.Header.Render(meta.ID), viz.Status(meta.OK))
	fmt.Println(viz.Metric("kind", meta.Kind) + "  " + viz.Metric("library", meta.Library) + "  " +
		viz.Metric("version", meta.Version))
	keys := make([]string, 0, len(meta.Metrics))
	for k := range meta.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Println("  " + viz.Metric(k, fmt.Sprintf("%.2f", meta.Metrics[k])))
	}
	for _, msg := range meta.Errors {
		fmt.Println(viz.StatusFail.Render("  " + msg))
	}

	if meta.Kind != storage.KindBench {
		return nil
	}
	names, series, err := st.LoadSamples(meta.ID)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println()
		fmt.Println(bench.Plot(name, series[name], 80, 10))
	}
	return nil
}
