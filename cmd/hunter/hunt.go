package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hunter/internal/hunt"
	"hunter/internal/metrics"
	"hunter/internal/provider"
	"hunter/internal/report"
	"hunter/internal/strategy"
	"hunter/internal/symbols"
	"hunter/pkg/model"
)

type huntFlags struct {
	strategies  string
	combine     string
	pool        string
	codes       string
	asOf        string
	days        int
	workers     int
	format      string
	out         string
	diagnose    bool
	metricsAddr string
}

func newHuntCmd() *cobra.Command {
	var f huntFlags
	cmd := &cobra.Command{
		Use:   "hunt",
		Short: "Scan a pool of stocks with one or more strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHunt(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.strategies, "strategy", "b1", "comma-separated strategies (see `hunter strategies`)")
	flags.StringVar(&f.combine, "combine", "union", "how results of several strategies merge: union, intersection")
	flags.StringVar(&f.pool, "pool", "all", "pool: all, codes, samples, or indexes such as hs300, csi500, hs300+csi500")
	flags.StringVar(&f.codes, "codes", "", "comma-separated codes for --pool codes")
	flags.StringVar(&f.asOf, "as-of", "", "judge the market as of this date (2006-01-02); default latest")
	flags.IntVar(&f.days, "days", hunt.DefaultDays, "bars loaded per stock")
	flags.IntVar(&f.workers, "workers", hunt.DefaultWorkers, "number of parallel workers")
	flags.StringVar(&f.format, "format", "table", "output format: "+strings.Join(report.Formats, ", "))
	flags.StringVar(&f.out, "out", "", "write the report to this file instead of stdout")
	flags.BoolVar(&f.diagnose, "diagnose", false, "record the stage that rejected each stock (single strategy only)")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9108")
	return cmd
}

func runHunt(cmd *cobra.Command, f huntFlags) error {
	cfg, log, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	// Override config with CLI flags
	flags := cmd.Flags()
	if flags.Changed("strategy") {
		cfg.Hunt.Strategy = f.strategies
	}
	if flags.Changed("pool") {
		cfg.Hunt.Pool = f.pool
	}
	if flags.Changed("days") {
		cfg.Hunt.Days = f.days
	}
	if flags.Changed("workers") {
		cfg.Hunt.Workers = f.workers
	}
	if flags.Changed("format") {
		cfg.Hunt.Format = f.format
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	strategies, err := parseStrategies(cfg.Hunt.Strategy)
	if err != nil {
		return err
	}
	var asOf time.Time
	if f.asOf != "" {
		if asOf, err = time.Parse(model.DateLayout, f.asOf); err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warnShortHistory(strategies, cfg.Hunt.Days, log)

	store, bars, err := openSources(cfg, len(strategies), log)
	if err != nil {
		return err
	}
	defer store.Close()

	pool, err := buildPool(ctx, cfg.Hunt.Pool, f.codes, symbols.NewLoader(bars, store), asOf, cfg.Hunt.Days)
	if err != nil {
		return fmt.Errorf("building pool: %w", err)
	}
	if len(pool) == 0 {
		return fmt.Errorf("pool %q is empty; import bars first", cfg.Hunt.Pool)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	hm := metrics.NewHunt(reg)
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, log)
		defer srv.Close()
	}

	var diag *hunt.Diagnostics
	if f.diagnose {
		diag = hunt.NewDiagnostics()
	}

	start := time.Now()
	var sets [][]*hunt.Result
	for _, s := range strategies {
		fmt.Fprintf(os.Stderr, "Hunting %d stocks with %s...\n", len(pool), s.Name())
		bar := newProgressBar(len(pool), s.Name())
		opts := []hunt.Option{
			hunt.WithWorkers(cfg.Hunt.Workers),
			hunt.WithLogger(log),
			hunt.WithMetrics(hm),
			hunt.WithProgress(func(done, total int) { bar.Set(done) }),
			hunt.WithOnResult(func(r *hunt.Result) {
				log.Debug().Str("strategy", s.Name()).Str("code", r.Code).Msg("match")
			}),
		}
		if diag != nil && len(strategies) == 1 {
			opts = append(opts, hunt.WithDiagnostics(diag))
		}

		results, err := hunt.NewMachine(bars, store, opts...).Hunt(ctx, s, s.MinBars(), pool)
		bar.Finish()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("hunting with %s: %w", s.Name(), err)
		}
		sets = append(sets, results)
	}
	if ctx.Err() != nil {
		log.Warn().Msg("hunt interrupted, reporting partial results")
	}

	results, err := combine(f.combine, sets)
	if err != nil {
		return err
	}
	hunt.SortByCode(results)

	var w io.Writer = cmd.OutOrStdout()
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer file.Close()
		w = file
	}

	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name()
	}
	return report.Write(w, cfg.Hunt.Format, report.Summary{
		Strategy:    strings.Join(names, "+"),
		Pool:        cfg.Hunt.Pool,
		AsOf:        asOf,
		Scanned:     len(pool),
		Elapsed:     time.Since(start),
		Results:     results,
		Diagnostics: diag,
	})
}

// warnShortHistory flags strategies that can never match with the bars
// loaded per stock
func warnShortHistory(strategies []strategy.Strategy, days int, log zerolog.Logger) {
	for _, s := range strategies {
		if days < s.MinBars() {
			log.Warn().
				Str("strategy", s.Name()).
				Int("days", days).
				Int("min_bars", s.MinBars()).
				Msg("days below the strategy's minimum history, every stock will be skipped")
		}
	}
}

func parseStrategies(list string) ([]strategy.Strategy, error) {
	var out []strategy.Strategy
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s, err := strategy.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no strategy given")
	}
	return out, nil
}

// buildPool resolves --pool into hunt inputs. Inputs are shared across
// strategies so each stock's bars load once.
func buildPool(ctx context.Context, pool, codes string, l *symbols.Loader, asOf time.Time, days int) ([]hunt.Member, error) {
	switch strings.ToLower(pool) {
	case "all":
		return hunt.AllPool(ctx, l, asOf, days)
	case "codes":
		if codes == "" {
			return nil, fmt.Errorf("--pool codes needs --codes")
		}
		return hunt.CodesPool(strings.Split(codes, ","), asOf, days)
	case "samples":
		return hunt.SamplePool(days)
	}
	indexes, err := symbols.ParseIndexes(pool)
	if err != nil {
		return nil, err
	}
	return hunt.IndexPool(ctx, l, asOf, days, indexes...)
}

func combine(mode string, sets [][]*hunt.Result) ([]*hunt.Result, error) {
	switch mode {
	case "union", "":
		return hunt.Union(sets...), nil
	case "intersection":
		return hunt.Intersection(sets...), nil
	}
	return nil, fmt.Errorf("unknown --combine %q (available: union, intersection)", mode)
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}

var (
	_ provider.InfoLookup       = (*provider.Store)(nil)
	_ symbols.ConstituentSource = (*provider.Store)(nil)
)
