package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hunter/internal/hunt"
	"hunter/internal/provider"
	"hunter/internal/symbols"
)

func newImportCmd() *cobra.Command {
	var (
		csvPath string
		index   string
		fetch   bool
		codes   string
		days    int
		workers int
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load daily bars into the database from a CSV file or EastMoney",
		Example: `  hunter import --csv bars.csv
  hunter import --csv hs300.csv --index hs300
  hunter import --fetch --codes 000725,600138 --days 600`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (csvPath != "") == fetch {
				return fmt.Errorf("give exactly one of --csv or --fetch")
			}
			if workers < 1 {
				return fmt.Errorf("workers must be at least 1")
			}

			cfg, log, closeLog, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := provider.OpenStore(cfg.Data.DBPath, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer store.Close()

			if csvPath != "" {
				file, err := os.Open(csvPath)
				if err != nil {
					return fmt.Errorf("opening csv: %w", err)
				}
				defer file.Close()

				if index != "" {
					return importConstituents(ctx, cmd, store, index, file)
				}
				n, err := store.ImportCSV(ctx, file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d bars from %s\n", n, csvPath)
				return nil
			}

			em := provider.NewEastMoney(provider.EastMoneyConfig{
				RequestsPerMin: cfg.Data.EastMoney.RateLimit,
				Timeout:        cfg.Data.EastMoney.Timeout,
			}, log)

			var list []string
			if codes != "" {
				list, err = symbols.NewLoader(nil, nil).LoadCodes(strings.Split(codes, ","))
			} else {
				list, err = symbols.NewLoader(em, nil).LoadAll(ctx)
			}
			if err != nil {
				return err
			}

			bar := newProgressBar(len(list), "Fetching")
			var done, bars atomic.Int64
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(workers)
			for _, code := range list {
				if gctx.Err() != nil {
					break
				}
				g.Go(func() error {
					defer func() { bar.Set(int(done.Add(1))) }()
					s, err := em.LatestBars(gctx, code, days)
					if err != nil {
						log.Warn().Err(err).Str("code", code).Msg("fetch failed")
						return nil
					}
					if s.Empty() {
						return nil
					}
					if err := store.UpsertBars(gctx, code, s.Bars); err != nil {
						return fmt.Errorf("storing %s: %w", code, err)
					}
					bars.Add(int64(s.Len()))
					return nil
				})
			}
			err = g.Wait()
			bar.Finish()
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d bars for %d stocks\n", bars.Load(), len(list))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&csvPath, "csv", "", "CSV file with code, date, open, high, low, close, volume columns")
	flags.StringVar(&index, "index", "", "treat --csv as the member codes of this index, one per line")
	flags.BoolVar(&fetch, "fetch", false, "download bars from EastMoney")
	flags.StringVar(&codes, "codes", "", "comma-separated codes to fetch (default: every listed stock)")
	flags.IntVar(&days, "days", hunt.DefaultDays+100, "bars fetched per stock")
	flags.IntVar(&workers, "workers", 4, "parallel downloads")
	return cmd
}

// importConstituents replaces an index's members with the codes in r, one per
// line or comma separated
func importConstituents(ctx context.Context, cmd *cobra.Command, store *provider.Store, name string, r io.Reader) error {
	idx, err := symbols.ParseIndex(name)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading members: %w", err)
	}
	raw := strings.FieldsFunc(string(data), func(c rune) bool {
		return c == '\n' || c == '\r' || c == ',' || c == ' ' || c == '\t'
	})
	var codes []string
	for _, c := range raw {
		n, err := symbols.Normalize(c)
		if err != nil {
			continue // header or junk
		}
		codes = append(codes, n)
	}
	if len(codes) == 0 {
		return fmt.Errorf("no valid codes for index %s", name)
	}
	if err := store.UpsertConstituents(ctx, string(idx), codes); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d members of %s\n", len(codes), name)
	return nil
}
