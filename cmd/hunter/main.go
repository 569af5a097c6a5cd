package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"hunter/internal/config"
	"hunter/internal/logger"
	"hunter/internal/provider"
	"hunter/internal/strategy"
)

var (
	cfgFile  string
	logLevel string
	dbPath   string
	remote   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hunter",
		Short: "A-share pattern hunter",
		Long: `Hunter scans A-share daily bars for rule-based buy setups.

Strategies:
  b1                 - Oversold pullback after a volume-backed ignition run
  hammer             - Hammer reversal after a decline
  macd-divergence    - Price lower low with a higher DIF low
  turtle             - Donchian channel breakout with ATR stops
  wyckoff            - Spring or secondary test of range support
  breakout-pullback  - Low-volume dip after a sharp rally
  golden-cross       - MA5 over MA20 with MACD and volume confirmation
  volume-surge       - Consecutive up days on rising volume, OBV confirmed
  platform-breakout  - Heavy-volume close above a tight sideways box
  sf                 - Oversold J above the yellow line after a volume ignition

Examples:
  hunter hunt --strategy b1 --pool hs300+csi500
  hunter hunt --strategy golden-cross,volume-surge --combine intersection
  hunter hunt --strategy b1 --pool codes --codes 000725,600138 --as-of 2025-12-23
  hunter import --csv bars.csv`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path")
	rootCmd.PersistentFlags().BoolVar(&remote, "remote", false, "fall back to EastMoney when the database has no bars")

	rootCmd.AddCommand(newHuntCmd(), newStrategiesCmd(), newImportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration, applies the persistent flags and builds
// the logger
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, func() error, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("db") {
		cfg.Data.DBPath = dbPath
	}
	if flags.Changed("remote") {
		cfg.Data.Remote = remote
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	log, closeLog, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, log, closeLog, nil
}

// openSources opens the store and, when enabled, chains EastMoney behind it.
// Bars are cached in memory when several strategies scan the same pool or
// when misses go out to the network.
func openSources(cfg *config.Config, strategies int, log zerolog.Logger) (*provider.Store, provider.BarProvider, error) {
	store, err := provider.OpenStore(cfg.Data.DBPath, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	var bars provider.BarProvider = store
	if cfg.Data.Remote {
		em := provider.NewEastMoney(provider.EastMoneyConfig{
			RequestsPerMin: cfg.Data.EastMoney.RateLimit,
			Timeout:        cfg.Data.EastMoney.Timeout,
		}, log)
		bars = provider.NewFallback(store, em)
	}
	if strategies > 1 || cfg.Data.Remote {
		bars = provider.NewCaching(bars, cfg.Hunt.Days)
	}
	return store, bars, nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the registered strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := tablewriter.NewTable(cmd.OutOrStdout(),
				tablewriter.WithHeader([]string{"Name", "Min Bars", "Description"}),
			)
			for _, info := range strategy.AllInfo() {
				table.Append([]string{info.Name, fmt.Sprintf("%d", info.MinBars), info.Description})
			}
			return table.Render()
		},
	}
}
