package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/jepx/internal/config"
	"github.com/IshaanNene/jepx/internal/fetcher"
	"github.com/IshaanNene/jepx/internal/jepx"
	"github.com/IshaanNene/jepx/internal/market"
	"github.com/IshaanNene/jepx/internal/observability"
	"github.com/IshaanNene/jepx/internal/types"
)

var (
	cfgFile     string
	verbose     bool
	visible     bool
	overwrite   bool
	outputPath  string
	area        string
	metricsFile string
	traceOut    string
)

var timeNow = time.Now

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "jepx",
		Short: "Retrieve JEPX spot-market CSV data",
		Long: `jepx drives a headless browser against the JEPX website to reach a market-data
view for one date and saves the matching CSV files.

Dated commands take exactly one date in YYYY/MM/DD form.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		datedCmd("curve", market.KindBidCurve, "Download the spot bid curves for a delivery date"),
		datedCmd("virtual-price", market.KindVirtualPrice, "Download the virtual-price series for the date's fiscal year"),
		datedCmd("summary", market.KindSummary, "Download the spot summary for the date's fiscal year"),
		datedCmd("spot", market.KindSpotGraph, "Download the spot price graph data for a delivery date"),
		datedCmd("transmission-rights", market.KindTransmissionRights, "Download transmission-rights results for a date"),
		unitStatusCmd(),
		undatedCmd("unit", market.KindUnit, "Download the generating-unit list"),
		undatedCmd("outages", market.KindOutages, "Download the current outage list"),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&visible, "visible", false, "show the browser window (slow motion)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", true, "replace files that already exist")
	cmd.Flags().StringVarP(&outputPath, "out", "o", "", "output directory (default from config)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write run counters in Prometheus text format to this file")
	cmd.Flags().StringVar(&traceOut, "trace", "", "export request spans: none, stdout or otlp (default from config)")
}

// dateArg accepts exactly one YYYY/MM/DD argument.
func dateArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	_, err := types.ParseTargetDate(args[0])
	return err
}

// datedCmd creates a subcommand that retrieves kind for one date.
func datedCmd(use string, kind market.Kind, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " YYYY/MM/DD",
		Short: short,
		Args:  dateArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := types.ParseTargetDate(args[0])
			return run(cmd, kind, date)
		},
	}
	addRunFlags(cmd)
	return cmd
}

func unitStatusCmd() *cobra.Command {
	cmd := datedCmd("unit-status", market.KindUnitStatus, "Download operating and stopped unit capacity for an area")
	cmd.Flags().StringVar(&area, "area", market.DefaultArea, "area code (1=Hokkaido ... 9=Kyushu)")
	cmd.PreRunE = func(*cobra.Command, []string) error {
		return fetcher.ValidateArea(area)
	}
	return cmd
}

// undatedCmd creates a subcommand for items that are not addressed by date.
func undatedCmd(use string, kind market.Kind, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, kind, types.DateOf(timeNow()))
		},
	}
	addRunFlags(cmd)
	return cmd
}

// run executes one retrieval.
func run(cmd *cobra.Command, kind market.Kind, date types.TargetDate) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := setupLogger(&cfg.Logging).With("run_id", uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := observability.SetupTracing(ctx, &cfg.Tracing, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	client := jepx.New(cfg, logger, jepx.WithTracerProvider(tracing.Provider()))
	result, err := client.Run(ctx, kind, date, jepx.RunOptions{
		Visible:   cfg.Browser.Visible,
		Overwrite: cfg.Storage.Overwrite,
		Area:      area,
	})
	if err != nil {
		return err
	}

	printReport(os.Stdout, result)
	client.Metrics().Log()

	if metricsFile != "" {
		if err := writeMetrics(metricsFile, client); err != nil {
			logger.Warn("failed to write metrics file", "path", metricsFile, "error", err)
		}
	}
	return nil
}

func writeMetrics(path string, client *jepx.Client) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := client.Metrics().WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("jepx %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// setupLogger creates a structured logger.
func setupLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("visible") {
		cfg.Browser.Visible = visible
	}
	if flags.Changed("overwrite") {
		cfg.Storage.Overwrite = overwrite
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if traceOut != "" {
		cfg.Tracing.Exporter = traceOut
	}
}
