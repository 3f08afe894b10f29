package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/app"
	"github.com/ternarybob/pharmyrus/internal/common"
	"github.com/ternarybob/pharmyrus/internal/services/report"
)

var (
	// Persistent flags
	configFiles   []string
	snapshotFiles []string
	logLevel      string
	poolSize      int
	metricsAddr   string
	outputFormat  string
	outputFile    string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "pharmyrus",
	Short: "Patent intelligence for pharmaceutical molecules",
	Long:  `Pharmyrus resolves a molecule's synonyms, discovers its WO patent families,
extracts national phase filings from the patent database and merges national
registry, regulatory approval and clinical trial data into one report.`,
	Version:           common.GetFullVersion(),
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	pf.StringArrayVar(&snapshotFiles, "snapshot", nil, "Replay saved detail page HTML instead of launching browsers (repeatable, one file per page stage)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	pf.IntVar(&poolSize, "pool-size", 0, "Maximum concurrent browser sessions (overrides config)")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	pf.StringVarP(&outputFormat, "format", "f", report.FormatJSON, "Output format: json, markdown, html")
	pf.StringVarP(&outputFile, "output", "o", "", "Write output to a file instead of stdout")

	rootCmd.AddCommand(searchCmd, wipoCmd, versionCmd)
}

func main() {
	defer common.RecoverWithCrashFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// setup runs the startup sequence (REQUIRED ORDER):
// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
// 2. Apply CLI overrides (highest priority)
// 3. Validate
// 4. Initialize logger
// 5. Print banner
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == versionCmd.Name() {
		return nil
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("pharmyrus.toml"); err == nil {
			configFiles = append(configFiles, "pharmyrus.toml")
		} else if _, err := os.Stat("deployments/local/pharmyrus.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/pharmyrus.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, poolSize, logLevel, metricsAddr)

	if err := config.Validate(); err != nil {
		return err
	}

	logger = common.SetupLogger(config)

	// stdout carries the report unless it goes to a file
	if outputFile != "" {
		common.PrintBanner(config, logger)
	}

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Int("pool_size", config.Crawler.PoolSize).
		Str("cache_backend", config.Crawler.CacheBackend).
		Str("format", outputFormat).
		Msg("Resolved configuration")

	return nil
}

// newApp builds the application, reading snapshot stages when given
func newApp() (*app.App, error) {
	opts := app.Options{}
	for _, path := range snapshotFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
		}
		opts.SnapshotStages = append(opts.SnapshotStages, string(data))
	}
	return app.New(config, logger, opts)
}

// writeOutput sends rendered output to the --output file or stdout
func writeOutput(data []byte) error {
	if outputFile == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputFile, err)
	}
	logger.Info().Str("path", outputFile).Int("bytes", len(data)).Msg("Output written")
	return nil
}
