package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	cfgpkg "github.com/KaramelBytes/cplog-cli/internal/config"
	"github.com/KaramelBytes/cplog-cli/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	debug     bool
	logFormat string

	// Loaded configuration; cfgErr holds the reason when loading failed.
	cfg    *cfgpkg.Global
	cfgErr error
	logger = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "cplog",
	Short: "cplog: parse CP wafer-test logs and report yield and capability",
	Long: `cplog reads circuit-probe tester logs (No.U header, LimitU/LimitL rows, one row per die),
merges them into one dataset and reports per-group statistics, yield and Cp/Cpk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.cplog/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text|json (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		cfg, cfgErr = nil, err
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg, cfgErr = c, nil

	opt := logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}
	if debug {
		opt.Level = "debug"
		opt.Source = true
	}
	if rootCmd.PersistentFlags().Changed("log-format") && logFormat != "" {
		opt.Format = logFormat
	}
	logger = logging.New(os.Stderr, opt)
	slog.SetDefault(logger)
}

// currentConfig returns the loaded configuration or the load error.
func currentConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	if cfgErr != nil {
		return nil, cfgErr
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}
