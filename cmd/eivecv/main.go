// Command eivecv cross-validates EIVE indicator models from trait, climate
// and soil summaries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jaredquekjz/plantguide-sub007/config"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

const (
	Version = "0.3.0"
	appName = "eivecv"
)

type globalFlags struct {
	configPath string
	dataPath   string
	outDir     string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Cross-validated model selection for EIVE indicator values",
		Long: `eivecv predicts Ellenberg-type indicator values (EIVE L, T, M, R, N)
from plant traits and climate or soil summaries.

Each fold standardises predictors, derives the LES and SIZE composites,
fits a ladder of linear and additive candidates and keeps the one with
the lowest AICc. Predictions from all folds are pooled into the reported
metrics.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(g.logLevel, g.logFormat)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	pf.StringVarP(&g.dataPath, "data", "d", "", "input table (.csv, .csv.gz, .csv.zst or .xlsx)")
	pf.StringVarP(&g.outDir, "out", "o", "artifacts", "output directory")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "json", "log backend (json, console, slog)")

	cmd.AddCommand(
		newRunCmd(g),
		newImportanceCmd(g),
		newFoldsCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

func setupLogging(level, format string) error {
	lv, err := log.ParseLevel(level)
	if err != nil {
		return errors.NewValidationError("log-level", err.Error(), level)
	}
	switch format {
	case "json":
		log.SetProvider(log.NewZerologProvider(os.Stderr, lv))
	case "console":
		log.SetProvider(log.NewConsoleProvider(os.Stderr, lv))
	case "slog":
		log.SetProvider(log.NewSlogProvider(os.Stderr, lv))
	default:
		return errors.NewValidationError("log-format", "must be json, console or slog", format)
	}
	return nil
}

// loadConfig reads the config file when given and applies flag overrides.
func loadConfig(cmd *cobra.Command, g *globalFlags, ov *overrides) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(g.configPath); err != nil {
			return nil, err
		}
	}
	if ov != nil {
		ov.apply(cmd, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g.dataPath == "" {
		return nil, errors.NewValidationError("data", "an input table is required", g.dataPath)
	}
	return cfg, nil
}
