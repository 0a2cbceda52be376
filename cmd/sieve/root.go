package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sievelit/sieve/internal/platform"
	"github.com/sievelit/sieve/pkg/core"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sieve",
	Short: "Screening decisions for systematic literature reviews, stored in your reference library",
	Long: `Sieve records screening decisions as structured audit notes attached to the
items of a Zotero library, moves items through the review funnel and reports
on screening progress.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the configuration file (default: sieve.yaml, searched upward)")
}

// buildApp assembles the application from the configuration; the CLI always
// writes with the command-line tool identity.
func buildApp() *platform.App {
	cfg, err := platform.LoadConfig(cfgFile)
	if err != nil {
		fatal("Error loading configuration", err)
	}
	app, err := platform.New(cfg,
		platform.WithLogger(slog.Default()),
		platform.WithGenerator("sieve "+version),
	)
	if err != nil {
		fatal("Error connecting to the library", err)
	}
	return app
}

// resolveKey turns a collection name or key into a key, falling back to a
// configured default when the argument is empty.
func resolveKey(ctx context.Context, app *platform.App, nameOrKey, fallback string) string {
	if nameOrKey == "" {
		nameOrKey = fallback
	}
	if nameOrKey == "" {
		fatal("Error resolving collection", fmt.Errorf("no collection given and none configured"))
	}
	col, err := core.ResolveCollection(ctx, app.Gateway, nameOrKey)
	if err != nil {
		fatal("Error resolving collection", err)
	}
	return col.Key
}
