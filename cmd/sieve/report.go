package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sievelit/sieve/internal/platform"
	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/report"
	"github.com/sievelit/sieve/pkg/snapshot"
)

var (
	reportCollections []string
	reportJSON        bool
	exportOut         string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Screening progress reports",
}

var reportPrismaCmd = &cobra.Command{
	Use:   "prisma",
	Short: "PRISMA funnel statistics per collection",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		keys := scopeKeys(ctx, app)
		prisma, err := app.Engine.Prisma(ctx, keys)
		if err != nil {
			fatal("Error computing statistics", err)
		}

		if reportJSON {
			printJSON(prisma)
			return
		}
		for _, s := range prisma.Collections {
			fmt.Printf("%s: %d items, %d decided (%d accepted, %d rejected)\n",
				s.CollectionKey, s.Total, s.Decided, s.Accepted, s.Rejected)
			codes := make([]string, 0, len(s.RejectionCodes))
			for c := range s.RejectionCodes {
				codes = append(codes, c)
			}
			sort.Strings(codes)
			for _, c := range codes {
				fmt.Printf("  %s: %d\n", c, s.RejectionCodes[c])
			}
			for _, key := range s.Conflicted {
				fmt.Printf("  conflict: %s\n", key)
			}
			for itemKey, notes := range s.MalformedNotes {
				fmt.Printf("  malformed: %s %v\n", itemKey, notes)
			}
		}
	},
}

var reportDriftCmd = &cobra.Command{
	Use:   "drift <old.zip> <new.zip>",
	Short: "Compare two snapshots",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		old, err := snapshot.ReadArchive(args[0])
		if err != nil {
			fatal("Error reading snapshot", err)
		}
		current, err := snapshot.ReadArchive(args[1])
		if err != nil {
			fatal("Error reading snapshot", err)
		}

		drift := report.Drift(old, current)
		if reportJSON {
			printJSON(drift)
			return
		}
		for _, key := range drift.Added {
			fmt.Printf("added: %s\n", key)
		}
		for _, key := range drift.Removed {
			fmt.Printf("removed: %s\n", key)
		}
		for _, c := range drift.DecisionChanges {
			fmt.Printf("changed: %s %s/%s %q -> %q\n", c.ItemKey, c.Persona, c.Phase, c.From, c.To)
		}
		if len(drift.Added)+len(drift.Removed)+len(drift.DecisionChanges) == 0 {
			fmt.Println("No drift.")
		}
	},
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every decision as CSV",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				fatal("Error creating output file", err)
			}
			defer f.Close()
			out = f
		}

		if err := app.Engine.ExportCSV(ctx, out, scopeKeys(ctx, app)); err != nil {
			fatal("Error exporting decisions", err)
		}
	},
}

// scopeKeys resolves --collection selectors, defaulting to the configured
// funnel collections.
func scopeKeys(ctx context.Context, app *platform.App) []string {
	selectors := reportCollections
	if len(selectors) == 0 {
		for _, name := range []string{
			app.Config.PendingCollection,
			app.Config.IncludedCollection,
			app.Config.ExcludedCollection,
		} {
			if name != "" {
				selectors = append(selectors, name)
			}
		}
	}
	if len(selectors) == 0 {
		fatal("Error resolving collections", fmt.Errorf("no collections given and none configured"))
	}

	cols, err := core.ResolveScope(ctx, app.Gateway, selectors)
	if err != nil {
		fatal("Error resolving collections", err)
	}
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = c.Key
	}
	return keys
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fatal("Error encoding JSON", err)
	}
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportPrismaCmd)
	reportCmd.AddCommand(reportDriftCmd)
	reportCmd.AddCommand(reportExportCmd)

	reportCmd.PersistentFlags().StringSliceVar(&reportCollections, "collection", nil, "Collection name, key or glob (repeatable; default: configured funnel)")
	reportCmd.PersistentFlags().BoolVar(&reportJSON, "json", false, "Output in JSON format")
	reportExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to a file instead of stdout")
}
