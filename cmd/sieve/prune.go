package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pruneDryRun bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove included items from the excluded collection",
	Long: `An item that sits in both funnel endpoints was re-included after an earlier
rejection; the stale excluded membership is removed. Inclusion always wins:
prune never touches the included collection.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		included := resolveKey(ctx, app, "", app.Config.IncludedCollection)
		excluded := resolveKey(ctx, app, "", app.Config.ExcludedCollection)

		result, err := app.Engine.Prune(ctx, included, excluded, pruneDryRun)
		if err != nil {
			fatal("Error pruning", err)
		}

		for _, key := range result.Overlap {
			fmt.Println(key)
		}
		if pruneDryRun {
			fmt.Printf("%d items would be removed from excluded\n", len(result.Overlap))
			return
		}
		fmt.Printf("%d items removed from excluded\n", len(result.Removed))
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "List the overlap without removing anything")
}
