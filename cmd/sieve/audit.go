package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sievelit/sieve/pkg/sdb"
)

var (
	auditCollection string
	auditWorkers    int
	pendingPhase    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Sweep a collection for metadata gaps and decision problems",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		collKey := resolveKey(ctx, app, auditCollection, app.Config.PendingCollection)
		workers := auditWorkers
		if workers == 0 {
			workers = app.Config.Workers
		}
		findings, err := app.Engine.Audit(ctx, collKey, workers)
		if err != nil {
			fatal("Error auditing collection", err)
		}

		for _, f := range findings {
			if f.Detail != "" {
				fmt.Printf("%s: %s (%s)\n", f.ItemKey, f.Kind, f.Detail)
				continue
			}
			fmt.Printf("%s: %s\n", f.ItemKey, f.Kind)
		}
		if len(findings) == 0 {
			fmt.Println("No findings.")
			return
		}
		os.Exit(1)
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List the items still awaiting a decision",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		collKey := resolveKey(ctx, app, auditCollection, app.Config.PendingCollection)
		items, err := app.Engine.Pending(ctx, collKey, sdb.Phase(pendingPhase))
		if err != nil {
			fatal("Error listing pending items", err)
		}

		for _, it := range items {
			fmt.Printf("%s  %s\n", it.Key, it.Title)
		}
		fmt.Printf("%d pending\n", len(items))
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(pendingCmd)

	auditCmd.Flags().StringVar(&auditCollection, "collection", "", "Collection to audit (default: configured pending collection)")
	auditCmd.Flags().IntVar(&auditWorkers, "workers", 0, "Concurrent item scans (default: configured workers)")

	pendingCmd.Flags().StringVar(&auditCollection, "collection", "", "Collection to scan (default: configured pending collection)")
	pendingCmd.Flags().StringVar(&pendingPhase, "phase", "", "Only count decisions for this phase")
}
