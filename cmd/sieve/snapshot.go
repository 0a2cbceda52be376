package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sievelit/sieve/pkg/snapshot"
)

var snapshotOut string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Point-in-time captures of the screening collections",
}

var snapshotCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture the funnel collections into an archive",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		keys := scopeKeys(ctx, app)
		snap, err := app.Capturer.Capture(ctx, keys)
		if err != nil {
			fatal("Error capturing snapshot", err)
		}

		out := snapshotOut
		if out == "" {
			out = fmt.Sprintf("sieve-snapshot-%s.zip", snap.Meta.Timestamp.Format("20060102-150405"))
		}
		if err := snapshot.WriteArchive(out, snap); err != nil {
			fatal("Error writing snapshot archive", err)
		}

		fmt.Printf("Captured %d items into %s (%s)\n", snap.Meta.ItemCount, out, snap.Meta.Status)
		for _, f := range snap.Failures {
			fmt.Printf("  failed: %s (%s)\n", f.ItemKey, f.Error)
		}
	},
}

var snapshotInfoCmd = &cobra.Command{
	Use:   "info <archive.zip>",
	Short: "Show a snapshot's manifest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		meta, err := snapshot.ReadMeta(args[0])
		if err != nil {
			fatal("Error reading snapshot archive", err)
		}
		fmt.Printf("id:          %s\n", meta.ID)
		fmt.Printf("captured:    %s\n", meta.Timestamp.Format(time.RFC3339))
		fmt.Printf("collections: %v\n", meta.Collections)
		fmt.Printf("items:       %d\n", meta.ItemCount)
		fmt.Printf("status:      %s\n", meta.Status)
		if meta.Generator != "" {
			fmt.Printf("generator:   %s\n", meta.Generator)
		}
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotCaptureCmd)
	snapshotCmd.AddCommand(snapshotInfoCmd)

	snapshotCaptureCmd.Flags().StringVarP(&snapshotOut, "out", "o", "", "Archive path (default: timestamped name)")
	snapshotCaptureCmd.Flags().StringSliceVar(&reportCollections, "collection", nil, "Collection name, key or glob (repeatable; default: configured funnel)")
}
