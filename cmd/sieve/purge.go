package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sievelit/sieve/internal/platform"
	"github.com/sievelit/sieve/pkg/sdb"
)

var (
	purgeCollection string
	purgePhase      string
	purgeSDBOnly    bool
	purgeDryRun     bool
	purgeYes        bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Bulk-delete decision records",
}

var purgeNotesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Delete the decision notes of every item in a collection",
	Long: `Removes decision records, optionally narrowed to one phase. Human notes are
only touched with --sdb-only=false. Destructive: asks for confirmation unless
--yes is given.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		collKey := resolveKey(ctx, app, purgeCollection, app.Config.PendingCollection)
		items, err := app.Gateway.ItemsInCollection(ctx, collKey)
		if err != nil {
			fatal("Error listing collection", err)
		}

		if !purgeDryRun && !purgeYes {
			fmt.Printf("About to delete decision notes on %d items. Type 'purge' to continue: ", len(items))
			reader := bufio.NewReader(os.Stdin)
			line, _ := reader.ReadString('\n')
			if strings.TrimSpace(line) != "purge" {
				fmt.Println("Aborted.")
				return
			}
		}

		total := 0
		for _, it := range items {
			var deleted []string
			var err error
			if purgeSDBOnly {
				deleted, err = app.Ledger.Purge(ctx, it.Key, sdb.Phase(purgePhase), purgeDryRun)
			} else {
				deleted, err = purgeAllNotes(ctx, app, it.Key)
			}
			if err != nil {
				fatal("Error purging notes", err)
			}
			total += len(deleted)
		}
		if purgeDryRun {
			fmt.Printf("%d notes would be deleted\n", total)
			return
		}
		fmt.Printf("%d notes deleted\n", total)
	},
}

// purgeAllNotes deletes every child note of the item, human notes included.
func purgeAllNotes(ctx context.Context, app *platform.App, itemKey string) ([]string, error) {
	notes, err := app.Gateway.Children(ctx, itemKey)
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, n := range notes {
		if !purgeDryRun {
			if err := app.Gateway.DeleteNote(ctx, n.Key, n.Version); err != nil {
				return deleted, err
			}
		}
		deleted = append(deleted, n.Key)
	}
	return deleted, nil
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.AddCommand(purgeNotesCmd)

	purgeNotesCmd.Flags().StringVar(&purgeCollection, "collection", "", "Collection to purge (default: configured pending collection)")
	purgeNotesCmd.Flags().StringVar(&purgePhase, "phase", "", "Only delete records for this phase")
	purgeNotesCmd.Flags().BoolVar(&purgeSDBOnly, "sdb-only", true, "Only delete decision records, never human notes")
	purgeNotesCmd.Flags().BoolVar(&purgeDryRun, "dry-run", false, "Count without deleting")
	purgeNotesCmd.Flags().BoolVar(&purgeYes, "yes", false, "Skip the confirmation prompt")
}
