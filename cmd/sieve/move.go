package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var moveFrom string

var moveCmd = &cobra.Command{
	Use:   "move <item-key> <to-collection>",
	Short: "Move an item between collections without touching its decisions",
	Long: `Relocates the item into the target collection. Without --from the source is
inferred, which requires the item to sit in exactly one other collection;
memberships unrelated to the move are always preserved.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		to := resolveKey(ctx, app, args[1], "")
		var from string
		if moveFrom != "" {
			from = resolveKey(ctx, app, moveFrom, "")
		}

		if err := app.Mover.Move(ctx, args[0], from, to); err != nil {
			fatal("Error moving item", err)
		}
		fmt.Printf("Moved %s to %s\n", args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(moveCmd)
	moveCmd.Flags().StringVar(&moveFrom, "from", "", "Source collection (default: inferred)")
}
