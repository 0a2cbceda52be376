package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sieve version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sieve %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
