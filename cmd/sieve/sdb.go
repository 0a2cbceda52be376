package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sievelit/sieve/pkg/sdb"
)

var (
	sdbJSON       bool
	sdbDryRun     bool
	sdbCollection string

	editPersona  string
	editPhase    string
	editDecision string
	editCodes    []string
	editReason   string
	editEvidence string
	editLocation string
)

var sdbCmd = &cobra.Command{
	Use:   "sdb",
	Short: "Inspect and maintain the decision records on items",
}

var sdbInspectCmd = &cobra.Command{
	Use:   "inspect <item-key>",
	Short: "Show every decision record on an item",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		entries, malformed, err := app.Ledger.Scan(ctx, args[0])
		if err != nil {
			fatal("Error reading decision records", err)
		}

		if sdbJSON {
			out := struct {
				Records   []sdb.Record `json:"records"`
				Malformed []string     `json:"malformed_notes,omitempty"`
			}{Malformed: malformed}
			for _, e := range entries {
				out.Records = append(out.Records, e.Record)
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(out); err != nil {
				fatal("Error encoding JSON", err)
			}
			return
		}

		for _, e := range entries {
			r := e.Record
			fmt.Printf("note %s  v%s  %s  %s", e.NoteKey, r.AuditVersion, r.Identity(), r.Decision)
			if len(r.ReasonCodes) > 0 {
				fmt.Printf("  %v", r.ReasonCodes)
			}
			if !r.Timestamp.IsZero() {
				fmt.Printf("  %s", r.Timestamp.Format("2006-01-02"))
			}
			fmt.Println()
		}
		for _, key := range malformed {
			fmt.Printf("note %s  MALFORMED\n", key)
		}
		if len(entries) == 0 && len(malformed) == 0 {
			fmt.Println("No decision records.")
		}
	},
}

var sdbEditCmd = &cobra.Command{
	Use:   "edit <item-key>",
	Short: "Surgically rewrite one decision record",
	Long: `Replaces the record identified by --persona and --phase with the given
fields. The record must already exist; use decide to create one.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		id := sdb.Identity{Persona: editPersona, Phase: sdb.Phase(editPhase)}
		rec := sdb.Record{
			Decision:    sdb.Decision(editDecision),
			ReasonCodes: editCodes,
			ReasonText:  editReason,
			Persona:     editPersona,
			Phase:       sdb.Phase(editPhase),
			Evidence:    editEvidence,
			Location:    editLocation,
			Agent:       sdb.AgentCLI,
		}
		if err := rec.Validate(); err != nil {
			fatal("Error editing decision record", err)
		}

		if sdbDryRun {
			body, err := sdb.Encode(rec)
			if err != nil {
				fatal("Error editing decision record", err)
			}
			fmt.Printf("Would rewrite the record for %s to:\n%s\n", id, body)
			return
		}

		entry, err := app.Ledger.Edit(ctx, args[0], id, rec)
		if err != nil {
			fatal("Error editing decision record", err)
		}
		fmt.Printf("Rewrote note %s\n", entry.NoteKey)
	},
}

var sdbUpgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Migrate decision records in a collection to the current schema",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		collKey := resolveKey(ctx, app, sdbCollection, app.Config.PendingCollection)
		items, err := app.Gateway.ItemsInCollection(ctx, collKey)
		if err != nil {
			fatal("Error listing collection", err)
		}

		total, failed := 0, 0
		for _, it := range items {
			migrations, err := app.Ledger.Migrate(ctx, it.Key, sdbDryRun)
			if err != nil {
				fatal("Error migrating records", err)
			}
			for _, m := range migrations {
				total++
				if m.Err != nil {
					failed++
					fmt.Printf("%s %s: %s -> %s FAILED: %v\n", it.Key, m.NoteKey, m.From, m.To, m.Err)
					continue
				}
				fmt.Printf("%s %s: %s -> %s\n", it.Key, m.NoteKey, m.From, m.To)
			}
		}
		if sdbDryRun {
			fmt.Printf("%d records would be migrated\n", total)
			return
		}
		fmt.Printf("%d records migrated, %d failed\n", total-failed, failed)
		if failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sdbCmd)
	sdbCmd.AddCommand(sdbInspectCmd)
	sdbCmd.AddCommand(sdbEditCmd)
	sdbCmd.AddCommand(sdbUpgradeCmd)

	sdbInspectCmd.Flags().BoolVar(&sdbJSON, "json", false, "Output in JSON format")

	sdbEditCmd.Flags().StringVar(&editPersona, "persona", "", "Reviewer whose record to edit")
	sdbEditCmd.Flags().StringVar(&editPhase, "phase", string(sdb.PhaseTitleAbstract), "Phase of the record to edit")
	sdbEditCmd.Flags().StringVar(&editDecision, "decision", "", "New decision (accepted or rejected)")
	sdbEditCmd.Flags().StringSliceVar(&editCodes, "code", nil, "Rejection reason code (repeatable)")
	sdbEditCmd.Flags().StringVar(&editReason, "reason", "", "Free-text rationale")
	sdbEditCmd.Flags().StringVar(&editEvidence, "evidence", "", "Supporting quote (full text phase only)")
	sdbEditCmd.Flags().StringVar(&editLocation, "location", "", "Where the evidence was found")
	sdbEditCmd.Flags().BoolVar(&sdbDryRun, "dry-run", false, "Show the rewrite without applying it")
	_ = sdbEditCmd.MarkFlagRequired("persona")
	_ = sdbEditCmd.MarkFlagRequired("decision")

	sdbUpgradeCmd.Flags().StringVar(&sdbCollection, "collection", "", "Collection to sweep (default: configured pending collection)")
	sdbUpgradeCmd.Flags().BoolVar(&sdbDryRun, "dry-run", false, "Plan the migration without writing")
}
