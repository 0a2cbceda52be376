package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sievelit/sieve/pkg/reconcile"
	"github.com/sievelit/sieve/pkg/sdb"
)

var (
	loadCollection string
	loadThreshold  float64
	loadForce      bool
	loadDryRun     bool
	loadPersona    string
	loadPhase      string
	loadColumns    map[string]string
	loadShowRows   bool
)

var loadCmd = &cobra.Command{
	Use:   "load <decisions.csv>",
	Short: "Reconcile externally exported decisions back into the library",
	Long: `Matches each CSV row to a library item (by key, identifier or fuzzy title)
and records its decision. Rows whose item already carries a decision are
skipped unless --force is given; ambiguous matches are never applied.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := buildApp()
		ctx := context.Background()

		f, err := os.Open(args[0])
		if err != nil {
			fatal("Error opening decision file", err)
		}
		defer f.Close()

		cm := reconcile.ColumnMap{
			Key:      loadColumns["key"],
			Title:    loadColumns["title"],
			DOI:      loadColumns["doi"],
			ArxivID:  loadColumns["arxiv"],
			Decision: loadColumns["decision"],
			Codes:    loadColumns["code"],
			Reason:   loadColumns["reason"],
			Reviewer: loadColumns["reviewer"],
		}
		rows, err := reconcile.ReadRows(f, cm)
		if err != nil {
			fatal("Error reading decision file", err)
		}

		persona := loadPersona
		if persona == "" {
			persona = app.Config.Persona
		}
		threshold := loadThreshold
		if !cmd.Flags().Changed("threshold") && app.Config.Threshold > 0 {
			threshold = app.Config.Threshold
		}
		opts := reconcile.Options{
			Collection: resolveKey(ctx, app, loadCollection, app.Config.PendingCollection),
			Threshold:  threshold,
			Force:      loadForce,
			DryRun:     loadDryRun,
			Persona:    persona,
			Phase:      sdb.Phase(loadPhase),
		}
		if app.Config.IncludedCollection != "" {
			opts.IncludeKey = resolveKey(ctx, app, app.Config.IncludedCollection, "")
		}
		if app.Config.ExcludedCollection != "" {
			opts.ExcludeKey = resolveKey(ctx, app, app.Config.ExcludedCollection, "")
		}

		report, err := app.Loader.Load(ctx, rows, opts)
		if err != nil {
			fatal("Error reconciling decisions", err)
		}

		if loadShowRows {
			for _, r := range report.Results {
				fmt.Printf("line %d: %s", r.Row.Line, r.Outcome)
				if r.ItemKey != "" {
					fmt.Printf(" (%s)", r.ItemKey)
				}
				if r.Detail != "" {
					fmt.Printf(" - %s", r.Detail)
				}
				fmt.Println()
			}
		}
		fmt.Printf("applied %d, skipped %d, unmatched %d, ambiguous %d\n",
			report.Applied, report.Skipped, report.Unmatched, report.Ambiguous)
		if report.Ambiguous > 0 || report.Unmatched > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().StringVar(&loadCollection, "collection", "", "Collection holding the candidate items (default: configured pending collection)")
	loadCmd.Flags().Float64Var(&loadThreshold, "threshold", reconcile.DefaultThreshold, "Minimum title similarity for a fuzzy match")
	loadCmd.Flags().BoolVar(&loadForce, "force", false, "Overwrite existing decisions for the same reviewer and phase")
	loadCmd.Flags().BoolVar(&loadDryRun, "dry-run", false, "Evaluate every row without writing")
	loadCmd.Flags().StringVar(&loadPersona, "persona", "", "Reviewer for rows without one (default: configured persona)")
	loadCmd.Flags().StringVar(&loadPhase, "phase", string(sdb.PhaseTitleAbstract), "Screening phase the decisions belong to")
	loadCmd.Flags().StringToStringVar(&loadColumns, "column", nil, "Column name override, e.g. --column decision=verdict (repeatable)")
	loadCmd.Flags().BoolVar(&loadShowRows, "show-rows", false, "Print the outcome of every row")
}
