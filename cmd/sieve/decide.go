package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/sdb"
)

var (
	decideAccept   bool
	decideReject   bool
	decideCodes    []string
	decideReason   string
	decidePersona  string
	decidePhase    string
	decideEvidence string
	decideLocation string
	decideFrom     string
	decideStay     bool

	decideShortPaper bool
	decideNotEnglish bool
	decideIsSurvey   bool
	decideNoPDF      bool
)

// Exclusion presets: one flag per recurring rejection, so routine triage
// does not need --reject --code --reason spelled out every time.
var exclusionPresets = []struct {
	flag   *bool
	code   string
	reason string
}{
	{&decideShortPaper, "EC-SHORT", "short paper"},
	{&decideNotEnglish, "EC-LANG", "not in English"},
	{&decideIsSurvey, "EC-SURVEY", "secondary study"},
	{&decideNoPDF, "EC-NOPDF", "full text unavailable"},
}

var decideCmd = &cobra.Command{
	Use:   "decide <item-key>",
	Short: "Record a screening decision and move the item through the funnel",
	Long: `Records an accept or reject decision as an audit note on the item and moves
it into the configured included or excluded collection. One decision per
reviewer and phase: deciding again replaces the earlier record.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		itemKey := args[0]
		app := buildApp()
		ctx := context.Background()

		for _, p := range exclusionPresets {
			if *p.flag {
				decideReject = true
				decideCodes = append(decideCodes, p.code)
				if decideReason == "" {
					decideReason = p.reason
				} else {
					decideReason += "; " + p.reason
				}
			}
		}
		if decideAccept == decideReject {
			fatal("Error recording decision", fmt.Errorf("exactly one of --accept or --reject is required"))
		}

		decision := sdb.DecisionAccepted
		if decideReject {
			decision = sdb.DecisionRejected
		}
		persona := decidePersona
		if persona == "" {
			persona = app.Config.Persona
		}

		rec := sdb.Record{
			Decision:    decision,
			ReasonCodes: decideCodes,
			ReasonText:  decideReason,
			Persona:     persona,
			Phase:       sdb.Phase(decidePhase),
			Evidence:    decideEvidence,
			Location:    decideLocation,
		}
		if err := rec.Validate(); err != nil {
			fatal("Error recording decision", err)
		}

		var from, to string
		if !decideStay {
			if decideFrom != "" {
				from = resolveKey(ctx, app, decideFrom, "")
			}
			dest := app.Config.IncludedCollection
			if decideReject {
				dest = app.Config.ExcludedCollection
			}
			if dest != "" {
				to = resolveKey(ctx, app, dest, "")
			}
		}

		entry, err := app.Mover.FileDecision(ctx, itemKey, rec, from, to)
		if err != nil {
			var partial *core.PartialMoveError
			if errors.As(err, &partial) {
				fmt.Printf("Decision recorded in note %s, but the move failed: %v\n", partial.NoteKey, partial.Err)
				fatal("Error moving item", partial.Err)
			}
			fatal("Error recording decision", err)
		}

		fmt.Printf("Recorded %s by %s (%s) in note %s\n",
			rec.Decision, rec.Persona, rec.Phase, entry.NoteKey)
		if len(rec.ReasonCodes) > 0 {
			fmt.Printf("Reason codes: %s\n", strings.Join(rec.ReasonCodes, ", "))
		}
	},
}

func init() {
	rootCmd.AddCommand(decideCmd)
	decideCmd.Flags().BoolVar(&decideAccept, "accept", false, "Accept the item")
	decideCmd.Flags().BoolVar(&decideReject, "reject", false, "Reject the item")
	decideCmd.Flags().StringSliceVar(&decideCodes, "code", nil, "Rejection reason code (repeatable)")
	decideCmd.Flags().StringVar(&decideReason, "reason", "", "Free-text rationale")
	decideCmd.Flags().StringVar(&decidePersona, "persona", "", "Reviewer identity (default: configured persona)")
	decideCmd.Flags().StringVar(&decidePhase, "phase", string(sdb.PhaseTitleAbstract), "Screening phase (title_abstract or full_text)")
	decideCmd.Flags().StringVar(&decideEvidence, "evidence", "", "Supporting quote (full text phase only)")
	decideCmd.Flags().StringVar(&decideLocation, "location", "", "Where the evidence was found")
	decideCmd.Flags().StringVar(&decideFrom, "from", "", "Source collection (default: inferred)")
	decideCmd.Flags().BoolVar(&decideStay, "stay", false, "Record the decision without moving the item")

	decideCmd.Flags().BoolVar(&decideShortPaper, "short-paper", false, "Reject: short paper")
	decideCmd.Flags().BoolVar(&decideNotEnglish, "not-english", false, "Reject: not in English")
	decideCmd.Flags().BoolVar(&decideIsSurvey, "is-survey", false, "Reject: secondary study")
	decideCmd.Flags().BoolVar(&decideNoPDF, "no-pdf", false, "Reject: full text unavailable")
}
