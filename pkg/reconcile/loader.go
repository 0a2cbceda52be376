// Package reconcile matches externally exported screening decisions back to
// library items and files them, without ever silently overwriting a
// decision that is already recorded.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/ledger"
	"github.com/sievelit/sieve/pkg/mover"
	"github.com/sievelit/sieve/pkg/sdb"
)

// Outcome classifies what happened to one row.
type Outcome string

const (
	// Applied: the decision was recorded (or would be, under dry-run).
	Applied Outcome = "applied"
	// Skipped: the item already carries a decision for this identity and
	// force was not given, or the row itself was unusable.
	Skipped Outcome = "skipped"
	// Unmatched: no library item corresponds to the row.
	Unmatched Outcome = "unmatched"
	// Ambiguous: more than one item matched at or above the threshold.
	Ambiguous Outcome = "ambiguous"
)

// Options steers one reconciliation run.
type Options struct {
	// Collection is the key of the collection whose items are candidates.
	Collection string
	// Threshold is the minimum title similarity; zero means DefaultThreshold.
	Threshold float64
	// Force allows overwriting an existing decision for the same identity.
	Force bool
	// DryRun evaluates every row but writes nothing.
	DryRun bool
	// Persona is used for rows that carry no reviewer of their own.
	Persona string
	// Phase the decisions belong to; zero means title/abstract.
	Phase sdb.Phase
	// IncludeKey and ExcludeKey are the destinations applied rows move to.
	// Either may be empty, in which case matching rows only get their note.
	IncludeKey string
	ExcludeKey string
	// Agent overrides the tool identity stamped on written records.
	Agent string
}

// Result is the fate of one row.
type Result struct {
	Row     Row
	Outcome Outcome
	ItemKey string
	Detail  string
}

// Report aggregates a run.
type Report struct {
	Results   []Result
	Applied   int
	Skipped   int
	Unmatched int
	Ambiguous int
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case Applied:
		r.Applied++
	case Skipped:
		r.Skipped++
	case Unmatched:
		r.Unmatched++
	case Ambiguous:
		r.Ambiguous++
	}
}

// Loader files external decisions through the ledger and mover.
type Loader struct {
	gw  core.Gateway
	led *ledger.Ledger
	mv  *mover.Mover
	log *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(gw core.Gateway, led *ledger.Ledger, mv *mover.Mover, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{gw: gw, led: led, mv: mv, log: log}
}

// Load reconciles rows against the collection named in opts. Every row gets
// exactly one outcome; a failing row never aborts the run. Matching
// precedence is exact key, exact identifier, then fuzzy title.
func (l *Loader) Load(ctx context.Context, rows []Row, opts Options) (Report, error) {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Phase == "" {
		opts.Phase = sdb.PhaseTitleAbstract
	}

	items, err := l.gw.ItemsInCollection(ctx, opts.Collection)
	if err != nil {
		return Report{}, fmt.Errorf("loading candidates from %s: %w", opts.Collection, err)
	}
	ix := buildIndex(items)

	var report Report
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.add(l.loadRow(ctx, ix, row, opts))
	}

	l.log.Info("reconciliation finished",
		"rows", len(rows),
		"applied", report.Applied, "skipped", report.Skipped,
		"unmatched", report.Unmatched, "ambiguous", report.Ambiguous,
		"dry_run", opts.DryRun)
	return report, nil
}

func (l *Loader) loadRow(ctx context.Context, ix *index, row Row, opts Options) Result {
	decision, ok := normalizeDecision(row.Decision)
	if !ok {
		return Result{Row: row, Outcome: Skipped,
			Detail: fmt.Sprintf("unrecognized decision %q", row.Decision)}
	}

	// A keyed row addresses the item directly; the collection index only
	// arbitrates identifier and title lookups.
	var item core.Item
	if row.Key != "" {
		var err error
		if item, err = l.gw.Item(ctx, row.Key); err != nil {
			return Result{Row: row, Outcome: Unmatched, Detail: err.Error()}
		}
	} else {
		var candidates []core.Item
		var m matchOutcome
		item, candidates, m = ix.match(row, opts.Threshold)
		switch m {
		case matchMissed:
			return Result{Row: row, Outcome: Unmatched}
		case matchAmbiguous:
			ambErr := &core.AmbiguousMatchError{Title: row.Title, Candidates: itemKeys(candidates)}
			return Result{Row: row, Outcome: Ambiguous, Detail: ambErr.Error()}
		}
	}

	persona := row.Reviewer
	if persona == "" {
		persona = opts.Persona
	}
	rec := sdb.Record{
		Decision:    decision,
		ReasonCodes: row.Codes,
		ReasonText:  row.Reason,
		Persona:     persona,
		Phase:       opts.Phase,
		Agent:       opts.Agent,
	}
	if err := rec.Validate(); err != nil {
		return Result{Row: row, Outcome: Skipped, ItemKey: item.Key, Detail: err.Error()}
	}

	existing, err := l.led.ReadAll(ctx, item.Key)
	if err != nil {
		return Result{Row: row, Outcome: Skipped, ItemKey: item.Key, Detail: err.Error()}
	}
	if !opts.Force && hasIdentity(existing, rec.Identity()) {
		return Result{Row: row, Outcome: Skipped, ItemKey: item.Key,
			Detail: "decision already recorded; use force to overwrite"}
	}

	if opts.DryRun {
		return Result{Row: row, Outcome: Applied, ItemKey: item.Key, Detail: "dry run"}
	}

	dest := opts.IncludeKey
	if decision == sdb.DecisionRejected {
		dest = opts.ExcludeKey
	}
	if _, err := l.mv.FileDecision(ctx, item.Key, rec, opts.Collection, dest); err != nil {
		l.log.Error("failed to file reconciled decision",
			"item", item.Key, "line", row.Line, "error", err)
		return Result{Row: row, Outcome: Skipped, ItemKey: item.Key, Detail: err.Error()}
	}
	return Result{Row: row, Outcome: Applied, ItemKey: item.Key}
}

func itemKeys(items []core.Item) []string {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	return keys
}

func hasIdentity(entries []ledger.Entry, id sdb.Identity) bool {
	for _, e := range entries {
		if sdb.Migrate(e.Record).Identity() == id {
			return true
		}
	}
	return false
}

func normalizeDecision(s string) (sdb.Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accepted", "accept", "include", "included", "yes":
		return sdb.DecisionAccepted, true
	case "rejected", "reject", "exclude", "excluded", "no":
		return sdb.DecisionRejected, true
	default:
		return "", false
	}
}
