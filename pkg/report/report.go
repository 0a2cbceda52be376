// Package report derives screening progress views from the store: PRISMA
// funnel statistics, data-quality audits, drift between snapshots and the
// maintenance passes that keep the funnel collections consistent.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/ledger"
	"github.com/sievelit/sieve/pkg/mover"
	"github.com/sievelit/sieve/pkg/sdb"
)

// Engine computes reports through the gateway and ledger.
type Engine struct {
	gw  core.Gateway
	led *ledger.Ledger
	mv  *mover.Mover
	log *slog.Logger
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(gw core.Gateway, led *ledger.Ledger, mv *mover.Mover, opts ...Option) *Engine {
	e := &Engine{gw: gw, led: led, mv: mv, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CollectionStats is the PRISMA view of one collection.
type CollectionStats struct {
	CollectionKey  string
	Total          int
	Decided        int
	Accepted       int
	Rejected       int
	RejectionCodes map[string]int
	Conflicted     []string
	MalformedNotes map[string][]string
}

// PrismaReport aggregates the funnel across collections.
type PrismaReport struct {
	GeneratedAt time.Time
	Collections []CollectionStats
}

// Prisma computes per-collection screening statistics. An item's effective
// decision is its most recent record; a conflicted item (disagreeing
// records for one identity) is counted as decided but classified as
// conflicted rather than accepted or rejected.
func (e *Engine) Prisma(ctx context.Context, collectionKeys []string) (PrismaReport, error) {
	report := PrismaReport{GeneratedAt: e.now().UTC()}

	for _, key := range collectionKeys {
		items, err := e.gw.ItemsInCollection(ctx, key)
		if err != nil {
			return PrismaReport{}, fmt.Errorf("prisma stats for %s: %w", key, err)
		}

		stats := CollectionStats{
			CollectionKey:  key,
			Total:          len(items),
			RejectionCodes: map[string]int{},
			MalformedNotes: map[string][]string{},
		}
		for _, it := range items {
			if err := ctx.Err(); err != nil {
				return PrismaReport{}, err
			}
			entries, malformed, err := e.led.Scan(ctx, it.Key)
			if err != nil {
				return PrismaReport{}, err
			}
			if len(malformed) > 0 {
				stats.MalformedNotes[it.Key] = malformed
			}
			if len(entries) == 0 {
				continue
			}
			stats.Decided++

			if len(ledger.ConflictsIn(entries)) > 0 {
				stats.Conflicted = append(stats.Conflicted, it.Key)
				continue
			}
			switch rec := effectiveDecision(entries); rec.Decision {
			case sdb.DecisionAccepted:
				stats.Accepted++
			case sdb.DecisionRejected:
				stats.Rejected++
				for _, c := range rec.ReasonCodes {
					stats.RejectionCodes[c]++
				}
			}
		}
		sort.Strings(stats.Conflicted)
		report.Collections = append(report.Collections, stats)
	}
	return report, nil
}

// Pending lists the items in a collection that have no decision yet. With a
// non-empty phase, only that phase counts: an item screened at
// title/abstract is still pending for full text.
func (e *Engine) Pending(ctx context.Context, collectionKey string, phase sdb.Phase) ([]core.Item, error) {
	items, err := e.gw.ItemsInCollection(ctx, collectionKey)
	if err != nil {
		return nil, fmt.Errorf("pending items in %s: %w", collectionKey, err)
	}

	var pending []core.Item
	for _, it := range items {
		entries, err := e.led.ReadAll(ctx, it.Key)
		if err != nil {
			return nil, err
		}
		if !hasDecision(entries, phase) {
			pending = append(pending, it)
		}
	}
	return pending, nil
}

// ExportCSV writes one row per decision record across the collections, with
// a trailing undecided row for items that have none. The column set is
// stable; downstream spreadsheets depend on it.
func (e *Engine) ExportCSV(ctx context.Context, w io.Writer, collectionKeys []string) error {
	cw := csv.NewWriter(w)
	header := []string{"collection", "key", "title", "doi", "decision", "reason_codes", "reason_text", "persona", "phase", "timestamp"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("exporting csv: %w", err)
	}

	for _, collKey := range collectionKeys {
		items, err := e.gw.ItemsInCollection(ctx, collKey)
		if err != nil {
			return fmt.Errorf("exporting csv for %s: %w", collKey, err)
		}
		for _, it := range items {
			entries, err := e.led.ReadAll(ctx, it.Key)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				if err := cw.Write([]string{collKey, it.Key, it.Title, it.DOI, "", "", "", "", "", ""}); err != nil {
					return fmt.Errorf("exporting csv: %w", err)
				}
				continue
			}
			for _, entry := range entries {
				rec := sdb.Migrate(entry.Record)
				ts := ""
				if !rec.Timestamp.IsZero() {
					ts = rec.Timestamp.UTC().Format(time.RFC3339)
				}
				row := []string{
					collKey, it.Key, it.Title, it.DOI,
					string(rec.Decision), strings.Join(rec.ReasonCodes, ";"),
					rec.ReasonText, rec.Persona, string(rec.Phase), ts,
				}
				if err := cw.Write(row); err != nil {
					return fmt.Errorf("exporting csv: %w", err)
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// effectiveDecision picks the most recent record; entries carry their note
// order as the tie-breaker, so the later note wins an equal timestamp.
func effectiveDecision(entries []ledger.Entry) sdb.Record {
	best := sdb.Migrate(entries[0].Record)
	for _, e := range entries[1:] {
		rec := sdb.Migrate(e.Record)
		if !rec.Timestamp.Before(best.Timestamp) {
			best = rec
		}
	}
	return best
}

func hasDecision(entries []ledger.Entry, phase sdb.Phase) bool {
	if phase == "" {
		return len(entries) > 0
	}
	for _, e := range entries {
		if sdb.Migrate(e.Record).Phase == phase {
			return true
		}
	}
	return false
}
