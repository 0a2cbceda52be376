package report

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/ledger"
)

// Audit finding kinds.
const (
	FindingMissingIdentifier = "missing_identifier"
	FindingMissingTitle      = "missing_title"
	FindingMissingAbstract   = "missing_abstract"
	FindingNoDecision        = "no_decision"
	FindingMalformedNote     = "malformed_note"
	FindingConflict          = "conflicting_decisions"
)

// Finding is one data-quality problem on one item.
type Finding struct {
	ItemKey string
	Kind    string
	Detail  string
}

// Audit sweeps a collection for metadata gaps and decision-record problems,
// fanning item scans across a bounded worker pool. Findings come back
// sorted by item key so runs diff cleanly.
func (e *Engine) Audit(ctx context.Context, collectionKey string, workers int) ([]Finding, error) {
	if workers <= 0 {
		workers = 4
	}
	items, err := e.gw.ItemsInCollection(ctx, collectionKey)
	if err != nil {
		return nil, fmt.Errorf("auditing %s: %w", collectionKey, err)
	}

	var mu sync.Mutex
	var findings []Finding
	add := func(fs ...Finding) {
		mu.Lock()
		findings = append(findings, fs...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, it := range items {
		it := it
		g.Go(func() error {
			add(metadataFindings(it)...)

			entries, malformed, err := e.led.Scan(gctx, it.Key)
			if err != nil {
				return err
			}
			for _, noteKey := range malformed {
				add(Finding{ItemKey: it.Key, Kind: FindingMalformedNote, Detail: noteKey})
			}
			if len(entries) == 0 {
				add(Finding{ItemKey: it.Key, Kind: FindingNoDecision})
			}
			for _, c := range conflictsOf(entries) {
				add(Finding{ItemKey: it.Key, Kind: FindingConflict, Detail: c})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("auditing %s: %w", collectionKey, err)
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].ItemKey != findings[j].ItemKey {
			return findings[i].ItemKey < findings[j].ItemKey
		}
		if findings[i].Kind != findings[j].Kind {
			return findings[i].Kind < findings[j].Kind
		}
		return findings[i].Detail < findings[j].Detail
	})
	return findings, nil
}

func conflictsOf(entries []ledger.Entry) []string {
	var out []string
	for _, c := range ledger.ConflictsIn(entries) {
		out = append(out, c.Identity.String())
	}
	return out
}

func metadataFindings(it core.Item) []Finding {
	var fs []Finding
	if !it.HasIdentifier() {
		fs = append(fs, Finding{ItemKey: it.Key, Kind: FindingMissingIdentifier})
	}
	if it.Title == "" {
		fs = append(fs, Finding{ItemKey: it.Key, Kind: FindingMissingTitle})
	}
	if it.Abstract == "" {
		fs = append(fs, Finding{ItemKey: it.Key, Kind: FindingMissingAbstract})
	}
	return fs
}
