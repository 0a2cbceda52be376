package report

import (
	"context"
	"fmt"
	"sort"
)

// PruneReport lists the items that sat in both funnel endpoints and what
// was done about them.
type PruneReport struct {
	Overlap []string
	Removed []string
	DryRun  bool
}

// Prune resolves items that are members of both the included and excluded
// collections. The included membership is authoritative: overlapping items
// are removed from excluded only, one at a time, each removal logged. A
// failing item stops the pass so the store is never left half-scanned
// silently.
func (e *Engine) Prune(ctx context.Context, includedKey, excludedKey string, dryRun bool) (PruneReport, error) {
	included, err := e.gw.ItemsInCollection(ctx, includedKey)
	if err != nil {
		return PruneReport{}, fmt.Errorf("pruning: %w", err)
	}
	excluded, err := e.gw.ItemsInCollection(ctx, excludedKey)
	if err != nil {
		return PruneReport{}, fmt.Errorf("pruning: %w", err)
	}

	in := make(map[string]bool, len(included))
	for _, it := range included {
		in[it.Key] = true
	}

	report := PruneReport{DryRun: dryRun}
	for _, it := range excluded {
		if in[it.Key] {
			report.Overlap = append(report.Overlap, it.Key)
		}
	}
	sort.Strings(report.Overlap)

	for _, key := range report.Overlap {
		if dryRun {
			e.log.Info("would remove item from excluded", "item", key, "collection", excludedKey)
			continue
		}
		if err := e.mv.RemoveFromCollection(ctx, key, excludedKey); err != nil {
			return report, fmt.Errorf("pruning item %s: %w", key, err)
		}
		e.log.Info("removed item from excluded", "item", key, "collection", excludedKey)
		report.Removed = append(report.Removed, key)
	}
	return report, nil
}
