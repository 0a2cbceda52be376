package report

import (
	"sort"

	"github.com/sievelit/sieve/pkg/sdb"
	"github.com/sievelit/sieve/pkg/snapshot"
)

// DecisionChange is one identity whose decision differs between two
// snapshots. From is empty for a decision that appeared, To for one that
// disappeared.
type DecisionChange struct {
	ItemKey string
	Persona string
	Phase   sdb.Phase
	From    sdb.Decision
	To      sdb.Decision
}

// DriftReport describes how the corpus moved between two captures.
type DriftReport struct {
	OldID           string
	NewID           string
	Added           []string
	Removed         []string
	DecisionChanges []DecisionChange
}

// Drift compares two snapshots: which items appeared or disappeared, and
// which recorded decisions changed. Records are compared per identity in
// current-schema terms, so a migration between captures is not drift.
func Drift(old, current snapshot.Snapshot) DriftReport {
	report := DriftReport{OldID: old.Meta.ID, NewID: current.Meta.ID}

	oldItems := decisionsByItem(old)
	newItems := decisionsByItem(current)

	for key := range newItems {
		if _, ok := oldItems[key]; !ok {
			report.Added = append(report.Added, key)
		}
	}
	for key := range oldItems {
		if _, ok := newItems[key]; !ok {
			report.Removed = append(report.Removed, key)
		}
	}
	sort.Strings(report.Added)
	sort.Strings(report.Removed)

	for key, oldDecisions := range oldItems {
		newDecisions, ok := newItems[key]
		if !ok {
			continue
		}
		for id, from := range oldDecisions {
			if to := newDecisions[id]; to != from {
				report.DecisionChanges = append(report.DecisionChanges, DecisionChange{
					ItemKey: key, Persona: id.Persona, Phase: id.Phase, From: from, To: to,
				})
			}
		}
		for id, to := range newDecisions {
			if _, ok := oldDecisions[id]; !ok {
				report.DecisionChanges = append(report.DecisionChanges, DecisionChange{
					ItemKey: key, Persona: id.Persona, Phase: id.Phase, To: to,
				})
			}
		}
	}
	sort.Slice(report.DecisionChanges, func(i, j int) bool {
		a, b := report.DecisionChanges[i], report.DecisionChanges[j]
		if a.ItemKey != b.ItemKey {
			return a.ItemKey < b.ItemKey
		}
		if a.Persona != b.Persona {
			return a.Persona < b.Persona
		}
		return a.Phase < b.Phase
	})
	return report
}

func decisionsByItem(snap snapshot.Snapshot) map[string]map[sdb.Identity]sdb.Decision {
	out := make(map[string]map[sdb.Identity]sdb.Decision, len(snap.Items))
	for _, it := range snap.Items {
		decisions := map[sdb.Identity]sdb.Decision{}
		for _, rec := range it.Decisions {
			m := sdb.Migrate(rec)
			decisions[m.Identity()] = m.Decision
		}
		out[it.Item.Key] = decisions
	}
	return out
}
