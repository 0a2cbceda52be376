package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/sdb"
	"github.com/sievelit/sieve/pkg/snapshot"
)

func snapWith(id string, items ...snapshot.Item) snapshot.Snapshot {
	return snapshot.Snapshot{
		Meta:  snapshot.Meta{ID: id, Timestamp: time.Now(), ItemCount: len(items)},
		Items: items,
	}
}

func snapItem(key string, decisions ...sdb.Record) snapshot.Item {
	return snapshot.Item{Item: core.Item{Key: key}, Decisions: decisions}
}

func TestDrift(t *testing.T) {
	rec := func(decision sdb.Decision, persona string) sdb.Record {
		r := sdb.Record{
			AuditVersion: sdb.Latest, Decision: decision, Persona: persona,
			Phase: sdb.PhaseTitleAbstract, Agent: sdb.AgentCLI,
		}
		if decision == sdb.DecisionRejected {
			r.ReasonCodes = []string{"EC1"}
		}
		return r
	}

	t.Run("Added And Removed Items", func(t *testing.T) {
		old := snapWith("s1", snapItem("I1"), snapItem("I2"))
		current := snapWith("s2", snapItem("I2"), snapItem("I3"))

		d := Drift(old, current)
		assert.Equal(t, "s1", d.OldID)
		assert.Equal(t, "s2", d.NewID)
		assert.Equal(t, []string{"I3"}, d.Added)
		assert.Equal(t, []string{"I1"}, d.Removed)
		assert.Empty(t, d.DecisionChanges)
	})

	t.Run("Decision Flip", func(t *testing.T) {
		old := snapWith("s1", snapItem("I1", rec(sdb.DecisionAccepted, "rev1")))
		current := snapWith("s2", snapItem("I1", rec(sdb.DecisionRejected, "rev1")))

		d := Drift(old, current)
		require.Len(t, d.DecisionChanges, 1)
		change := d.DecisionChanges[0]
		assert.Equal(t, "I1", change.ItemKey)
		assert.Equal(t, "rev1", change.Persona)
		assert.Equal(t, sdb.DecisionAccepted, change.From)
		assert.Equal(t, sdb.DecisionRejected, change.To)
	})

	t.Run("New And Withdrawn Decisions", func(t *testing.T) {
		old := snapWith("s1", snapItem("I1", rec(sdb.DecisionAccepted, "rev1")))
		current := snapWith("s2", snapItem("I1", rec(sdb.DecisionAccepted, "rev2")))

		d := Drift(old, current)
		require.Len(t, d.DecisionChanges, 2)
		assert.Equal(t, "rev1", d.DecisionChanges[0].Persona)
		assert.Empty(t, d.DecisionChanges[0].To)
		assert.Equal(t, "rev2", d.DecisionChanges[1].Persona)
		assert.Empty(t, d.DecisionChanges[1].From)
	})

	t.Run("Schema Migration Between Captures Is Not Drift", func(t *testing.T) {
		legacy := sdb.Record{
			AuditVersion: sdb.V10, Decision: sdb.DecisionAccepted,
			Signature: "rev1", Agent: "rev1",
		}
		old := snapWith("s1", snapItem("I1", legacy))
		current := snapWith("s2", snapItem("I1", rec(sdb.DecisionAccepted, "rev1")))

		d := Drift(old, current)
		assert.Empty(t, d.DecisionChanges)
	})
}
