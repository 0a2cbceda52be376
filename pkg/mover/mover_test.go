package mover

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/ledger"
	"github.com/sievelit/sieve/pkg/sdb"
)

// fakeGateway tracks item membership and child notes, and can be told to
// reject the next N membership patches with a version conflict (bumping the
// item version each time, as a concurrent writer would).
type fakeGateway struct {
	core.Gateway

	items       map[string]*core.Item
	notes       map[string][]core.Note
	nextKey     int
	patches     int
	conflictsAt int

	failCreateNote bool
	failPatch      error
}

func newFakeGateway(items ...core.Item) *fakeGateway {
	g := &fakeGateway{items: map[string]*core.Item{}, notes: map[string][]core.Note{}}
	for i := range items {
		it := items[i]
		g.items[it.Key] = &it
	}
	return g
}

func (g *fakeGateway) Item(_ context.Context, key string) (core.Item, error) {
	it, ok := g.items[key]
	if !ok {
		return core.Item{}, core.ErrNotFound
	}
	return *it, nil
}

func (g *fakeGateway) Children(_ context.Context, itemKey string) ([]core.Note, error) {
	return g.notes[itemKey], nil
}

func (g *fakeGateway) CreateNote(_ context.Context, parentKey, body string) (string, error) {
	if g.failCreateNote {
		return "", core.ErrNotFound
	}
	g.nextKey++
	key := "NOTE" + string(rune('A'+g.nextKey-1))
	g.notes[parentKey] = append(g.notes[parentKey], core.Note{
		Key: key, Version: 1, ParentKey: parentKey, Body: body,
	})
	return key, nil
}

func (g *fakeGateway) UpdateNote(_ context.Context, noteKey string, version int, body string) error {
	for parent, notes := range g.notes {
		for i, n := range notes {
			if n.Key == noteKey {
				g.notes[parent][i].Body = body
				g.notes[parent][i].Version = version + 1
				return nil
			}
		}
	}
	return core.ErrNotFound
}

func (g *fakeGateway) UpdateItemCollections(_ context.Context, itemKey string, version int, collections []string) error {
	g.patches++
	if g.failPatch != nil {
		return g.failPatch
	}
	it, ok := g.items[itemKey]
	if !ok {
		return core.ErrNotFound
	}
	if g.conflictsAt > 0 {
		g.conflictsAt--
		it.Version++
		return core.ErrVersionConflict
	}
	if version != it.Version {
		return core.ErrVersionConflict
	}
	it.Collections = collections
	it.Version++
	return nil
}

func newMover(gw *fakeGateway, opts ...Option) *Mover {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.New(gw, ledger.WithLogger(log))
	opts = append([]Option{WithLogger(log)}, opts...)
	return New(gw, led, opts...)
}

func TestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Explicit Source Preserves Unrelated Memberships", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 5, Collections: []string{"PEND", "TOPIC"}})
		require.NoError(t, newMover(gw).Move(ctx, "I1", "PEND", "INCL"))
		assert.ElementsMatch(t, []string{"TOPIC", "INCL"}, gw.items["I1"].Collections)
	})

	t.Run("Source Inferred From Single Membership", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1, Collections: []string{"PEND"}})
		require.NoError(t, newMover(gw).Move(ctx, "I1", "", "EXCL"))
		assert.Equal(t, []string{"EXCL"}, gw.items["I1"].Collections)
	})

	t.Run("Ambiguous Source Fails Closed", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1, Collections: []string{"PEND", "MAYBE"}})
		err := newMover(gw).Move(ctx, "I1", "", "INCL")

		var ambiguous *core.AmbiguousSourceError
		require.ErrorAs(t, err, &ambiguous)
		assert.ElementsMatch(t, []string{"PEND", "MAYBE"}, ambiguous.Candidates)
		assert.Equal(t, 0, gw.patches, "no write may happen on ambiguity")
		assert.Equal(t, []string{"PEND", "MAYBE"}, gw.items["I1"].Collections)
	})

	t.Run("Zero Memberships Fails Closed", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1})
		err := newMover(gw).Move(ctx, "I1", "", "INCL")

		var ambiguous *core.AmbiguousSourceError
		require.ErrorAs(t, err, &ambiguous)
		assert.Empty(t, ambiguous.Candidates)
		assert.Equal(t, 0, gw.patches, "an orphan item must not be pulled into the funnel")
		assert.Empty(t, gw.items["I1"].Collections)
	})

	t.Run("Only In Destination Fails Closed Without Source", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1, Collections: []string{"INCL"}})
		err := newMover(gw).Move(ctx, "I1", "", "INCL")

		var ambiguous *core.AmbiguousSourceError
		require.ErrorAs(t, err, &ambiguous)
		assert.Equal(t, 0, gw.patches)
	})

	t.Run("Already In Destination Is A No-Op", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1, Collections: []string{"INCL"}})
		require.NoError(t, newMover(gw).Move(ctx, "I1", "PEND", "INCL"))
		assert.Equal(t, 0, gw.patches)
	})

	t.Run("One Conflict Then Success", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1, Collections: []string{"PEND"}})
		gw.conflictsAt = 1

		require.NoError(t, newMover(gw).Move(ctx, "I1", "PEND", "INCL"))
		assert.Equal(t, 2, gw.patches, "exactly one retry after one conflict")
		assert.Equal(t, []string{"INCL"}, gw.items["I1"].Collections)
	})

	t.Run("Budget Exhausted", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1, Collections: []string{"PEND"}})
		gw.conflictsAt = 99

		err := newMover(gw).Move(ctx, "I1", "PEND", "INCL")
		var conflict *core.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, DefaultRetries, conflict.Attempts)
		assert.Equal(t, DefaultRetries, gw.patches)
		assert.ErrorIs(t, err, core.ErrVersionConflict)
	})

	t.Run("Missing Item", func(t *testing.T) {
		gw := newFakeGateway()
		assert.ErrorIs(t, newMover(gw).Move(ctx, "GHOST", "A", "B"), core.ErrNotFound)
	})
}

func TestRemoveFromCollection(t *testing.T) {
	ctx := context.Background()

	gw := newFakeGateway(core.Item{Key: "I1", Version: 3, Collections: []string{"EXCL", "TOPIC"}})
	require.NoError(t, newMover(gw).RemoveFromCollection(ctx, "I1", "EXCL"))
	assert.Equal(t, []string{"TOPIC"}, gw.items["I1"].Collections)

	require.NoError(t, newMover(gw).RemoveFromCollection(ctx, "I1", "EXCL"))
	assert.Equal(t, 1, gw.patches, "second removal is a no-op")
}

func TestFileDecision(t *testing.T) {
	ctx := context.Background()

	rec := sdb.Record{
		Decision:    sdb.DecisionRejected,
		ReasonCodes: []string{"EC1"},
		Persona:     "rev1",
		Phase:       sdb.PhaseTitleAbstract,
	}

	t.Run("Note Then Move", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1, Collections: []string{"PEND"}})
		entry, err := newMover(gw).FileDecision(ctx, "I1", rec, "PEND", "EXCL")
		require.NoError(t, err)
		assert.NotEmpty(t, entry.NoteKey)
		assert.Equal(t, []string{"EXCL"}, gw.items["I1"].Collections)
		assert.Len(t, gw.notes["I1"], 1)
	})

	t.Run("Note Failure Means No Move", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1, Collections: []string{"PEND"}})
		gw.failCreateNote = true

		_, err := newMover(gw).FileDecision(ctx, "I1", rec, "PEND", "EXCL")
		require.Error(t, err)
		assert.Equal(t, 0, gw.patches)
		assert.Equal(t, []string{"PEND"}, gw.items["I1"].Collections)
	})

	t.Run("Move Failure Surfaces Partial State", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1, Collections: []string{"PEND"}})
		gw.failPatch = core.ErrNotFound

		_, err := newMover(gw).FileDecision(ctx, "I1", rec, "PEND", "EXCL")
		var partial *core.PartialMoveError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, "I1", partial.ItemKey)
		assert.NotEmpty(t, partial.NoteKey)
		assert.Len(t, gw.notes["I1"], 1, "the decision note stands")
	})

	t.Run("No Destination Records Only", func(t *testing.T) {
		gw := newFakeGateway(core.Item{Key: "I1", Version: 1, Collections: []string{"PEND"}})
		_, err := newMover(gw).FileDecision(ctx, "I1", rec, "", "")
		require.NoError(t, err)
		assert.Equal(t, 0, gw.patches)
		assert.Len(t, gw.notes["I1"], 1)
	})
}
