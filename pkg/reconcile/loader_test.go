package reconcile

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/ledger"
	"github.com/sievelit/sieve/pkg/mover"
)

type fakeGateway struct {
	core.Gateway

	items   map[string]*core.Item
	byColl  map[string][]string
	notes   map[string][]core.Note
	nextKey int
}

func newFakeGateway(items ...core.Item) *fakeGateway {
	g := &fakeGateway{
		items:  map[string]*core.Item{},
		byColl: map[string][]string{},
		notes:  map[string][]core.Note{},
	}
	for i := range items {
		it := items[i]
		g.items[it.Key] = &it
		for _, c := range it.Collections {
			g.byColl[c] = append(g.byColl[c], it.Key)
		}
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

func (g *fakeGateway) ItemsInCollection(_ context.Context, key string) ([]core.Item, error) {
	var out []core.Item
	for _, k := range g.byColl[key] {
		out = append(out, *g.items[k])
	}
	return out, nil
}

func (g *fakeGateway) Children(_ context.Context, itemKey string) ([]core.Note, error) {
	return g.notes[itemKey], nil
}

func (g *fakeGateway) CreateNote(_ context.Context, parentKey, body string) (string, error) {
	g.nextKey++
	key := "N" + strings.Repeat("0", 3) + string(rune('A'+g.nextKey-1))
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
	it, ok := g.items[itemKey]
	if !ok {
		return core.ErrNotFound
	}
	if version != it.Version {
		return core.ErrVersionConflict
	}
	it.Collections = collections
	it.Version++
	return nil
}

func newLoader(gw *fakeGateway) *Loader {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.New(gw, ledger.WithLogger(log))
	mv := mover.New(gw, led, mover.WithLogger(log))
	return NewLoader(gw, led, mv, log)
}

func pendingItems() []core.Item {
	return []core.Item{
		{Key: "I1", Version: 1, Title: "Deep Learning for Code Review", DOI: "10.1000/dl.cr", Collections: []string{"PEND"}},
		{Key: "I2", Version: 1, Title: "A Survey of Program Repair", ArxivID: "2101.00001", Collections: []string{"PEND"}},
		{Key: "I3", Version: 1, Title: "Static Analysis at Scale", Collections: []string{"PEND"}},
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	opts := Options{
		Collection: "PEND",
		Persona:    "rev1",
		IncludeKey: "INCL",
		ExcludeKey: "EXCL",
	}

	t.Run("Exact Key Wins", func(t *testing.T) {
		gw := newFakeGateway(pendingItems()...)
		report, err := newLoader(gw).Load(ctx, []Row{
			{Key: "I1", Title: "completely different title", Decision: "include"},
		}, opts)
		require.NoError(t, err)
		require.Len(t, report.Results, 1)
		assert.Equal(t, Applied, report.Results[0].Outcome)
		assert.Equal(t, "I1", report.Results[0].ItemKey)
		assert.Contains(t, gw.items["I1"].Collections, "INCL")
	})

	t.Run("Identifier Beats Title", func(t *testing.T) {
		gw := newFakeGateway(pendingItems()...)
		report, err := newLoader(gw).Load(ctx, []Row{
			{Title: "nothing like the real one", DOI: "https://doi.org/10.1000/DL.CR", Decision: "include"},
			{Title: "unrelated", ArxivID: "arXiv:2101.00001", Decision: "exclude", Codes: []string{"EC2"}},
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Applied)
		assert.Equal(t, "I1", report.Results[0].ItemKey)
		assert.Equal(t, "I2", report.Results[1].ItemKey)
		assert.Contains(t, gw.items["I2"].Collections, "EXCL")
	})

	t.Run("Fuzzy Title Above Threshold", func(t *testing.T) {
		gw := newFakeGateway(pendingItems()...)
		report, err := newLoader(gw).Load(ctx, []Row{
			{Title: "Deep learning for code review.", Decision: "include"},
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, Applied, report.Results[0].Outcome)
		assert.Equal(t, "I1", report.Results[0].ItemKey)
	})

	t.Run("Half Similar Title Is Unmatched", func(t *testing.T) {
		gw := newFakeGateway(pendingItems()...)
		report, err := newLoader(gw).Load(ctx, []Row{
			{Title: "Deep Learning for Protein Folding Structures", Decision: "include"},
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, Unmatched, report.Results[0].Outcome)
		assert.Equal(t, 1, report.Unmatched)
	})

	t.Run("Two Candidates Above Threshold Is Ambiguous", func(t *testing.T) {
		gw := newFakeGateway(
			core.Item{Key: "A1", Version: 1, Title: "Fuzzing Compilers With Grammars", Collections: []string{"PEND"}},
			core.Item{Key: "A2", Version: 1, Title: "Fuzzing Compilers With Grammars II", Collections: []string{"PEND"}},
		)
		report, err := newLoader(gw).Load(ctx, []Row{
			{Title: "Fuzzing Compilers With Grammars", Decision: "include"},
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, Ambiguous, report.Results[0].Outcome, "a perfect score does not break the tie")
		assert.Contains(t, report.Results[0].Detail, "A1")
		assert.Contains(t, report.Results[0].Detail, "A2")
		assert.Empty(t, gw.notes["A1"])
		assert.Empty(t, gw.notes["A2"])
	})

	t.Run("Existing Decision Skipped Without Force", func(t *testing.T) {
		gw := newFakeGateway(pendingItems()...)
		l := newLoader(gw)
		first, err := l.Load(ctx, []Row{{Key: "I1", Decision: "include"}}, opts)
		require.NoError(t, err)
		require.Equal(t, 1, first.Applied)

		second, err := l.Load(ctx, []Row{{Key: "I1", Decision: "exclude", Codes: []string{"EC1"}}}, opts)
		require.NoError(t, err)
		assert.Equal(t, 1, second.Skipped)
		assert.Len(t, gw.notes["I1"], 1)

		forced := opts
		forced.Force = true
		third, err := l.Load(ctx, []Row{{Key: "I1", Decision: "exclude", Codes: []string{"EC1"}}}, forced)
		require.NoError(t, err)
		assert.Equal(t, 1, third.Applied)
		assert.Len(t, gw.notes["I1"], 1, "force replaces, never appends")
	})

	t.Run("Dry Run Writes Nothing", func(t *testing.T) {
		gw := newFakeGateway(pendingItems()...)
		dry := opts
		dry.DryRun = true
		report, err := newLoader(gw).Load(ctx, []Row{{Key: "I1", Decision: "include"}}, dry)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Applied)
		assert.Empty(t, gw.notes["I1"])
		assert.Equal(t, []string{"PEND"}, gw.items["I1"].Collections)
	})

	t.Run("Row Reviewer Overrides Default Persona", func(t *testing.T) {
		gw := newFakeGateway(pendingItems()...)
		l := newLoader(gw)
		_, err := l.Load(ctx, []Row{{Key: "I1", Decision: "include", Reviewer: "rev2"}}, opts)
		require.NoError(t, err)

		led := ledger.New(gw, ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		entries, err := led.ReadAll(ctx, "I1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "rev2", entries[0].Record.Persona)
	})

	t.Run("Bad Rows Do Not Abort The Run", func(t *testing.T) {
		gw := newFakeGateway(pendingItems()...)
		report, err := newLoader(gw).Load(ctx, []Row{
			{Key: "I1", Decision: "maybe later"},
			{Key: "I2", Decision: "exclude"}, // rejection without codes
			{Key: "I3", Decision: "include"},
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Skipped)
		assert.Equal(t, 1, report.Applied)
	})
}

func TestReadRows(t *testing.T) {
	t.Run("Default Columns", func(t *testing.T) {
		csv := "Key,Title,DOI,Decision,Code,Reason,Reviewer\n" +
			"I1,Some Paper,10.1/x,exclude,\"EC1, EC2\",too short,rev1\n" +
			",Another Paper,,include,,,\n"
		rows, err := ReadRows(strings.NewReader(csv), ColumnMap{})
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.Equal(t, 2, rows[0].Line)
		assert.Equal(t, "I1", rows[0].Key)
		assert.Equal(t, []string{"EC1", "EC2"}, rows[0].Codes)
		assert.Equal(t, "rev1", rows[0].Reviewer)
		assert.Equal(t, "Another Paper", rows[1].Title)
		assert.Empty(t, rows[1].Codes)
	})

	t.Run("Custom Column Names", func(t *testing.T) {
		csv := "article,verdict\nSome Paper,include\n"
		rows, err := ReadRows(strings.NewReader(csv), ColumnMap{Title: "article", Decision: "verdict"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Some Paper", rows[0].Title)
		assert.Equal(t, "include", rows[0].Decision)
	})

	t.Run("Explicitly Mapped Column Must Exist", func(t *testing.T) {
		_, err := ReadRows(strings.NewReader("title,decision\nx,include\n"), ColumnMap{Reviewer: "screener"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "screener")
	})

	t.Run("Missing Decision Column", func(t *testing.T) {
		_, err := ReadRows(strings.NewReader("title\nx\n"), ColumnMap{})
		require.Error(t, err)
	})
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("abc", "abc"))
	assert.Equal(t, 0.0, similarity("abcd", "wxyz"))
	assert.InDelta(t, 0.75, similarity("abcd", "abcx"), 0.001)
}
