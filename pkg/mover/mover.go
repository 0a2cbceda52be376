// Package mover relocates items between screening collections with
// optimistic-concurrency retries, and composes the note-then-move sequence
// used when a decision is filed.
package mover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/ledger"
	"github.com/sievelit/sieve/pkg/sdb"
)

// DefaultRetries is the per-move attempt budget for version conflicts.
const DefaultRetries = 3

// Mover performs collection membership changes through the store gateway.
type Mover struct {
	gw      core.Gateway
	ledger  *ledger.Ledger
	log     *slog.Logger
	retries int
}

// Option configures a Mover.
type Option func(*Mover)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(m *Mover) { m.log = log }
}

// WithRetries overrides the version-conflict attempt budget.
func WithRetries(n int) Option {
	return func(m *Mover) {
		if n > 0 {
			m.retries = n
		}
	}
}

// New creates a Mover.
func New(gw core.Gateway, led *ledger.Ledger, opts ...Option) *Mover {
	m := &Mover{
		gw:      gw,
		ledger:  led,
		log:     slog.Default(),
		retries: DefaultRetries,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Move takes the item out of fromKey and puts it into toKey. With fromKey
// empty the source is inferred: the item must sit in exactly one collection
// other than the destination; zero candidates or several both fail with
// AmbiguousSourceError before anything is written. Version conflicts are
// retried by re-reading the item, up to the attempt budget; membership in
// unrelated collections is always preserved.
func (m *Mover) Move(ctx context.Context, itemKey, fromKey, toKey string) error {
	for attempt := 1; attempt <= m.retries; attempt++ {
		item, err := m.gw.Item(ctx, itemKey)
		if err != nil {
			return fmt.Errorf("moving item %s: %w", itemKey, err)
		}

		src := fromKey
		if src == "" {
			src, err = inferSource(item, toKey)
			if err != nil {
				return err
			}
		}

		next := rewriteMembership(item.Collections, src, toKey)
		if sameSet(item.Collections, next) {
			m.log.Debug("item already in destination", "item", itemKey, "collection", toKey)
			return nil
		}

		err = m.gw.UpdateItemCollections(ctx, itemKey, item.Version, next)
		if err == nil {
			m.log.Info("moved item", "item", itemKey, "from", src, "to", toKey, "attempt", attempt)
			return nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return fmt.Errorf("moving item %s: %w", itemKey, err)
		}

		m.log.Warn("version conflict while moving, retrying",
			"item", itemKey, "attempt", attempt, "budget", m.retries)
	}
	return &core.ConflictError{ItemKey: itemKey, Attempts: m.retries}
}

// RemoveFromCollection drops the item from one collection without adding it
// anywhere, with the same retry discipline as Move.
func (m *Mover) RemoveFromCollection(ctx context.Context, itemKey, collectionKey string) error {
	for attempt := 1; attempt <= m.retries; attempt++ {
		item, err := m.gw.Item(ctx, itemKey)
		if err != nil {
			return fmt.Errorf("removing item %s from %s: %w", itemKey, collectionKey, err)
		}

		next := rewriteMembership(item.Collections, collectionKey, "")
		if sameSet(item.Collections, next) {
			return nil
		}

		err = m.gw.UpdateItemCollections(ctx, itemKey, item.Version, next)
		if err == nil {
			m.log.Info("removed item from collection", "item", itemKey, "collection", collectionKey)
			return nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return fmt.Errorf("removing item %s from %s: %w", itemKey, collectionKey, err)
		}

		m.log.Warn("version conflict while removing, retrying",
			"item", itemKey, "attempt", attempt, "budget", m.retries)
	}
	return &core.ConflictError{ItemKey: itemKey, Attempts: m.retries}
}

// FileDecision records the decision and then relocates the item. The note
// write always comes first: a decision with a stale location is recoverable,
// a moved item with no decision is not. If the move fails after the note
// landed, the error is a PartialMoveError naming the surviving note.
func (m *Mover) FileDecision(ctx context.Context, itemKey string, rec sdb.Record, fromKey, toKey string) (ledger.Entry, error) {
	entry, err := m.ledger.Upsert(ctx, itemKey, rec)
	if err != nil {
		return ledger.Entry{}, err
	}

	if toKey == "" {
		return entry, nil
	}
	if err := m.Move(ctx, itemKey, fromKey, toKey); err != nil {
		return entry, &core.PartialMoveError{ItemKey: itemKey, NoteKey: entry.NoteKey, Err: err}
	}
	return entry, nil
}

// inferSource finds the single membership that is not the destination.
// Anything else, zero candidates included, fails closed: guessing a source
// is how items silently leak into the funnel.
func inferSource(item core.Item, toKey string) (string, error) {
	var candidates []string
	for _, c := range item.Collections {
		if c != toKey {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) != 1 {
		return "", &core.AmbiguousSourceError{ItemKey: item.Key, Candidates: candidates}
	}
	return candidates[0], nil
}

// rewriteMembership drops src and adds dst (when non-empty), preserving
// order and every unrelated membership.
func rewriteMembership(current []string, src, dst string) []string {
	var next []string
	present := false
	for _, c := range current {
		if c == src {
			continue
		}
		if c == dst {
			present = true
		}
		next = append(next, c)
	}
	if dst != "" && !present {
		next = append(next, dst)
	}
	return next
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			return false
		}
	}
	return true
}
