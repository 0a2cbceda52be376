package core

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	// ErrNotFound is returned when an item, note or collection does not
	// exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by the gateway when an optimistic
	// write is rejected because another writer updated the object first.
	ErrVersionConflict = errors.New("version conflict")
)

// AmbiguousSourceError is returned when a move with an omitted source
// collection cannot infer a single source. The operation fails closed; no
// mutation has happened.
type AmbiguousSourceError struct {
	ItemKey    string
	Candidates []string
}

func (e *AmbiguousSourceError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("item %s: no source collection to infer", e.ItemKey)
	}
	return fmt.Sprintf("item %s: ambiguous source collection (candidates: %s)",
		e.ItemKey, strings.Join(e.Candidates, ", "))
}

// ConflictError is returned when the optimistic retry budget is exhausted.
type ConflictError struct {
	ItemKey  string
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("item %s: version conflict persisted after %d attempts", e.ItemKey, e.Attempts)
}

func (e *ConflictError) Unwrap() error { return ErrVersionConflict }

// PartialMoveError reports the decided-but-not-filed state: the decision
// note was written but the membership patch failed. There is no compensating
// transaction against the store, so the note stands and the caller must be
// told.
type PartialMoveError struct {
	ItemKey string
	NoteKey string
	Err     error
}

func (e *PartialMoveError) Error() string {
	return fmt.Sprintf("item %s: decision note %s recorded but collection move failed: %v",
		e.ItemKey, e.NoteKey, e.Err)
}

func (e *PartialMoveError) Unwrap() error { return e.Err }

// AmbiguousMatchError reports a reconciliation row that matched more than
// one item above the similarity threshold.
type AmbiguousMatchError struct {
	Title      string
	Candidates []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("title %q matches multiple items: %s", e.Title, strings.Join(e.Candidates, ", "))
}
