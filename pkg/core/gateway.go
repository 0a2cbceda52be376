package core

import "context"

// Gateway defines the contract for the remote reference store. Adhering to
// this interface keeps the screening logic independent of the concrete HTTP
// API (and makes it testable against in-memory fakes).
//
// The store is the single source of truth: implementations must return
// ErrVersionConflict when a versioned write is rejected, and must never
// retry on their own. Retry policy belongs to the caller.
type Gateway interface {
	// Item retrieves a single item with its current version.
	Item(ctx context.Context, key string) (Item, error)

	// ItemsInCollection returns the top-level items of a collection.
	ItemsInCollection(ctx context.Context, collectionKey string) ([]Item, error)

	// Children returns the child notes of an item. Non-note children
	// (attachments) are not part of this surface.
	Children(ctx context.Context, itemKey string) ([]Note, error)

	// CreateNote attaches a new child note and returns its store key.
	CreateNote(ctx context.Context, parentKey, body string) (string, error)

	// UpdateNote replaces a note body, guarded by the note's version.
	UpdateNote(ctx context.Context, noteKey string, version int, body string) error

	// DeleteNote removes a note, guarded by the note's version.
	DeleteNote(ctx context.Context, noteKey string, version int) error

	// UpdateItemCollections replaces an item's membership set, guarded by
	// the item's version.
	UpdateItemCollections(ctx context.Context, itemKey string, version int, collections []string) error

	// Collections returns every collection in the library.
	Collections(ctx context.Context) ([]Collection, error)
}
