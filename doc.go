// Package sieve is the Composition Root for the sieve application.
//
// It connects the screening domain (decision records, funnel moves,
// reconciliation, reporting) with the reference-store adapter behind one
// assembly point.
//
// Philosophy:
//
// Sieve treats a shared Zotero library as the single source of truth for a
// systematic literature review. Screening decisions are not kept in a side
// database: each one is a structured audit note attached to the item it
// judges, so the review's full history travels with the library itself.
// Collections model the PRISMA funnel (pending, included, excluded), and
// every membership change rides on the store's optimistic-concurrency
// protocol so concurrent reviewers cannot silently overwrite each other.
//
// Features:
//
//   - **Decision records**: versioned, migratable audit blocks embedded in
//     item notes, one per reviewer and phase.
//   - **Funnel moves**: note-then-move filing with conflict retries and
//     partial-failure reporting.
//   - **Reconciliation**: fuzzy matching of externally exported decision
//     sheets back onto library items.
//   - **Reporting**: PRISMA statistics, data-quality audits and drift
//     between point-in-time snapshots.
//   - **Extensible**: the store behind a single `core.Gateway` interface,
//     with the Zotero Web API as the default adapter.
//
// Usage:
//
//	cfg, err := sieve.LoadConfig("")
//	app, err := sieve.New(cfg, sieve.WithLogger(logger))
//
//	// Record a decision and move the item
//	entry, err := app.Mover.FileDecision(ctx, itemKey, rec, "", includedKey)
package sieve
