// Package ledger exposes the per-item view over all decision-bearing notes:
// one live record per (persona, phase), replace-not-append writes, and
// conflict surfacing. It is the only component that writes SDB note bodies.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/sdb"
)

// Entry is a decoded decision record together with the note that carries
// it. NoteVersion is the optimistic-lock token for surgical edits.
type Entry struct {
	Record      sdb.Record
	NoteKey     string
	NoteVersion int
}

// Conflict groups two or more live records for one identity key. With
// upsert semantics this should not happen; when it does it is surfaced,
// never auto-resolved.
type Conflict struct {
	Identity sdb.Identity
	Entries  []Entry
}

// Migration describes one note's schema upgrade, applied or planned.
type Migration struct {
	NoteKey string
	From    string
	To      string
	Applied bool
	Err     error
}

// Ledger reads and writes decision records through the store gateway.
type Ledger struct {
	gw    core.Gateway
	log   *slog.Logger
	agent string
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithAgent sets the tool identity stamped on records that do not carry
// one. Defaults to the CLI identity.
func WithAgent(agent string) Option {
	return func(l *Ledger) { l.agent = agent }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger over the given gateway.
func New(gw core.Gateway, opts ...Option) *Ledger {
	l := &Ledger{
		gw:    gw,
		log:   slog.Default(),
		agent: sdb.AgentCLI,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ReadAll decodes every child note of the item. Foreign notes are skipped
// silently; notes that look like SDB but fail to parse are logged and
// skipped. A scan never fails because of one bad note body.
func (l *Ledger) ReadAll(ctx context.Context, itemKey string) ([]Entry, error) {
	entries, _, err := l.Scan(ctx, itemKey)
	return entries, err
}

// Scan is ReadAll plus the keys of notes that carry the decision-block
// discriminator but could not be decoded, for callers that report on data
// quality.
func (l *Ledger) Scan(ctx context.Context, itemKey string) ([]Entry, []string, error) {
	notes, err := l.gw.Children(ctx, itemKey)
	if err != nil {
		return nil, nil, fmt.Errorf("reading notes for item %s: %w", itemKey, err)
	}

	var entries []Entry
	var malformed []string
	for _, n := range notes {
		rec, ok, err := sdb.Decode(n.Body)
		if err != nil {
			l.log.Warn("skipping malformed decision block",
				"item", itemKey, "note", n.Key, "error", err)
			malformed = append(malformed, n.Key)
			continue
		}
		if !ok {
			continue
		}
		entries = append(entries, Entry{Record: rec, NoteKey: n.Key, NoteVersion: n.Version})
	}
	return entries, malformed, nil
}

// Upsert writes a decision record, replacing the existing note for the same
// identity key if one exists. A write is never additive for an existing
// (persona, phase); that rule is what prevents one reviewer accumulating
// duplicate decision notes. Timestamp, agent and schema version default if
// unset.
func (l *Ledger) Upsert(ctx context.Context, itemKey string, rec sdb.Record) (Entry, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}
	if rec.Agent == "" {
		rec.Agent = l.agent
	}
	if rec.AuditVersion == "" {
		rec.AuditVersion = sdb.Latest
	}

	body, err := sdb.Encode(rec)
	if err != nil {
		return Entry{}, fmt.Errorf("upsert for item %s: %w", itemKey, err)
	}

	entries, err := l.ReadAll(ctx, itemKey)
	if err != nil {
		return Entry{}, err
	}

	id := identityOf(rec)
	for _, e := range entries {
		if identityOf(e.Record) != id {
			continue
		}
		if err := l.gw.UpdateNote(ctx, e.NoteKey, e.NoteVersion, body); err != nil {
			return Entry{}, fmt.Errorf("replacing decision note %s on item %s: %w", e.NoteKey, itemKey, err)
		}
		l.log.Debug("replaced decision note", "item", itemKey, "note", e.NoteKey, "identity", id)
		return Entry{Record: rec, NoteKey: e.NoteKey, NoteVersion: e.NoteVersion}, nil
	}

	noteKey, err := l.gw.CreateNote(ctx, itemKey, body)
	if err != nil {
		return Entry{}, fmt.Errorf("creating decision note on item %s: %w", itemKey, err)
	}
	l.log.Debug("created decision note", "item", itemKey, "note", noteKey, "identity", id)
	return Entry{Record: rec, NoteKey: noteKey}, nil
}

// Edit surgically replaces the record for an existing identity key. Unlike
// Upsert it refuses to create: editing a decision that was never made is a
// caller bug.
func (l *Ledger) Edit(ctx context.Context, itemKey string, id sdb.Identity, rec sdb.Record) (Entry, error) {
	entries, err := l.ReadAll(ctx, itemKey)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if identityOf(e.Record) != id {
			continue
		}
		body, err := sdb.Encode(rec)
		if err != nil {
			return Entry{}, fmt.Errorf("edit for item %s: %w", itemKey, err)
		}
		if err := l.gw.UpdateNote(ctx, e.NoteKey, e.NoteVersion, body); err != nil {
			return Entry{}, fmt.Errorf("editing decision note %s on item %s: %w", e.NoteKey, itemKey, err)
		}
		return Entry{Record: rec, NoteKey: e.NoteKey, NoteVersion: e.NoteVersion}, nil
	}
	return Entry{}, fmt.Errorf("item %s has no decision for %s: %w", itemKey, id, core.ErrNotFound)
}

// FindConflicts returns the identity keys whose live records disagree on
// the decision. A reviewer contradicting themselves within one phase is a
// signal for a human, not something to resolve automatically.
func (l *Ledger) FindConflicts(ctx context.Context, itemKey string) ([]Conflict, error) {
	entries, err := l.ReadAll(ctx, itemKey)
	if err != nil {
		return nil, err
	}
	return ConflictsIn(entries), nil
}

// ConflictsIn groups entries by identity and keeps the groups whose records
// disagree on the decision.
func ConflictsIn(entries []Entry) []Conflict {
	var conflicts []Conflict
	for _, group := range groupByIdentity(entries) {
		if len(group.Entries) < 2 {
			continue
		}
		first := group.Entries[0].Record.Decision
		for _, e := range group.Entries[1:] {
			if e.Record.Decision != first {
				conflicts = append(conflicts, group)
				break
			}
		}
	}
	return conflicts
}

// Duplicates returns identity keys with more than one live record,
// regardless of whether the decisions agree. Given upsert semantics this
// is data corruption and is reported as such.
func Duplicates(entries []Entry) []Conflict {
	var dups []Conflict
	for _, group := range groupByIdentity(entries) {
		if len(group.Entries) > 1 {
			dups = append(dups, group)
		}
	}
	return dups
}

// Migrate upgrades every outdated record on the item to the latest schema
// version. With dryRun the plan is computed but nothing is written. Each
// migration is logged with its before/after version; per-note write
// failures are recorded and do not stop the sweep.
func (l *Ledger) Migrate(ctx context.Context, itemKey string, dryRun bool) ([]Migration, error) {
	entries, err := l.ReadAll(ctx, itemKey)
	if err != nil {
		return nil, err
	}

	var out []Migration
	for _, e := range entries {
		if !sdb.NeedsMigration(e.Record) {
			continue
		}
		migrated := sdb.Migrate(e.Record)
		m := Migration{NoteKey: e.NoteKey, From: e.Record.AuditVersion, To: migrated.AuditVersion}

		if !dryRun {
			body, err := sdb.Encode(migrated)
			if err == nil {
				err = l.gw.UpdateNote(ctx, e.NoteKey, e.NoteVersion, body)
			}
			if err != nil {
				m.Err = err
				out = append(out, m)
				l.log.Error("schema migration failed",
					"item", itemKey, "note", e.NoteKey, "from", m.From, "error", err)
				continue
			}
			m.Applied = true
		}

		l.log.Info("schema migration",
			"item", itemKey, "note", e.NoteKey,
			"from", m.From, "to", m.To, "dry_run", dryRun)
		out = append(out, m)
	}
	return out, nil
}

// Purge deletes the item's decision notes, optionally narrowed to one
// phase. Foreign notes are never touched. Returns the keys of the deleted
// (or, under dryRun, matching) notes.
func (l *Ledger) Purge(ctx context.Context, itemKey string, phase sdb.Phase, dryRun bool) ([]string, error) {
	entries, err := l.ReadAll(ctx, itemKey)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, e := range entries {
		if phase != "" && sdb.Migrate(e.Record).Phase != phase {
			continue
		}
		if !dryRun {
			if err := l.gw.DeleteNote(ctx, e.NoteKey, e.NoteVersion); err != nil {
				return deleted, fmt.Errorf("purging note %s on item %s: %w", e.NoteKey, itemKey, err)
			}
		}
		l.log.Info("purged decision note",
			"item", itemKey, "note", e.NoteKey, "dry_run", dryRun)
		deleted = append(deleted, e.NoteKey)
	}
	return deleted, nil
}

// identityOf compares identities in the latest schema's terms, so a v1.0
// record (persona only) and its v1.2 replacement collide as intended.
func identityOf(r sdb.Record) sdb.Identity {
	return sdb.Migrate(r).Identity()
}

func groupByIdentity(entries []Entry) []Conflict {
	byID := make(map[sdb.Identity][]Entry)
	for _, e := range entries {
		id := identityOf(e.Record)
		byID[id] = append(byID[id], e)
	}

	groups := make([]Conflict, 0, len(byID))
	for id, es := range byID {
		groups = append(groups, Conflict{Identity: id, Entries: es})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Identity.String() < groups[j].Identity.String()
	})
	return groups
}
