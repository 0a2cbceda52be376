// Package snapshot captures a point-in-time copy of screening collections,
// items with their notes and decoded decisions, for drift analysis and
// offline archival.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sievelit/sieve/pkg/core"
	"github.com/sievelit/sieve/pkg/sdb"
)

// DefaultWorkers bounds the per-item fetch fan-out.
const DefaultWorkers = 8

// SchemaVersion identifies the snapshot layout itself, independent of the
// decision record schema.
const SchemaVersion = "1.0"

// Capture statuses.
const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
)

// Meta describes one capture.
type Meta struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Collections   []string  `json:"collections"`
	ItemCount     int       `json:"item_count"`
	SchemaVersion string    `json:"schema_version"`
	Status        string    `json:"status"`
	Generator     string    `json:"generator,omitempty"`
}

// Item is one captured item with everything attached to it.
type Item struct {
	Item      core.Item    `json:"item"`
	Notes     []core.Note  `json:"notes,omitempty"`
	Decisions []sdb.Record `json:"decisions,omitempty"`
}

// Failure records an item whose notes could not be fetched. The item is
// still listed; a capture degrades per item, never wholesale.
type Failure struct {
	ItemKey string `json:"item_key"`
	Error   string `json:"error"`
}

// Snapshot is a complete capture.
type Snapshot struct {
	Meta     Meta      `json:"meta"`
	Items    []Item    `json:"items"`
	Failures []Failure `json:"failures,omitempty"`
}

// Capturer builds snapshots through the store gateway.
type Capturer struct {
	gw        core.Gateway
	log       *slog.Logger
	workers   int
	generator string
	now       func() time.Time
	newID     func() string
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Capturer) { c.log = log }
}

// WithWorkers bounds the concurrent per-item note fetches.
func WithWorkers(n int) Option {
	return func(c *Capturer) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithGenerator stamps the capturing tool's name and version into the
// manifest.
func WithGenerator(g string) Option {
	return func(c *Capturer) { c.generator = g }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) { c.now = now }
}

// WithIDSource overrides snapshot ID generation.
func WithIDSource(newID func() string) Option {
	return func(c *Capturer) { c.newID = newID }
}

// New creates a Capturer.
func New(gw core.Gateway, opts ...Option) *Capturer {
	c := &Capturer{
		gw:      gw,
		log:     slog.Default(),
		workers: DefaultWorkers,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture snapshots every item in the given collections. Items appearing in
// more than one collection are captured once. Note fetches fan out across a
// bounded worker pool; a failing item lands in Failures and flips the
// status to partial success instead of aborting the capture.
func (c *Capturer) Capture(ctx context.Context, collectionKeys []string) (Snapshot, error) {
	var items []core.Item
	seen := map[string]bool{}
	for _, key := range collectionKeys {
		got, err := c.gw.ItemsInCollection(ctx, key)
		if err != nil {
			return Snapshot{}, fmt.Errorf("capturing collection %s: %w", key, err)
		}
		for _, it := range got {
			if !seen[it.Key] {
				seen[it.Key] = true
				items = append(items, it)
			}
		}
	}

	captured := make([]Item, len(items))
	var mu sync.Mutex
	var failures []Failure

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			notes, err := c.gw.Children(gctx, it.Key)
			if err != nil {
				mu.Lock()
				failures = append(failures, Failure{ItemKey: it.Key, Error: err.Error()})
				mu.Unlock()
				c.log.Warn("capture degraded for item", "item", it.Key, "error", err)
				captured[i] = Item{Item: it}
				return nil
			}
			captured[i] = Item{Item: it, Notes: notes, Decisions: decisions(c.log, it.Key, notes)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].ItemKey < failures[j].ItemKey })

	status := StatusSuccess
	if len(failures) > 0 {
		status = StatusPartialSuccess
	}
	snap := Snapshot{
		Meta: Meta{
			ID:            c.newID(),
			Timestamp:     c.now().UTC(),
			Collections:   collectionKeys,
			ItemCount:     len(captured),
			SchemaVersion: SchemaVersion,
			Status:        status,
			Generator:     c.generator,
		},
		Items:    captured,
		Failures: failures,
	}
	c.log.Info("snapshot captured",
		"id", snap.Meta.ID, "items", len(captured),
		"failures", len(failures), "status", status)
	return snap, nil
}

func decisions(log *slog.Logger, itemKey string, notes []core.Note) []sdb.Record {
	var out []sdb.Record
	for _, n := range notes {
		rec, ok, err := sdb.Decode(n.Body)
		if err != nil {
			log.Warn("skipping malformed decision block in capture",
				"item", itemKey, "note", n.Key, "error", err)
			continue
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out
}
