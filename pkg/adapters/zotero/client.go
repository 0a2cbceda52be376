// Package zotero implements the store gateway against the Zotero Web API
// (v3). It translates HTTP and wire shapes into domain types and maps the
// API's optimistic-concurrency protocol onto the core error contract; it
// never retries conflicts itself.
package zotero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sievelit/sieve/pkg/core"
)

const (
	// DefaultBaseURL is the public Zotero API endpoint.
	DefaultBaseURL = "https://api.zotero.org"

	apiVersion = "3"
	pageSize   = 100
)

// Config holds the connection settings for one library.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// APIKey authenticates every request.
	APIKey string
	// LibraryID is the numeric user or group library id.
	LibraryID string
	// LibraryType is "users" or "groups"; defaults to "users".
	LibraryType string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client talks to one Zotero library. It satisfies core.Gateway.
type Client struct {
	base   string
	apiKey string
	prefix string
	httpc  *http.Client
	log    *slog.Logger
}

var _ core.Gateway = (*Client)(nil)

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.LibraryID == "" {
		return nil, fmt.Errorf("zotero: library id is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	libraryType := cfg.LibraryType
	if libraryType == "" {
		libraryType = "users"
	}
	if libraryType != "users" && libraryType != "groups" {
		return nil, fmt.Errorf("zotero: invalid library type %q", libraryType)
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		prefix: fmt.Sprintf("/%s/%s", libraryType, cfg.LibraryID),
		httpc:  httpc,
		log:    log,
	}, nil
}

// Item fetches one item by key.
func (c *Client) Item(ctx context.Context, key string) (core.Item, error) {
	var w wireItem
	if err := c.getJSON(ctx, c.prefix+"/items/"+key, &w); err != nil {
		return core.Item{}, fmt.Errorf("fetching item %s: %w", key, err)
	}
	return w.toItem(), nil
}

// ItemsInCollection lists the top-level items of a collection, following
// pagination until the collection is exhausted.
func (c *Client) ItemsInCollection(ctx context.Context, collectionKey string) ([]core.Item, error) {
	var items []core.Item
	for start := 0; ; start += pageSize {
		path := fmt.Sprintf("%s/collections/%s/items/top?limit=%d&start=%d",
			c.prefix, collectionKey, pageSize, start)
		var page []wireItem
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("listing collection %s: %w", collectionKey, err)
		}
		for _, w := range page {
			items = append(items, w.toItem())
		}
		if len(page) < pageSize {
			return items, nil
		}
	}
}

// Children returns the item's child notes. Attachments and other child
// types are dropped here so callers only ever see notes.
func (c *Client) Children(ctx context.Context, itemKey string) ([]core.Note, error) {
	var page []wireItem
	if err := c.getJSON(ctx, c.prefix+"/items/"+itemKey+"/children", &page); err != nil {
		return nil, fmt.Errorf("listing children of %s: %w", itemKey, err)
	}
	var notes []core.Note
	for _, w := range page {
		if w.Data.ItemType != "note" {
			continue
		}
		notes = append(notes, core.Note{
			Key:       w.Key,
			Version:   w.Version,
			ParentKey: itemKey,
			Body:      w.Data.Note,
		})
	}
	return notes, nil
}

// CreateNote attaches a new child note and returns its key.
func (c *Client) CreateNote(ctx context.Context, parentKey, body string) (string, error) {
	payload := []map[string]string{{
		"itemType":   "note",
		"parentItem": parentKey,
		"note":       body,
	}}
	resp, err := c.do(ctx, http.MethodPost, c.prefix+"/items", -1, payload)
	if err != nil {
		return "", fmt.Errorf("creating note on %s: %w", parentKey, err)
	}

	var result struct {
		Successful map[string]struct {
			Key string `json:"key"`
		} `json:"successful"`
		Failed map[string]struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"failed"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("creating note on %s: decoding response: %w", parentKey, err)
	}
	if f, ok := result.Failed["0"]; ok {
		return "", fmt.Errorf("creating note on %s: %s (code %d)", parentKey, f.Message, f.Code)
	}
	s, ok := result.Successful["0"]
	if !ok {
		return "", fmt.Errorf("creating note on %s: response lists no created item", parentKey)
	}
	return s.Key, nil
}

// UpdateNote replaces a note body, guarded by the note's version.
func (c *Client) UpdateNote(ctx context.Context, noteKey string, version int, body string) error {
	_, err := c.do(ctx, http.MethodPatch, c.prefix+"/items/"+noteKey, version,
		map[string]string{"note": body})
	if err != nil {
		return fmt.Errorf("updating note %s: %w", noteKey, err)
	}
	return nil
}

// DeleteNote removes a note, guarded by its version.
func (c *Client) DeleteNote(ctx context.Context, noteKey string, version int) error {
	_, err := c.do(ctx, http.MethodDelete, c.prefix+"/items/"+noteKey, version, nil)
	if err != nil {
		return fmt.Errorf("deleting note %s: %w", noteKey, err)
	}
	return nil
}

// UpdateItemCollections rewrites the item's collection membership, guarded
// by the item's version.
func (c *Client) UpdateItemCollections(ctx context.Context, itemKey string, version int, collections []string) error {
	if collections == nil {
		collections = []string{}
	}
	_, err := c.do(ctx, http.MethodPatch, c.prefix+"/items/"+itemKey, version,
		map[string][]string{"collections": collections})
	if err != nil {
		return fmt.Errorf("updating collections of %s: %w", itemKey, err)
	}
	return nil
}

// Collections lists every collection in the library.
func (c *Client) Collections(ctx context.Context) ([]core.Collection, error) {
	var cols []core.Collection
	for start := 0; ; start += pageSize {
		path := fmt.Sprintf("%s/collections?limit=%d&start=%d", c.prefix, pageSize, start)
		var page []wireCollection
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("listing collections: %w", err)
		}
		for _, w := range page {
			cols = append(cols, core.Collection{
				Key:       w.Key,
				Name:      w.Data.Name,
				ParentKey: w.Data.ParentCollection.key(),
			})
		}
		if len(page) < pageSize {
			return cols, nil
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	body, err := c.do(ctx, http.MethodGet, path, -1, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// do runs one request. A non-negative version is sent as the
// If-Unmodified-Since-Version precondition; 412 and 409 responses become
// the core version-conflict error so the retry policy stays with callers.
func (c *Client) do(ctx context.Context, method, path string, version int, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Zotero-API-Version", apiVersion)
	if c.apiKey != "" {
		req.Header.Set("Zotero-API-Key", c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if version >= 0 && method != http.MethodGet {
		req.Header.Set("If-Unmodified-Since-Version", strconv.Itoa(version))
	}

	c.log.Debug("zotero request", "method", method, "path", path)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, core.ErrNotFound
	case resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusConflict:
		return nil, core.ErrVersionConflict
	default:
		return nil, fmt.Errorf("zotero api: %s %s returned %d: %s",
			method, path, resp.StatusCode, truncate(string(data), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
