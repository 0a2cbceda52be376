package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// ResolveCollection resolves a collection by key or by name. Name matching
// is exact; when two collections share a name the key must be used instead.
func ResolveCollection(ctx context.Context, gw Gateway, nameOrKey string) (Collection, error) {
	cols, err := gw.Collections(ctx)
	if err != nil {
		return Collection{}, fmt.Errorf("listing collections: %w", err)
	}

	var byName []Collection
	for _, c := range cols {
		if c.Key == nameOrKey {
			return c, nil
		}
		if c.Name == nameOrKey {
			byName = append(byName, c)
		}
	}

	switch len(byName) {
	case 1:
		return byName[0], nil
	case 0:
		return Collection{}, fmt.Errorf("collection %q: %w", nameOrKey, ErrNotFound)
	default:
		keys := make([]string, len(byName))
		for i, c := range byName {
			keys[i] = c.Key
		}
		return Collection{}, fmt.Errorf("collection name %q is not unique (keys: %v); use a key", nameOrKey, keys)
	}
}

// CollectionPaths maps every collection key to its slash-joined path
// ("Parent/Child/Grandchild"). Orphaned parent references fall back to the
// bare name.
func CollectionPaths(cols []Collection) map[string]string {
	byKey := make(map[string]Collection, len(cols))
	for _, c := range cols {
		byKey[c.Key] = c
	}

	paths := make(map[string]string, len(cols))
	var pathOf func(c Collection, depth int) string
	pathOf = func(c Collection, depth int) string {
		// Cycle guard: real stores cannot nest deeper than this.
		if c.ParentKey == "" || depth > 32 {
			return c.Name
		}
		parent, ok := byKey[c.ParentKey]
		if !ok {
			return c.Name
		}
		return pathOf(parent, depth+1) + "/" + c.Name
	}
	for _, c := range cols {
		paths[c.Key] = pathOf(c, 0)
	}
	return paths
}

// ResolveScope expands a list of collection selectors into concrete
// collections. A selector is an exact key, an exact name, or a doublestar
// glob matched against the collection path. Results are deduplicated and
// sorted by path for stable output.
func ResolveScope(ctx context.Context, gw Gateway, selectors []string) ([]Collection, error) {
	cols, err := gw.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	paths := CollectionPaths(cols)

	seen := make(map[string]bool)
	var out []Collection
	for _, sel := range selectors {
		matched := false
		for _, c := range cols {
			ok := c.Key == sel || c.Name == sel
			if !ok {
				ok, err = doublestar.Match(sel, paths[c.Key])
				if err != nil {
					return nil, fmt.Errorf("bad collection pattern %q: %w", sel, err)
				}
			}
			if ok {
				matched = true
				if !seen[c.Key] {
					seen[c.Key] = true
					out = append(out, c)
				}
			}
		}
		if !matched {
			return nil, fmt.Errorf("collection selector %q matched nothing: %w", sel, ErrNotFound)
		}
	}

	sort.Slice(out, func(i, j int) bool { return paths[out[i].Key] < paths[out[j].Key] })
	return out, nil
}
