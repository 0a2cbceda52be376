package core

// Item is the central entity of the domain: a bibliographic record owned by
// the remote reference store. The store assigns the key and the version; the
// version doubles as the optimistic-lock token for every write.
type Item struct {
	Key         string   `json:"key"`
	Version     int      `json:"version"`
	ItemType    string   `json:"item_type"`
	Title       string   `json:"title,omitempty"`
	Abstract    string   `json:"abstract,omitempty"`
	DOI         string   `json:"doi,omitempty"`
	ArxivID     string   `json:"arxiv_id,omitempty"`
	URL         string   `json:"url,omitempty"`
	Date        string   `json:"date,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Collections []string `json:"collections,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// HasIdentifier reports whether the item carries at least one stable
// external identifier (DOI or arXiv id).
func (i Item) HasIdentifier() bool {
	return i.DOI != "" || i.ArxivID != ""
}

// InCollection reports membership in the given collection key.
func (i Item) InCollection(key string) bool {
	for _, c := range i.Collections {
		if c == key {
			return true
		}
	}
	return false
}

// Note is a child note attached to an item. The body is opaque text as far
// as the store is concerned; screening records live inside it.
type Note struct {
	Key       string `json:"key"`
	Version   int    `json:"version"`
	ParentKey string `json:"parent_key"`
	Body      string `json:"body"`
}

// Collection is a named membership set of items. ParentKey is empty for
// top-level collections.
type Collection struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	ParentKey string `json:"parent_key,omitempty"`
}
