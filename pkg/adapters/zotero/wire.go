package zotero

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/sievelit/sieve/pkg/core"
)

// wireItem is the API's item envelope: key and version live beside the
// mutable data object.
type wireItem struct {
	Key     string   `json:"key"`
	Version int      `json:"version"`
	Data    wireData `json:"data"`
}

type wireData struct {
	ItemType     string        `json:"itemType"`
	Title        string        `json:"title"`
	AbstractNote string        `json:"abstractNote"`
	DOI          string        `json:"DOI"`
	URL          string        `json:"url"`
	Date         string        `json:"date"`
	Extra        string        `json:"extra"`
	ArchiveID    string        `json:"archiveID"`
	Note         string        `json:"note"`
	Creators     []wireCreator `json:"creators"`
	Collections  []string      `json:"collections"`
	Tags         []wireTag     `json:"tags"`
}

type wireCreator struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
}

type wireTag struct {
	Tag string `json:"tag"`
}

type wireCollection struct {
	Key  string `json:"key"`
	Data struct {
		Name             string     `json:"name"`
		ParentCollection parentLink `json:"parentCollection"`
	} `json:"data"`
}

// parentCollection is a string key or the literal false for top-level
// collections; the API uses both.
type parentLink struct {
	raw json.RawMessage
}

func (p *parentLink) UnmarshalJSON(data []byte) error {
	p.raw = data
	return nil
}

func (p parentLink) key() string {
	var s string
	if err := json.Unmarshal(p.raw, &s); err != nil {
		return ""
	}
	return s
}

// arxivExtraRe picks arXiv ids out of the free-form extra field, where
// importers conventionally record them ("arXiv: 2101.00001" or
// "arXiv:2101.00001 [cs.SE]").
var arxivExtraRe = regexp.MustCompile(`(?i)arxiv:\s*([a-z\-\.]*/?\d{4}\.?\d{4,5}(v\d+)?)`)

func (w wireItem) toItem() core.Item {
	it := core.Item{
		Key:         w.Key,
		Version:     w.Version,
		ItemType:    w.Data.ItemType,
		Title:       w.Data.Title,
		Abstract:    w.Data.AbstractNote,
		DOI:         strings.TrimSpace(w.Data.DOI),
		URL:         w.Data.URL,
		Date:        w.Data.Date,
		Collections: w.Data.Collections,
		ArxivID:     arxivID(w.Data),
	}
	for _, cr := range w.Data.Creators {
		it.Authors = append(it.Authors, creatorName(cr))
	}
	for _, tag := range w.Data.Tags {
		it.Tags = append(it.Tags, tag.Tag)
	}
	return it
}

func arxivID(d wireData) string {
	if a := strings.TrimSpace(d.ArchiveID); a != "" {
		return strings.TrimSpace(strings.TrimPrefix(a, "arXiv:"))
	}
	if m := arxivExtraRe.FindStringSubmatch(d.Extra); m != nil {
		return m[1]
	}
	return ""
}

func creatorName(cr wireCreator) string {
	if cr.Name != "" {
		return cr.Name
	}
	return strings.TrimSpace(cr.FirstName + " " + cr.LastName)
}
