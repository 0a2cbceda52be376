package reconcile

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/sievelit/sieve/pkg/core"
)

// DefaultThreshold is the minimum title similarity for a fuzzy match.
const DefaultThreshold = 0.80

// index holds one collection's items keyed by identifier and by normalized
// title. Identifier buckets are lists because a library can genuinely hold
// duplicate records for one paper.
type index struct {
	byIdent map[string][]core.Item
	byTitle []titleEntry
}

type titleEntry struct {
	normalized string
	item       core.Item
}

func buildIndex(items []core.Item) *index {
	ix := &index{
		byIdent: make(map[string][]core.Item),
	}
	for _, it := range items {
		if doi := normalizeDOI(it.DOI); doi != "" {
			ix.byIdent[doi] = append(ix.byIdent[doi], it)
		}
		if arxiv := normalizeArxiv(it.ArxivID); arxiv != "" {
			ix.byIdent[arxiv] = append(ix.byIdent[arxiv], it)
		}
		if title := normalizeTitle(it.Title); title != "" {
			ix.byTitle = append(ix.byTitle, titleEntry{normalized: title, item: it})
		}
	}
	return ix
}

// match resolves an unkeyed row with strict precedence: exact identifier,
// then fuzzy title. A fuzzy lookup that puts more than one item at or above
// the threshold is ambiguous no matter how the scores compare; a near-tie
// is exactly the situation a human must look at. On ambiguity the competing
// candidates come back so the caller can name them.
func (ix *index) match(row Row, threshold float64) (core.Item, []core.Item, matchOutcome) {
	for _, ident := range []string{normalizeDOI(row.DOI), normalizeArxiv(row.ArxivID)} {
		if ident == "" {
			continue
		}
		if hits := ix.byIdent[ident]; len(hits) == 1 {
			return hits[0], nil, matchFound
		} else if len(hits) > 1 {
			return core.Item{}, hits, matchAmbiguous
		}
	}

	title := normalizeTitle(row.Title)
	if title == "" {
		return core.Item{}, nil, matchMissed
	}

	var hits []core.Item
	for _, entry := range ix.byTitle {
		if similarity(title, entry.normalized) >= threshold {
			hits = append(hits, entry.item)
		}
	}
	switch len(hits) {
	case 0:
		return core.Item{}, nil, matchMissed
	case 1:
		return hits[0], nil, matchFound
	default:
		return core.Item{}, hits, matchAmbiguous
	}
}

type matchOutcome int

const (
	matchFound matchOutcome = iota
	matchMissed
	matchAmbiguous
)

// similarity maps Levenshtein distance into [0, 1]: 1 - distance/maxLen.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// normalizeTitle lowercases and strips everything but letters, digits and
// single spaces, so punctuation and casing differences between an export
// and the library never defeat a match.
func normalizeTitle(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func normalizeDOI(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi:"} {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}

func normalizeArxiv(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.TrimPrefix(s, "arxiv:")
}
