package reconcile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Row is one decision from an external export, before it has been matched
// to a library item. Key, DOI and ArxivID are optional; Decision is not.
type Row struct {
	Line     int
	Key      string
	Title    string
	DOI      string
	ArxivID  string
	Decision string
	Codes    []string
	Reason   string
	Reviewer string
}

// ColumnMap names the CSV columns each Row field is read from. Zero values
// fall back to the conventional header names.
type ColumnMap struct {
	Key      string
	Title    string
	DOI      string
	ArxivID  string
	Decision string
	Codes    string
	Reason   string
	Reviewer string
}

func (cm ColumnMap) withDefaults() ColumnMap {
	def := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}
	return ColumnMap{
		Key:      def(cm.Key, "key"),
		Title:    def(cm.Title, "title"),
		DOI:      def(cm.DOI, "doi"),
		ArxivID:  def(cm.ArxivID, "arxiv"),
		Decision: def(cm.Decision, "decision"),
		Codes:    def(cm.Codes, "code"),
		Reason:   def(cm.Reason, "reason"),
		Reviewer: def(cm.Reviewer, "reviewer"),
	}
}

// ReadRows parses a decision CSV. Header lookup is case-insensitive. The
// decision column must exist; a column the caller explicitly mapped must
// exist too, while absent default columns just leave their field empty.
func ReadRows(r io.Reader, cm ColumnMap) ([]Row, error) {
	explicit := map[string]bool{
		cm.Key: true, cm.Title: true, cm.DOI: true, cm.ArxivID: true,
		cm.Decision: true, cm.Codes: true, cm.Reason: true, cm.Reviewer: true,
	}
	delete(explicit, "")
	cm = cm.withDefaults()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading decision csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	lookup := func(name string) (int, error) {
		i, ok := cols[strings.ToLower(name)]
		if !ok {
			if explicit[name] {
				return -1, fmt.Errorf("decision csv has no column %q", name)
			}
			return -1, nil
		}
		return i, nil
	}

	var idx [8]int
	for i, name := range []string{cm.Key, cm.Title, cm.DOI, cm.ArxivID, cm.Decision, cm.Codes, cm.Reason, cm.Reviewer} {
		if idx[i], err = lookup(name); err != nil {
			return nil, err
		}
	}
	if idx[4] < 0 {
		return nil, fmt.Errorf("decision csv has no column %q", cm.Decision)
	}

	field := func(rec []string, i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading decision csv line %d: %w", line, err)
		}
		rows = append(rows, Row{
			Line:     line,
			Key:      field(rec, idx[0]),
			Title:    field(rec, idx[1]),
			DOI:      field(rec, idx[2]),
			ArxivID:  field(rec, idx[3]),
			Decision: field(rec, idx[4]),
			Codes:    splitCodes(field(rec, idx[5])),
			Reason:   field(rec, idx[6]),
			Reviewer: field(rec, idx[7]),
		})
	}
	return rows, nil
}

func splitCodes(s string) []string {
	if s == "" {
		return nil
	}
	var codes []string
	for _, c := range strings.Split(s, ";") {
		for _, cc := range strings.Split(c, ",") {
			if cc = strings.TrimSpace(cc); cc != "" {
				codes = append(codes, cc)
			}
		}
	}
	return codes
}
