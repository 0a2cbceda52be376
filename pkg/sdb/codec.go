package sdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrMalformed marks a note body that carries the SDB discriminator but
// cannot be decoded. Scans log and skip these; they are never fatal.
var ErrMalformed = errors.New("malformed decision block")

// The store renders note bodies as HTML, so records are written as a JSON
// object inside a div. Decoding extracts the first balanced-looking JSON
// block and strips the inline markup older tools left inside it.
var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

var markupCleaner = strings.NewReplacer(
	"<br>", "", "<br/>", "", "<br />", "",
	"<p>", "", "</p>", "",
)

// wireRecord is the canonical on-the-wire shape. Field names are frozen;
// audit_version is the version carrier every generation since v1.0 has
// understood (sdb_version and schema_version are accepted as read-side
// aliases only).
type wireRecord struct {
	AuditVersion string   `json:"audit_version"`
	Action       string   `json:"action"`
	Decision     string   `json:"decision"`
	ReasonCode   []string `json:"reason_code"`
	ReasonText   string   `json:"reason_text,omitempty"`
	Persona      string   `json:"persona"`
	Phase        string   `json:"phase,omitempty"`
	Evidence     string   `json:"evidence,omitempty"`
	Location     string   `json:"location,omitempty"`
	Timestamp    string   `json:"timestamp"`
	Agent        string   `json:"agent"`
	Signature    string   `json:"signature,omitempty"`
}

// Encode serializes a record into a note body. The record must validate;
// callers that want defaults applied (timestamp, agent) should go through
// the ledger, which owns them.
func Encode(r Record) (string, error) {
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("encoding decision block: %w", err)
	}
	w := wireRecord{
		AuditVersion: r.AuditVersion,
		Action:       Action,
		Decision:     string(r.Decision),
		ReasonCode:   r.ReasonCodes,
		ReasonText:   r.ReasonText,
		Persona:      r.Persona,
		Phase:        string(r.Phase),
		Evidence:     r.Evidence,
		Location:     r.Location,
		Timestamp:    r.Timestamp.UTC().Format(time.RFC3339),
		Agent:        r.Agent,
		Signature:    r.Signature,
	}
	if w.AuditVersion == "" {
		w.AuditVersion = Latest
	}
	if w.ReasonCode == nil {
		w.ReasonCode = []string{}
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding decision block: %w", err)
	}
	return "<div>" + string(data) + "</div>", nil
}

// Decode parses a note body. The second return value is false for foreign
// notes (anything that does not self-identify as an SDB record); those are
// not an error. A body that carries the discriminator but fails to parse
// returns an error wrapping ErrMalformed.
func Decode(body string) (Record, bool, error) {
	if body == "" {
		return Record{}, false, nil
	}

	block := jsonBlockRe.FindString(body)
	if block == "" {
		if looksLikeSDB(body) {
			return Record{}, false, fmt.Errorf("%w: discriminator present but no JSON block", ErrMalformed)
		}
		return Record{}, false, nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(markupCleaner.Replace(block)), &raw); err != nil {
		if looksLikeSDB(body) {
			return Record{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Record{}, false, nil
	}

	if !isSDB(raw) {
		return Record{}, false, nil
	}

	r := Record{
		AuditVersion: firstString(raw, "audit_version", "sdb_version", "schema_version"),
		Decision:     normalizeDecision(stringField(raw, "decision")),
		ReasonCodes:  reasonCodes(raw),
		ReasonText:   firstString(raw, "reason_text", "reason", "comment"),
		Persona:      stringField(raw, "persona"),
		Phase:        Phase(stringField(raw, "phase")),
		Evidence:     stringField(raw, "evidence"),
		Location:     stringField(raw, "location"),
		Timestamp:    parseTimestamp(stringField(raw, "timestamp")),
		Agent:        stringField(raw, "agent"),
		Signature:    stringField(raw, "signature"),
	}
	if r.AuditVersion == "" {
		r.AuditVersion = V10
	}
	return r, true, nil
}

// looksLikeSDB is the pre-parse heuristic for distinguishing a broken
// record from an ordinary human note.
func looksLikeSDB(body string) bool {
	return strings.Contains(body, Action) ||
		strings.Contains(body, "audit_version") ||
		strings.Contains(body, "sdb_version")
}

func isSDB(raw map[string]any) bool {
	if v, ok := raw["action"].(string); ok && v == Action {
		return true
	}
	for _, k := range []string{"audit_version", "sdb_version", "schema_version"} {
		if _, ok := raw[k]; ok {
			return true
		}
	}
	return false
}

func stringField(raw map[string]any, key string) string {
	v, _ := raw[key].(string)
	return v
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// normalizeDecision folds the vote vocabulary of every generation into the
// canonical accepted/rejected pair.
func normalizeDecision(s string) Decision {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accepted", "accept", "include", "included":
		return DecisionAccepted
	case "rejected", "reject", "exclude", "excluded":
		return DecisionRejected
	default:
		return Decision(strings.ToLower(strings.TrimSpace(s)))
	}
}

// reasonCodes tolerates every historical spelling: reason_code as list,
// reason_code as comma-joined string, and the v1.0 "code"/"criteria"
// fields.
func reasonCodes(raw map[string]any) []string {
	for _, key := range []string{"reason_code", "reason_codes", "code", "criteria"} {
		switch v := raw[key].(type) {
		case []any:
			var codes []string
			for _, c := range v {
				if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
					codes = append(codes, strings.TrimSpace(s))
				}
			}
			if codes != nil {
				return codes
			}
		case string:
			return splitCodes(v)
		}
	}
	return nil
}

func splitCodes(s string) []string {
	var codes []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp is best-effort: legacy tools wrote a few different
// layouts, and an unreadable timestamp should not discard the decision.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
