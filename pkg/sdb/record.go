// Package sdb implements the Standardized Decision Block: the structured
// audit record that screening tools embed in the reference store's note
// bodies. It owns the wire format, schema-version compatibility and
// migration across the three record generations (v1.0, v1.1, v1.2).
package sdb

import (
	"fmt"
	"time"
)

// Decision is the screening outcome for one item, one reviewer, one phase.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// Phase is the review stage a decision belongs to.
type Phase string

const (
	PhaseTitleAbstract Phase = "title_abstract"
	PhaseFullText      Phase = "full_text"
)

// Schema generations. Migration always advances toward Latest and never
// downgrades; records newer than Latest pass through untouched.
const (
	V10 = "1.0"
	V11 = "1.1"
	V12 = "1.2"

	Latest = V12
)

// Action is the discriminator value marking a note body as a screening
// record rather than an arbitrary human note.
const Action = "screening_decision"

// Known tool identities for the agent field. Anything else found in agent
// is treated as a reviewer name that leaked into the wrong field (a v1.0
// habit) and is moved to persona during migration.
const (
	AgentCLI       = "sieve"
	AgentTUI       = "sieve-tui"
	AgentAutomated = "sieve-agent"
)

// KnownAgent reports whether s is one of the recognized tool identities.
func KnownAgent(s string) bool {
	return s == AgentCLI || s == AgentTUI || s == AgentAutomated
}

// Identity is the uniqueness key of a record: at most one live record per
// (item, persona, phase). The item key lives outside the record, on the
// owning note's parent.
type Identity struct {
	Persona string
	Phase   Phase
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s", id.Persona, id.Phase)
}

// Record is one reviewer's screening decision for one item and phase.
// Signature only survives on undecoded v1.0 records; migration folds it
// into Persona and clears it.
type Record struct {
	AuditVersion string    `json:"audit_version"`
	Decision     Decision  `json:"decision"`
	ReasonCodes  []string  `json:"reason_code,omitempty"`
	ReasonText   string    `json:"reason_text,omitempty"`
	Persona      string    `json:"persona"`
	Phase        Phase     `json:"phase,omitempty"`
	Evidence     string    `json:"evidence,omitempty"`
	Location     string    `json:"location,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Agent        string    `json:"agent,omitempty"`
	Signature    string    `json:"signature,omitempty"`
}

// Identity returns the record's uniqueness key. Records older than v1.2
// have no phase; they scope to persona only and migration pins them to
// title_abstract.
func (r Record) Identity() Identity {
	return Identity{Persona: r.Persona, Phase: r.Phase}
}

// Validate checks the invariants a record must satisfy before encoding.
func (r Record) Validate() error {
	switch r.Decision {
	case DecisionAccepted, DecisionRejected:
	default:
		return fmt.Errorf("invalid decision %q", r.Decision)
	}
	if r.Decision == DecisionRejected && len(r.ReasonCodes) == 0 {
		return fmt.Errorf("rejected decision requires at least one reason code")
	}
	if r.Persona == "" {
		return fmt.Errorf("persona is required")
	}
	if r.Evidence != "" && r.Phase != PhaseFullText {
		return fmt.Errorf("evidence is only valid for phase %s", PhaseFullText)
	}
	return nil
}
