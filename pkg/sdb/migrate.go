package sdb

import (
	"strconv"
	"strings"
)

// Migrate advances a record to the latest schema generation. It is
// idempotent (Migrate(Migrate(r)) == Migrate(r)) and monotonic: versions
// are only ever raised, and a record newer than Latest is returned
// unchanged rather than downgraded.
//
// v1.0 -> v1.1: the reviewer identity moves from the free-form signature
// field (or a reviewer name parked in agent) into persona; agent collapses
// to the known tool identities; reason codes are already list-coerced at
// decode time.
//
// v1.1 -> v1.2: decisions gain a phase. Pre-phase records were all
// title/abstract screening, so that is what they become; the identity key
// widens from persona to persona+phase as a consequence.
func Migrate(r Record) Record {
	out := r

	if CompareVersions(out.AuditVersion, V11) < 0 {
		if out.Persona == "" || out.Persona == "unknown" {
			switch {
			case out.Signature != "":
				out.Persona = out.Signature
			case out.Agent != "" && !KnownAgent(out.Agent):
				out.Persona = out.Agent
			}
		}
		out.Signature = ""
		if !KnownAgent(out.Agent) {
			out.Agent = AgentCLI
		}
		out.AuditVersion = V11
	}

	if CompareVersions(out.AuditVersion, V12) < 0 {
		if out.Phase == "" {
			out.Phase = PhaseTitleAbstract
		}
		out.AuditVersion = V12
	}

	return out
}

// NeedsMigration reports whether Migrate would change the record's version.
func NeedsMigration(r Record) bool {
	return CompareVersions(r.AuditVersion, Latest) < 0
}

// CompareVersions compares two dotted schema versions numerically per
// segment, so "1.10" sorts after "1.2". Missing segments count as zero.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
