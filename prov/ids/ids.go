// Package ids generates prefixed random identifiers for engine records.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Prefixes identify the record type of an id at a glance
const (
	PrefixRun         = "run"
	PrefixClaim       = "clm"
	PrefixDecision    = "dec"
	PrefixEvidence    = "evd"
	PrefixPublication = "pub"
	PrefixEdition     = "edn"
	PrefixCandidate   = "ddc"
	PrefixScholar     = "sch"
)

// New returns prefix_<32 hex chars>
func New(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HasPrefix reports whether id was generated with prefix
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_")
}

func Run() string         { return New(PrefixRun) }
func Claim() string       { return New(PrefixClaim) }
func Decision() string    { return New(PrefixDecision) }
func Evidence() string    { return New(PrefixEvidence) }
func Publication() string { return New(PrefixPublication) }
func Edition() string     { return New(PrefixEdition) }
func Candidate() string   { return New(PrefixCandidate) }
func Scholar() string     { return New(PrefixScholar) }
