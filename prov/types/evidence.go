package types

import "time"

// TargetKind names what a piece of evidence supports
type TargetKind string

const (
	TargetClaim    TargetKind = "claim"
	TargetDecision TargetKind = "decision"
	TargetEdition  TargetKind = "edition"
)

// EvidenceTarget references what a piece of evidence supports.
// Exactly one field must be set; Arity reports how many are.
type EvidenceTarget struct {
	ClaimID    string `json:"claim_id,omitempty"`
	DecisionID string `json:"decision_id,omitempty"`
	EditionID  string `json:"edition_id,omitempty"`
}

// ClaimTarget targets a claim
func ClaimTarget(id string) EvidenceTarget { return EvidenceTarget{ClaimID: id} }

// DecisionTarget targets a decision
func DecisionTarget(id string) EvidenceTarget { return EvidenceTarget{DecisionID: id} }

// EditionTarget targets an edition
func EditionTarget(id string) EvidenceTarget { return EvidenceTarget{EditionID: id} }

// Arity counts the non-empty references
func (t EvidenceTarget) Arity() int {
	n := 0
	for _, id := range []string{t.ClaimID, t.DecisionID, t.EditionID} {
		if id != "" {
			n++
		}
	}
	return n
}

// Resolve returns the kind and id of a single-target reference.
// ok is false unless exactly one reference is set.
func (t EvidenceTarget) Resolve() (kind TargetKind, id string, ok bool) {
	if t.Arity() != 1 {
		return "", "", false
	}
	switch {
	case t.ClaimID != "":
		return TargetClaim, t.ClaimID, true
	case t.DecisionID != "":
		return TargetDecision, t.DecisionID, true
	default:
		return TargetEdition, t.EditionID, true
	}
}

// Evidence supports one specific claim, decision or edition
type Evidence struct {
	ID           string         `db:"id" json:"id"`
	Target       EvidenceTarget `db:"-" json:"target"`
	EvidenceType string         `db:"evidence_type" json:"evidence_type"`
	EvidenceRef  string         `db:"evidence_ref" json:"evidence_ref"`
	AddedBy      string         `db:"added_by" json:"added_by"`
	Note         string         `db:"note" json:"note,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// EvidenceInput is the input to AttachEvidence
type EvidenceInput struct {
	Target       EvidenceTarget `json:"target"`
	EvidenceType string         `json:"evidence_type" validate:"required"`
	EvidenceRef  string         `json:"evidence_ref" validate:"required"`
	AddedBy      string         `json:"added_by" validate:"required"`
	Note         string         `json:"note,omitempty"`
}
