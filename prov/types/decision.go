package types

import "time"

// DecisionMethod records how a decision was reached
type DecisionMethod string

const (
	MethodEditorial     DecisionMethod = "editorial"
	MethodVote          DecisionMethod = "vote"
	MethodAlgorithm     DecisionMethod = "algorithm"
	MethodImportDefault DecisionMethod = "import_default"
)

// Valid reports whether m is a known method
func (m DecisionMethod) Valid() bool {
	switch m {
	case MethodEditorial, MethodVote, MethodAlgorithm, MethodImportDefault:
		return true
	default:
		return false
	}
}

// SelectorActor is the decided_by value of implicit algorithmic decisions
const SelectorActor = "consensus-selector"

// Decision is an append-only audit entry choosing the current claim.
// The active decision for a Subject+Kind is the one nothing supersedes yet.
type Decision struct {
	ID            string         `db:"id" json:"id"`
	Subject       Subject        `db:"subject" json:"subject"`
	Kind          Kind           `db:"kind" json:"kind"`
	ChosenClaimID string         `db:"chosen_claim_id" json:"chosen_claim_id"`
	DecidedBy     string         `db:"decided_by" json:"decided_by"`
	Method        DecisionMethod `db:"method" json:"method"`
	Rationale     string         `db:"rationale" json:"rationale,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	SupersedesID  string         `db:"supersedes_id" json:"supersedes_id,omitempty"`
}

// DecisionRequest is the input to RecordDecision. BaseDecisionID is the active
// decision the caller read; empty means the caller believes none exists yet.
type DecisionRequest struct {
	Subject        Subject        `json:"subject" validate:"required"`
	Kind           Kind           `json:"kind" validate:"required,oneof=reading lemmatization translation edition bibliographic"`
	ChosenClaimID  string         `json:"chosen_claim_id" validate:"required"`
	DecidedBy      string         `json:"decided_by" validate:"required"`
	Method         DecisionMethod `json:"method" validate:"required,oneof=editorial vote algorithm import_default"`
	Rationale      string         `json:"rationale,omitempty"`
	BaseDecisionID string         `json:"base_decision_id,omitempty"`
}
