package prov

import (
	"context"
	"database/sql"

	"github.com/teranos/provenance/prov/types"
)

// RunRegistry records who or what produced a batch of claims
type RunRegistry interface {
	// BeginRun creates an immutable run and returns its id
	BeginRun(ctx context.Context, spec types.RunSpec) (string, error)

	// CompleteRun stamps completion time. A negative rowCount keeps the tallied count.
	CompleteRun(ctx context.Context, runID string, rowCount int) error

	GetRun(ctx context.Context, runID string) (*types.AnnotationRun, error)
	ListRuns(ctx context.Context, limit int) ([]*types.AnnotationRun, error)
}

// ClaimStore holds competing candidate answers
type ClaimStore interface {
	// SubmitClaim never rejects a claim for disagreeing with existing ones
	SubmitClaim(ctx context.Context, in types.ClaimInput) (string, error)

	// SubmitClaims writes a batch in one transaction. Invalid rows are tallied
	// in the result and skipped; any other failure rolls the whole batch back.
	SubmitClaims(ctx context.Context, inputs []types.ClaimInput, opts BatchOptions) (*BatchResult, error)

	GetClaim(ctx context.Context, claimID string) (*types.Claim, error)
	ListClaims(ctx context.Context, subject types.Subject, kind types.Kind) ([]types.Claim, error)
}

// ConsensusSelector exposes the current answer per Subject+Kind
type ConsensusSelector interface {
	// SelectConsensus computes the current claim from the claim set and the active decision
	SelectConsensus(ctx context.Context, subject types.Subject, kind types.Kind) (*types.Claim, error)

	// GetConsensus reads the materialized current claim
	GetConsensus(ctx context.Context, subject types.Subject, kind types.Kind) (*types.Claim, error)

	// RefreshConsensus re-materializes one subject; idempotent
	RefreshConsensus(ctx context.Context, subject types.Subject, kind types.Kind) error

	// RecomputeConsensus re-materializes every subject and returns how many changed
	RecomputeConsensus(ctx context.Context) (int, error)
}

// DecisionLog is the append-only audit journal of consensus overrides
type DecisionLog interface {
	// RecordDecision fails with a ConflictError when req.BaseDecisionID is not
	// the active decision.
	RecordDecision(ctx context.Context, req types.DecisionRequest) (string, error)

	GetActiveDecision(ctx context.Context, subject types.Subject, kind types.Kind) (*types.Decision, error)

	// GetHistory returns the chain oldest to newest
	GetHistory(ctx context.Context, subject types.Subject, kind types.Kind) ([]types.Decision, error)
}

// EvidenceLinker attaches citations to exactly one claim, decision or edition
type EvidenceLinker interface {
	AttachEvidence(ctx context.Context, in types.EvidenceInput) (string, error)
	ListEvidence(ctx context.Context, target types.EvidenceTarget) ([]types.Evidence, error)
}

// Engine is the full provenance surface
type Engine interface {
	RunRegistry
	ClaimStore
	ConsensusSelector
	DecisionLog
	EvidenceLinker
}

// BatchOptions controls SubmitClaims
type BatchOptions struct {
	// DeferConsensus skips per-batch consensus refresh; a later
	// RecomputeConsensus pass converges the materialized state.
	DeferConsensus bool

	// BeforeCommit runs inside the batch transaction after the claims are
	// written, e.g. to persist a resume checkpoint atomically with them.
	BeforeCommit func(ctx context.Context, tx *sql.Tx) error
}

// RowError describes one rejected row of a batch
type RowError struct {
	Row      int    `json:"row"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// BatchResult contains the results of a batch persistence operation
type BatchResult struct {
	Processed int        `json:"processed"`
	Inserted  int        `json:"inserted"`
	Skipped   int        `json:"skipped"`
	Failed    int        `json:"errors"`
	Errors    []RowError `json:"error_rows,omitempty"`
	ClaimIDs  []string   `json:"claim_ids,omitempty"`
}

// Add folds another result into r
func (r *BatchResult) Add(other *BatchResult) {
	if other == nil {
		return
	}
	r.Processed += other.Processed
	r.Inserted += other.Inserted
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// ErrorsByCategory tallies row errors by taxonomy label
func (r BatchResult) ErrorsByCategory() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Errors {
		counts[e.Category]++
	}
	return counts
}
