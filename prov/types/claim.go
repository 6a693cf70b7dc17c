package types

import "time"

// Claim is one candidate answer for a Subject+Kind. Claims are immutable:
// corrections are new claims. IsConsensus is derived on read, never stored by callers.
type Claim struct {
	ID              string    `db:"id" json:"id"`
	Subject         Subject   `db:"subject" json:"subject"`
	Kind            Kind      `db:"kind" json:"kind"`
	Value           string    `db:"value" json:"value"`
	Confidence      float64   `db:"confidence" json:"confidence"`
	AnnotationRunID string    `db:"annotation_run_id" json:"annotation_run_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	IsConsensus     bool      `db:"-" json:"is_consensus"`

	// SourceType is joined from the producing run; the selector ranks on it.
	SourceType SourceType `db:"-" json:"source_type,omitempty"`
}

// ClaimInput is the input to SubmitClaim
type ClaimInput struct {
	Subject    Subject `json:"subject" validate:"required"`
	Kind       Kind    `json:"kind" validate:"required,oneof=reading lemmatization translation edition bibliographic"`
	Value      string  `json:"value" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	RunID      string  `json:"run_id" validate:"required"`
}
