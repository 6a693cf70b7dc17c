package types

import (
	"encoding/json"
	"time"
)

// SourceType classifies who or what produced a batch of claims.
type SourceType string

const (
	SourceHuman  SourceType = "human"
	SourceModel  SourceType = "model"
	SourceHybrid SourceType = "hybrid"
	SourceImport SourceType = "import"
)

// Valid reports whether s is a known source type
func (s SourceType) Valid() bool {
	switch s {
	case SourceHuman, SourceModel, SourceHybrid, SourceImport:
		return true
	default:
		return false
	}
}

// AnnotationRun records who or what produced a batch of claims and how.
// Runs are immutable; CompletedAt and RowCount are observability stamps only.
type AnnotationRun struct {
	ID             string          `db:"id" json:"id"`
	SourceType     SourceType      `db:"source_type" json:"source_type" validate:"required,oneof=human model hybrid import"`
	SourceName     string          `db:"source_name" json:"source_name" validate:"required"`
	Method         string          `db:"method" json:"method" validate:"required"`
	ScholarID      string          `db:"scholar_id" json:"scholar_id,omitempty"`
	PublicationID  string          `db:"publication_id" json:"publication_id,omitempty"`
	ConfigSnapshot json.RawMessage `db:"config_snapshot" json:"config_snapshot,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	RowCount       int             `db:"row_count" json:"row_count"`
}

// RunSpec is the input to BeginRun
type RunSpec struct {
	SourceType    SourceType     `json:"source_type" validate:"required,oneof=human model hybrid import"`
	SourceName    string         `json:"source_name" validate:"required"`
	Method        string         `json:"method" validate:"required"`
	ScholarID     string         `json:"scholar_id,omitempty"`
	PublicationID string         `json:"publication_id,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
}
