package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Components
	FieldComponent = "component"

	// Operations
	FieldMethod     = "method"
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"
	FieldAlert = "alert"

	// Counts and sizes
	FieldCount     = "count"
	FieldBatchSize = "batch_size"

	// Provenance
	FieldRunID         = "run_id"
	FieldClaimID       = "claim_id"
	FieldDecisionID    = "decision_id"
	FieldEvidenceID    = "evidence_id"
	FieldSubject       = "subject"
	FieldKind          = "kind"
	FieldSourceType    = "source_type"
	FieldSourceName    = "source_name"
	FieldPublicationID = "publication_id"
	FieldEditionID     = "edition_id"
	FieldArtifactID    = "artifact_id"
	FieldCandidateID   = "candidate_id"
	FieldConfidence    = "confidence"
	FieldTier          = "tier"

	// Ingest
	FieldSource      = "source"
	FieldStage       = "stage"
	FieldBatchOffset = "batch_offset"
)

// AlertDataIntegrity tags integrity-violation log lines
const AlertDataIntegrity = "data_integrity"

// Context keys for propagating logging context
type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	sourceKey    contextKey = "logger_source"
	componentKey contextKey = "logger_component"
)

// WithRunID adds an annotation run id to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithSource adds an ingest source name to the context for logging
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if source, ok := ctx.Value(sourceKey).(string); ok && source != "" {
		fields = append(fields, FieldSource, source)
	}
	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext decorates log with the fields carried by ctx.
// A nil log falls back to the global Logger.
func FromContext(ctx context.Context, log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		log = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	store := storage.NewSQLStore(db, logger.ComponentLogger("storage"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrNop returns log, or a no-op logger when log is nil.
// Constructors use it so components can be built without a logger in tests.
func OrNop(log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}
