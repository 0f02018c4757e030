package logging

import (
	"context"
	"log/slog"

	"musicsync/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. catalog_opened).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldErrorKind carries the classified failure kind (device, storage, ...).
	FieldErrorKind = "error_kind"
	// FieldRunID identifies one sync session.
	FieldRunID = "run_id"
	// FieldPhase names the session phase (list, reconcile, execute).
	FieldPhase = "phase"
	// FieldSourcePath is the catalog key of a source file.
	FieldSourcePath = "source_path"
	// FieldTargetPath is the path of a file on the target store.
	FieldTargetPath = "target_path"
	// FieldOperation is the operation kind (copy, transcode, delete).
	FieldOperation = "operation"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if phase, ok := services.PhaseFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPhase, phase))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
