package pipeline

import (
	"log/slog"

	"github.com/apexfin/invoice-pipeline/internal/ops"
	"github.com/apexfin/invoice-pipeline/internal/trace"
)

// recordStep validates the operation input against the stage catalog and
// appends the step to the trace. A schema mismatch is a programming error in
// the caller; it is logged, never fatal, and the step is still recorded so
// the audit trail stays complete.
func recordStep(tr *trace.Trace, cat *ops.Catalog, logger *slog.Logger, observation, rationale, op string, input map[string]any) {
	if err := cat.Validate(op, input); err != nil {
		logger.Warn("pipeline.trace.invalid_op_input", "stage", cat.Stage, "op", op, "error", err)
	}
	tr.Record(observation, rationale, op, input)
}
