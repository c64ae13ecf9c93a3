package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/common"
	"github.com/apexfin/invoice-pipeline/internal/entity"
	"github.com/apexfin/invoice-pipeline/internal/store"
)

// ProcessorConfig tunes the orchestrator.
type ProcessorConfig struct {
	// Concurrency caps the number of documents processed in parallel during
	// batch runs. Zero means the default.
	Concurrency int
}

const defaultConcurrency = 4

// Processor sequences extraction, validation and routing for one document
// and fans out batches. Results are persisted when a store is wired in;
// persistence failures are logged, never fatal to the pipeline.
type Processor struct {
	extraction  *ExtractionStage
	validation  *ValidationStage
	routing     *RoutingStage
	invoices    store.InvoiceStore
	metrics     *Metrics
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// NewProcessor wires the three stages together. invoices may be nil to skip
// persistence.
func NewProcessor(extraction *ExtractionStage, validation *ValidationStage, routing *RoutingStage, invoices store.InvoiceStore, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Processor{
		extraction:  extraction,
		validation:  validation,
		routing:     routing,
		invoices:    invoices,
		metrics:     &Metrics{},
		concurrency: cfg.Concurrency,
		logger:      logger,
		now:         time.Now,
		newID:       func() string { return uuid.NewString()[:8] },
	}
}

// Metrics returns a snapshot of the running counters.
func (p *Processor) Metrics() MetricsSnapshot {
	return p.metrics.Snapshot()
}

// ProcessDocument runs one document through the full pipeline. It always
// returns a complete, inspectable result; a failed document carries status
// exception and a populated error list.
func (p *Processor) ProcessDocument(ctx context.Context, path string) *entity.ProcessingResult {
	start := p.now()
	ctx = common.WithDocument(ctx, path)
	result := &entity.ProcessingResult{
		InvoiceID:    p.newID(),
		DocumentPath: path,
		Status:       constants.StatusReceived,
	}
	p.logger.Info("pipeline.process.start",
		"invoice_id", result.InvoiceID,
		"document", path,
		"request_id", common.RequestIDFromContext(ctx))

	exOut := p.extraction.Run(ctx, path)
	result.Steps = append(result.Steps, "extraction")
	result.Traces = append(result.Traces, exOut.Trace)
	result.Data = exOut.Record
	if !exOut.Success {
		// Extraction failure short-circuits; validation and routing are skipped.
		result.Errors = append(result.Errors, "extraction failed: "+exOut.Error)
		return p.finish(ctx, result, start, false)
	}
	result.Status = constants.StatusExtracted

	valOut := p.validation.Run(ctx, result.InvoiceID, exOut.Record)
	result.Steps = append(result.Steps, "validation")
	result.Traces = append(result.Traces, valOut.Trace)
	result.Verdict = valOut.Verdict
	if valOut.Error != "" {
		result.Errors = append(result.Errors, "validation failed: "+valOut.Error)
	} else {
		result.Status = constants.StatusValidated
	}

	rtOut := p.routing.Run(ctx, result.InvoiceID, exOut.Record, valOut.Verdict)
	result.Steps = append(result.Steps, "routing")
	result.Traces = append(result.Traces, rtOut.Trace)
	result.Approval = rtOut.Request
	result.Routes = rtOut.Routes
	if rtOut.Error != "" {
		result.Errors = append(result.Errors, "routing failed: "+rtOut.Error)
	}

	success := valOut.Error == "" && rtOut.Error == ""
	return p.finish(ctx, result, start, success)
}

// finish derives the final status, records metrics and persists the result.
func (p *Processor) finish(ctx context.Context, result *entity.ProcessingResult, start time.Time, success bool) *entity.ProcessingResult {
	result.Success = success
	result.ElapsedMS = p.now().Sub(start).Milliseconds()

	switch {
	case !success:
		result.Status = constants.StatusException
	case result.Approval != nil && result.Approval.Status == constants.StatusApproved:
		result.Status = constants.StatusApproved
	case result.Approval != nil:
		result.Status = constants.StatusPendingApproval
	default:
		result.Status = constants.StatusException
	}

	p.metrics.record(&resultSummary{
		success:   result.Success,
		approved:  result.Status == constants.StatusApproved,
		pending:   result.Status == constants.StatusPendingApproval,
		elapsedMS: result.ElapsedMS,
	})

	if p.invoices != nil {
		if err := p.invoices.SaveResult(ctx, result); err != nil {
			p.logger.Error("pipeline.process.save_failed", "invoice_id", result.InvoiceID, "error", err)
		}
	}

	p.logger.Info("pipeline.process.done",
		"invoice_id", result.InvoiceID,
		"status", result.Status,
		"success", result.Success,
		"elapsed_ms", result.ElapsedMS,
		"errors", len(result.Errors))
	return result
}

// ProcessBatch fans out the documents concurrently, up to the configured
// limit. The returned slice preserves input order; one document's failure
// never aborts the batch. Cancelling the context stops spawning new
// pipelines; slots never started come back as exception results.
func (p *Processor) ProcessBatch(ctx context.Context, paths []string) []*entity.ProcessingResult {
	results := make([]*entity.ProcessingResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("pipeline.batch.panic", "document", path, "panic", r)
					results[i] = p.exceptionResult(path, fmt.Sprintf("internal error: %v", r))
				}
			}()
			results[i] = p.ProcessDocument(gctx, path)
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if res == nil {
			results[i] = p.exceptionResult(paths[i], "batch cancelled before processing")
		}
	}
	return results
}

func (p *Processor) exceptionResult(path, errMsg string) *entity.ProcessingResult {
	return &entity.ProcessingResult{
		InvoiceID:    p.newID(),
		DocumentPath: path,
		Status:       constants.StatusException,
		Errors:       []string{errMsg},
	}
}
