package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/docproc"
	"github.com/apexfin/invoice-pipeline/internal/entity"
	"github.com/apexfin/invoice-pipeline/internal/trace"
)

// MinConfidence is the quality floor for unattended processing of an
// extracted record.
const MinConfidence = 0.6

// ExtractionStage turns a document file into an InvoiceData record.
//
// Method selection is by file extension: PDFs go through direct text
// extraction, images through recognition. If the chosen method yields no
// usable text the stage falls back to the other method exactly once.
type ExtractionStage struct {
	direct docproc.TextExtractor
	recog  docproc.TextExtractor
	fields *docproc.FieldExtractor
	logger *slog.Logger
}

func NewExtractionStage(direct, recog docproc.TextExtractor, logger *slog.Logger) *ExtractionStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionStage{
		direct: direct,
		recog:  recog,
		fields: docproc.NewFieldExtractor(),
		logger: logger,
	}
}

// Run executes the stage for one document. It never panics past its own
// boundary; unexpected errors come back as a failure output.
func (s *ExtractionStage) Run(ctx context.Context, path string) (out ExtractionOutput) {
	tr := trace.New("extraction")
	out.Trace = tr
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pipeline.extraction.panic", "document", path, "panic", r)
			out = ExtractionOutput{Trace: tr, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if path == "" {
		out.Error = "no document path provided"
		return out
	}
	if _, err := os.Stat(path); err != nil {
		out.Error = "document file not found"
		return out
	}

	ext := filepath.Ext(path)
	format := constants.MapExtToFormat(ext)
	if format == "" {
		recordStep(tr, ExtractionCatalog, s.logger,
			fmt.Sprintf("Document has unsupported extension %q", ext),
			"Only PDF and common image formats are accepted",
			"analyze_document", map[string]any{"document_path": path})
		out.Error = fmt.Sprintf("unsupported document format %q", ext)
		return out
	}

	primary, alternate := s.direct, s.recog
	if format == constants.IMAGE {
		primary, alternate = s.recog, s.direct
	}
	recordStep(tr, ExtractionCatalog, s.logger,
		fmt.Sprintf("Processing %s document", format),
		fmt.Sprintf("Selected %s method for %s input", primary.Method(), format),
		opForMethod(primary.Method()), map[string]any{"document_path": path})

	text, method, err := s.extractText(ctx, tr, path, primary, alternate)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Method = method

	recordStep(tr, ExtractionCatalog, s.logger,
		fmt.Sprintf("Obtained %d characters of text via %s", len(text), method),
		"Parse structured invoice fields from the raw text",
		"parse_invoice_fields", map[string]any{"text_length": len(text)})

	record, confidence := s.fields.Extract(text)
	out.Confidence = confidence
	if record == nil {
		out.Error = "failed to parse invoice fields from extracted text"
		return out
	}
	out.Record = record

	recordStep(tr, ExtractionCatalog, s.logger,
		fmt.Sprintf("Parsed invoice %q with confidence %.2f", record.InvoiceNumber, confidence),
		"Run the minimum-quality check before handing off",
		"validate_extraction", map[string]any{"confidence": confidence})

	out.QualityIssues = qualityIssues(record)
	out.Success = len(out.QualityIssues) == 0
	if !out.Success {
		out.Error = "extraction quality issues: " + strings.Join(out.QualityIssues, "; ")
	}
	s.logger.Info("pipeline.extraction.done",
		"document", path,
		"method", method,
		"confidence", confidence,
		"quality_ok", out.Success)
	return out
}

// extractText runs the primary extractor and falls back to the alternate
// exactly once when the primary errors or returns empty text.
func (s *ExtractionStage) extractText(ctx context.Context, tr *trace.Trace, path string, primary, alternate docproc.TextExtractor) (string, string, error) {
	res, err := primary.Extract(ctx, path)
	if err == nil && !res.Empty() {
		return res.Text, primary.Method(), nil
	}
	reason := "returned no usable text"
	if err != nil {
		reason = err.Error()
		s.logger.Warn("pipeline.extraction.primary_failed", "document", path, "method", primary.Method(), "error", err)
	}

	recordStep(tr, ExtractionCatalog, s.logger,
		fmt.Sprintf("Primary method %s failed: %s", primary.Method(), reason),
		fmt.Sprintf("Retry once with %s as fallback", alternate.Method()),
		opForMethod(alternate.Method()), map[string]any{"document_path": path})

	res, err = alternate.Extract(ctx, path)
	if err != nil {
		return "", "", fmt.Errorf("text extraction failed: %w", err)
	}
	if res.Empty() {
		return "", "", fmt.Errorf("text extraction failed: both methods returned empty text")
	}
	return res.Text, alternate.Method(), nil
}

func opForMethod(method string) string {
	if method == docproc.MethodRecognition {
		return "extract_recognition"
	}
	return "extract_direct_text"
}

// qualityIssues runs the minimum-quality check. An empty result means the
// record is good enough for unattended processing.
func qualityIssues(record *entity.InvoiceData) []string {
	var issues []string
	if strings.TrimSpace(record.VendorName) == "" {
		issues = append(issues, "missing vendor name")
	}
	if strings.TrimSpace(record.InvoiceNumber) == "" {
		issues = append(issues, "missing invoice number")
	}
	if record.Confidence < MinConfidence {
		issues = append(issues, fmt.Sprintf("confidence %.2f below threshold %.2f", record.Confidence, MinConfidence))
	}
	if record.TotalAmount <= 0 {
		issues = append(issues, "total amount is not positive")
	}
	return issues
}
