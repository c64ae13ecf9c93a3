// Package pipeline implements the three-stage invoice decision pipeline:
// extraction, validation and routing, plus the orchestrator that sequences
// them per document and fans out batches.
//
// Every stage is total: it always returns an output value carrying a success
// flag, an optional payload, the stage's decision trace and an optional error
// message. Stage functions never panic past their own boundary.
package pipeline

import (
	"github.com/apexfin/invoice-pipeline/internal/entity"
	"github.com/apexfin/invoice-pipeline/internal/trace"
)

// ExtractionOutput is the extraction stage's result. Success reflects the
// minimum-quality check; a low-quality record is still returned so callers
// can inspect what was extracted.
type ExtractionOutput struct {
	Success       bool                `json:"success"`
	Record        *entity.InvoiceData `json:"invoice_data,omitempty"`
	Confidence    float64             `json:"confidence"`
	Method        string              `json:"extraction_method,omitempty"`
	QualityIssues []string            `json:"quality_issues,omitempty"`
	Trace         *trace.Trace        `json:"trace,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// ValidationOutput is the validation stage's result. Success means the
// overall verdict is not failed; the verdict itself is always present when
// a record was supplied.
type ValidationOutput struct {
	Success bool            `json:"success"`
	Verdict *entity.Verdict `json:"verdict,omitempty"`
	Trace   *trace.Trace    `json:"trace,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RoutingOutput is the routing stage's result.
type RoutingOutput struct {
	Success      bool                    `json:"success"`
	Request      *entity.ApprovalRequest `json:"approval_request,omitempty"`
	Assignment   *entity.Assignment      `json:"assignment,omitempty"`
	SLA          *entity.SLA             `json:"sla,omitempty"`
	Routes       []entity.ExceptionRoute `json:"exception_routes,omitempty"`
	AutoEligible bool                    `json:"eligible_for_auto_approval"`
	Trace        *trace.Trace            `json:"trace,omitempty"`
	Error        string                  `json:"error,omitempty"`
}
