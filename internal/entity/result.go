package entity

import (
	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/trace"
)

// ProcessingResult is the orchestrator's composed output for one document.
// A failed document still yields a complete result object: Success=false,
// Status=exception, Errors populated, partial payloads kept for inspection.
type ProcessingResult struct {
	InvoiceID    string                  `json:"invoice_id"`
	DocumentPath string                  `json:"document_path"`
	Success      bool                    `json:"success"`
	Status       constants.InvoiceStatus `json:"status"`
	Data         *InvoiceData            `json:"invoice_data,omitempty"`
	Verdict      *Verdict                `json:"validation,omitempty"`
	Approval     *ApprovalRequest        `json:"approval,omitempty"`
	Routes       []ExceptionRoute        `json:"exception_routes,omitempty"`
	ElapsedMS    int64                   `json:"processing_time_ms"`
	Steps        []string                `json:"steps,omitempty"`
	Traces       []*trace.Trace          `json:"traces,omitempty"`
	Errors       []string                `json:"errors,omitempty"`
}

// PurchaseOrder is the external reference record used for 3-way matching.
// Read-only to the pipeline; supplied by the reference store.
type PurchaseOrder struct {
	PONumber    string  `json:"po_number"`
	VendorName  string  `json:"vendor_name"`
	TotalAmount float64 `json:"total_amount"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
	CreatedDate string  `json:"created_date"`
}
