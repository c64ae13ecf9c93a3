package pipeline

import "github.com/apexfin/invoice-pipeline/internal/ops"

// Operation catalogs, one per stage. Dispatch inside the stages is plain
// method calls; the catalogs validate trace inputs and describe the
// available operations to the outer surface.

// ExtractionCatalog lists the extraction stage's operations.
var ExtractionCatalog = ops.MustCatalog("extraction",
	ops.Spec{
		Name:        "analyze_document",
		Description: "Inspect the document path and select an extraction method",
		Params: map[string]ops.Param{
			"document_path": {Type: "string", Description: "Path to the document"},
		},
		Required: []string{"document_path"},
	},
	ops.Spec{
		Name:        "extract_direct_text",
		Description: "Extract embedded text directly from a PDF document",
		Params: map[string]ops.Param{
			"document_path": {Type: "string", Description: "Path to the document"},
		},
		Required: []string{"document_path"},
	},
	ops.Spec{
		Name:        "extract_recognition",
		Description: "Extract text by rendering the document and running character recognition",
		Params: map[string]ops.Param{
			"document_path": {Type: "string", Description: "Path to the document"},
		},
		Required: []string{"document_path"},
	},
	ops.Spec{
		Name:        "parse_invoice_fields",
		Description: "Parse structured invoice fields from raw text",
		Params: map[string]ops.Param{
			"text_length": {Type: "integer", Description: "Length of the raw text"},
		},
		Required: []string{"text_length"},
	},
	ops.Spec{
		Name:        "validate_extraction",
		Description: "Run the minimum-quality check on the parsed record",
		Params: map[string]ops.Param{
			"confidence": {Type: "number", Description: "Extraction confidence score"},
		},
		Required: []string{"confidence"},
	},
)

// ValidationCatalog lists the six business-rule checks.
var ValidationCatalog = ops.MustCatalog("validation",
	ops.Spec{
		Name:        "validate_required_fields",
		Description: "Check that all required invoice fields are present",
		Params: map[string]ops.Param{
			"invoice_number": {Type: "string", Description: "Invoice number under validation"},
		},
		Required: []string{"invoice_number"},
	},
	ops.Spec{
		Name:        "validate_amounts",
		Description: "Validate subtotal, tax and total amounts",
		Params: map[string]ops.Param{
			"total_amount": {Type: "number", Description: "Invoice total amount"},
		},
		Required: []string{"total_amount"},
	},
	ops.Spec{
		Name:        "validate_dates",
		Description: "Validate that invoice dates are reasonable and not in the future",
		Params: map[string]ops.Param{
			"invoice_date": {Type: "string", Description: "Invoice issue date"},
			"due_date":     {Type: "string", Description: "Due date, if present"},
		},
		Required: []string{"invoice_date"},
	},
	ops.Spec{
		Name:        "verify_vendor",
		Description: "Check the vendor against the approved vendor list",
		Params: map[string]ops.Param{
			"vendor_name": {Type: "string", Description: "Vendor name to verify"},
		},
		Required: []string{"vendor_name"},
	},
	ops.Spec{
		Name:        "check_duplicate",
		Description: "Scan previously processed invoices for duplicates",
		Params: map[string]ops.Param{
			"vendor_name":    {Type: "string", Description: "Vendor name"},
			"invoice_number": {Type: "string", Description: "Invoice number"},
			"amount":         {Type: "number", Description: "Invoice amount"},
		},
		Required: []string{"vendor_name", "invoice_number", "amount"},
	},
	ops.Spec{
		Name:        "match_purchase_order",
		Description: "Match the invoice to a purchase order (3-way match)",
		Params: map[string]ops.Param{
			"po_number":   {Type: "string", Description: "PO number from the invoice"},
			"vendor_name": {Type: "string", Description: "Vendor name"},
			"amount":      {Type: "number", Description: "Invoice amount"},
		},
		Required: []string{"vendor_name", "amount"},
	},
)

// RoutingCatalog lists the routing stage's operations.
var RoutingCatalog = ops.MustCatalog("routing",
	ops.Spec{
		Name:        "check_auto_approval_eligibility",
		Description: "Check whether the invoice qualifies for automatic approval",
		Params: map[string]ops.Param{
			"amount":            {Type: "number", Description: "Invoice amount"},
			"validation_status": {Type: "string", Description: "Overall validation status"},
		},
		Required: []string{"amount", "validation_status"},
	},
	ops.Spec{
		Name:        "determine_approval_level",
		Description: "Determine the required approval level from the amount",
		Params: map[string]ops.Param{
			"amount":   {Type: "number", Description: "Invoice amount"},
			"currency": {Type: "string", Description: "Currency code"},
		},
		Required: []string{"amount"},
	},
	ops.Spec{
		Name:        "route_exception",
		Description: "Route an exception tag to its handling team",
		Params: map[string]ops.Param{
			"exception_type": {Type: "string", Description: "Exception tag"},
		},
		Required: []string{"exception_type"},
	},
	ops.Spec{
		Name:        "calculate_sla",
		Description: "Calculate the SLA deadline and priority",
		Params: map[string]ops.Param{
			"amount":       {Type: "number", Description: "Invoice amount"},
			"has_discount": {Type: "boolean", Description: "Whether an early-payment discount applies"},
		},
		Required: []string{"amount"},
	},
	ops.Spec{
		Name:        "assign_approver",
		Description: "Assign the approver for the determined level",
		Params: map[string]ops.Param{
			"approval_level": {Type: "string", Description: "Required approval level"},
		},
		Required: []string{"approval_level"},
	},
	ops.Spec{
		Name:        "create_approval_request",
		Description: "Assemble the final approval request",
		Params: map[string]ops.Param{
			"approval_level": {Type: "string", Description: "Approval level"},
			"priority":       {Type: "string", Description: "SLA priority"},
		},
		Required: []string{"approval_level"},
	},
)
