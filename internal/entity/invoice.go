package entity

import (
	"time"

	"github.com/apexfin/invoice-pipeline/constants"
)

// LineItem is one line on an invoice.
type LineItem struct {
	LineNumber  int     `json:"line_number"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
	TaxAmount   float64 `json:"tax_amount,omitempty"`
	PORef       string  `json:"po_line_reference,omitempty"`
}

// InvoiceData is the structured record produced by field extraction.
// TotalAmount must be strictly positive for the record to be usable;
// subtotal and tax are advisory.
type InvoiceData struct {
	VendorName    string     `json:"vendor_name"`
	InvoiceNumber string     `json:"invoice_number"`
	InvoiceDate   time.Time  `json:"invoice_date"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	PaymentTerms  string     `json:"payment_terms,omitempty"`
	PONumber      string     `json:"po_number,omitempty"`
	Subtotal      float64    `json:"subtotal"`
	TaxAmount     float64    `json:"tax_amount"`
	TotalAmount   float64    `json:"total_amount"`
	Currency      string     `json:"currency"`
	LineItems     []LineItem `json:"line_items,omitempty"`
	Confidence    float64    `json:"extraction_confidence"`
	RawText       string     `json:"raw_text,omitempty"`
}

// Invoice is the full entity with processing state, as persisted.
type Invoice struct {
	ID           string                  `json:"id"`
	DocumentPath string                  `json:"document_path"`
	Data         *InvoiceData            `json:"data,omitempty"`
	Status       constants.InvoiceStatus `json:"status"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}
