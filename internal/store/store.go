// Package store persists processed invoices and serves the read-mostly
// reference data the validation stage consults. The pipeline depends only on
// the interfaces here; MemoryStore backs tests and demos, SQLStore backs
// real deployments.
package store

import (
	"context"
	"time"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/entity"
)

// InvoiceRecord is the flattened row kept for every processed invoice.
type InvoiceRecord struct {
	ID            string
	DocumentPath  string
	VendorName    string
	InvoiceNumber string
	InvoiceDate   time.Time
	DueDate       *time.Time
	Subtotal      float64
	TaxAmount     float64
	TotalAmount   float64
	Currency      string
	PONumber      string
	Status        constants.InvoiceStatus
	Level         constants.ApprovalLevel
	Priority      constants.Priority
	AssignedTo    string
	ElapsedMS     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Stats summarizes the processed population.
type Stats struct {
	TotalInvoices int64
	ByStatus      map[string]int64
	TotalAmount   float64
	AvgElapsedMS  float64
}

// InvoiceStore is the system of record for pipeline output.
type InvoiceStore interface {
	// SaveResult persists one processing result, replacing any prior row
	// with the same invoice ID.
	SaveResult(ctx context.Context, res *entity.ProcessingResult) error
	// Get returns the record for an invoice ID, or common.ErrNotFound.
	Get(ctx context.Context, id string) (*InvoiceRecord, error)
	// List returns records, newest first, optionally filtered by status.
	// limit <= 0 means no limit.
	List(ctx context.Context, status constants.InvoiceStatus, limit int) ([]InvoiceRecord, error)
	// ListSince returns records processed at or after the given time,
	// for duplicate scanning. A zero time returns everything.
	ListSince(ctx context.Context, since time.Time) ([]InvoiceRecord, error)
	// UpdateStatus moves an invoice to a new lifecycle status.
	UpdateStatus(ctx context.Context, id string, status constants.InvoiceStatus) error
	// Statistics summarizes the processed population.
	Statistics(ctx context.Context) (Stats, error)
}

// ReferenceStore serves purchase orders for 3-way matching. Read-only to the
// pipeline.
type ReferenceStore interface {
	// GetPurchaseOrder returns the PO with the given number (case-insensitive),
	// or common.ErrNotFound.
	GetPurchaseOrder(ctx context.Context, poNumber string) (*entity.PurchaseOrder, error)
	// ListPurchaseOrders returns all purchase orders.
	ListPurchaseOrders(ctx context.Context) ([]entity.PurchaseOrder, error)
}

// Store combines both roles; the SQL and memory implementations satisfy it.
type Store interface {
	InvoiceStore
	ReferenceStore
}

// NewRecord flattens a processing result into a storable record.
func NewRecord(res *entity.ProcessingResult, now time.Time) InvoiceRecord {
	rec := InvoiceRecord{
		ID:           res.InvoiceID,
		DocumentPath: res.DocumentPath,
		Status:       res.Status,
		ElapsedMS:    res.ElapsedMS,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if d := res.Data; d != nil {
		rec.VendorName = d.VendorName
		rec.InvoiceNumber = d.InvoiceNumber
		rec.InvoiceDate = d.InvoiceDate
		rec.DueDate = d.DueDate
		rec.Subtotal = d.Subtotal
		rec.TaxAmount = d.TaxAmount
		rec.TotalAmount = d.TotalAmount
		rec.Currency = d.Currency
		rec.PONumber = d.PONumber
	}
	if a := res.Approval; a != nil {
		rec.Level = a.Level
		rec.Priority = a.Priority
		rec.AssignedTo = a.AssignedTo
	}
	return rec
}
