package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/common"
	"github.com/apexfin/invoice-pipeline/internal/entity"
)

// MemoryStore is an in-memory Store guarded by a mutex. It ships seeded with
// a small purchase-order book so the pipeline is usable out of the box.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]InvoiceRecord
	pos     []entity.PurchaseOrder
	now     func() time.Time
}

// NewMemoryStore returns an empty store seeded with sample purchase orders.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]InvoiceRecord),
		pos:     samplePurchaseOrders(),
		now:     time.Now,
	}
}

func samplePurchaseOrders() []entity.PurchaseOrder {
	return []entity.PurchaseOrder{
		{PONumber: "PO-2024-001", VendorName: "ACME Corporation", TotalAmount: 4500.00, Currency: "USD", Status: "open", CreatedDate: "2024-01-15"},
		{PONumber: "PO-2024-002", VendorName: "TechSupply Inc", TotalAmount: 12750.00, Currency: "USD", Status: "open", CreatedDate: "2024-02-20"},
		{PONumber: "PO-2024-003", VendorName: "Office Solutions Ltd", TotalAmount: 850.00, Currency: "USD", Status: "open", CreatedDate: "2024-03-05"},
	}
}

func (s *MemoryStore) SaveResult(ctx context.Context, res *entity.ProcessingResult) error {
	if res == nil || res.InvoiceID == "" {
		return common.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := NewRecord(res, s.now().UTC())
	if prev, ok := s.records[res.InvoiceID]; ok {
		rec.CreatedAt = prev.CreatedAt
	}
	s.records[res.InvoiceID] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) List(ctx context.Context, status constants.InvoiceStatus, limit int) ([]InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InvoiceRecord, 0, len(s.records))
	for _, rec := range s.records {
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListSince(ctx context.Context, since time.Time) ([]InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InvoiceRecord, 0, len(s.records))
	for _, rec := range s.records {
		if !since.IsZero() && rec.CreatedAt.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status constants.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return common.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = s.now().UTC()
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) Statistics(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{ByStatus: make(map[string]int64)}
	var totalMS int64
	for _, rec := range s.records {
		st.TotalInvoices++
		st.ByStatus[string(rec.Status)]++
		st.TotalAmount += rec.TotalAmount
		totalMS += rec.ElapsedMS
	}
	if st.TotalInvoices > 0 {
		st.AvgElapsedMS = float64(totalMS) / float64(st.TotalInvoices)
	}
	return st, nil
}

func (s *MemoryStore) GetPurchaseOrder(ctx context.Context, poNumber string) (*entity.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.pos {
		if strings.EqualFold(s.pos[i].PONumber, poNumber) {
			po := s.pos[i]
			return &po, nil
		}
	}
	return nil, common.ErrNotFound
}

func (s *MemoryStore) ListPurchaseOrders(ctx context.Context) ([]entity.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.PurchaseOrder, len(s.pos))
	copy(out, s.pos)
	return out, nil
}

// AddPurchaseOrder registers an extra PO; used by tests and seeding.
func (s *MemoryStore) AddPurchaseOrder(po entity.PurchaseOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = append(s.pos, po)
}

var _ Store = (*MemoryStore)(nil)
