package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/common"
	"github.com/apexfin/invoice-pipeline/internal/entity"
	"github.com/apexfin/invoice-pipeline/internal/trace"
)

func newSQLTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := NewSQLStore(db, "sqlite", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := st.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestSQLInitIdempotentSeeding(t *testing.T) {
	st := newSQLTestStore(t)
	if err := st.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	pos, err := st.ListPurchaseOrders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pos) != 3 {
		t.Fatalf("got %d purchase orders after double init, want 3", len(pos))
	}
}

func TestSQLSaveAndGetRoundtrip(t *testing.T) {
	st := newSQLTestStore(t)
	ctx := context.Background()

	res := testResult("inv-1", "ACME Corporation", "INV-2024-100", 4500, constants.StatusPendingApproval)
	due := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	res.Data.DueDate = &due
	res.Data.PONumber = "PO-2024-001"
	res.Verdict = &entity.Verdict{
		InvoiceID: "inv-1",
		Overall:   constants.ValidationWarning,
		Outcomes: []entity.RuleOutcome{
			{Rule: "required_fields", Status: constants.ValidationPassed, Message: "All required fields present"},
			{Rule: "vendor_verification", Status: constants.ValidationWarning, Message: "not in approved list"},
		},
	}
	tr := trace.New("extraction")
	tr.Record("Processing PDF document", "Selected direct text", "extract_direct_text", nil)
	res.Traces = []*trace.Trace{tr}

	if err := st.SaveResult(ctx, res); err != nil {
		t.Fatal(err)
	}

	rec, err := st.Get(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.VendorName != "ACME Corporation" || rec.InvoiceNumber != "INV-2024-100" {
		t.Errorf("record = %+v", rec)
	}
	if rec.PONumber != "PO-2024-001" || rec.TotalAmount != 4500 {
		t.Errorf("record = %+v", rec)
	}
	if rec.DueDate == nil || !rec.DueDate.Equal(due) {
		t.Errorf("due date = %v, want %v", rec.DueDate, due)
	}
	if rec.Level != constants.LevelManager || rec.Priority != constants.PriorityMedium {
		t.Errorf("approval fields = %s/%s", rec.Level, rec.Priority)
	}

	var validations, approvals, history int
	if err := st.db.QueryRow("SELECT COUNT(*) FROM validations WHERE invoice_id = 'inv-1'").Scan(&validations); err != nil {
		t.Fatal(err)
	}
	if err := st.db.QueryRow("SELECT COUNT(*) FROM approvals WHERE invoice_id = 'inv-1'").Scan(&approvals); err != nil {
		t.Fatal(err)
	}
	if err := st.db.QueryRow("SELECT COUNT(*) FROM processing_history WHERE invoice_id = 'inv-1'").Scan(&history); err != nil {
		t.Fatal(err)
	}
	if validations != 2 || approvals != 1 || history != 1 {
		t.Errorf("child rows = %d/%d/%d, want 2/1/1", validations, approvals, history)
	}
}

func TestSQLResaveReplacesChildRows(t *testing.T) {
	st := newSQLTestStore(t)
	ctx := context.Background()

	res := testResult("inv-1", "ACME Corporation", "INV-1", 100, constants.StatusApproved)
	res.Verdict = &entity.Verdict{
		Outcomes: []entity.RuleOutcome{{Rule: "required_fields", Status: constants.ValidationPassed}},
	}
	if err := st.SaveResult(ctx, res); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveResult(ctx, res); err != nil {
		t.Fatal(err)
	}

	var invoices, validations int
	if err := st.db.QueryRow("SELECT COUNT(*) FROM invoices").Scan(&invoices); err != nil {
		t.Fatal(err)
	}
	if err := st.db.QueryRow("SELECT COUNT(*) FROM validations").Scan(&validations); err != nil {
		t.Fatal(err)
	}
	if invoices != 1 || validations != 1 {
		t.Errorf("rows = %d invoices, %d validations; want 1 each", invoices, validations)
	}
}

func TestSQLListAndListSince(t *testing.T) {
	st := newSQLTestStore(t)
	ctx := context.Background()
	clock := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time {
		clock = clock.Add(time.Hour)
		return clock
	}

	for i, status := range []constants.InvoiceStatus{
		constants.StatusApproved, constants.StatusPendingApproval, constants.StatusApproved,
	} {
		id := []string{"inv-1", "inv-2", "inv-3"}[i]
		if err := st.SaveResult(ctx, testResult(id, "TechSupply Inc", "N-"+id, 100, status)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := st.List(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "inv-3" {
		t.Fatalf("all = %+v", all)
	}

	approved, err := st.List(ctx, constants.StatusApproved, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(approved) != 1 || approved[0].ID != "inv-3" {
		t.Errorf("approved = %+v", approved)
	}

	recent, err := st.ListSince(ctx, time.Date(2024, 6, 1, 2, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != "inv-3" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestSQLUpdateStatus(t *testing.T) {
	st := newSQLTestStore(t)
	ctx := context.Background()
	if err := st.SaveResult(ctx, testResult("inv-1", "ACME Corporation", "INV-1", 100, constants.StatusPendingApproval)); err != nil {
		t.Fatal(err)
	}
	if err := st.UpdateStatus(ctx, "inv-1", constants.StatusApproved); err != nil {
		t.Fatal(err)
	}
	rec, err := st.Get(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != constants.StatusApproved {
		t.Errorf("status = %s", rec.Status)
	}
	if err := st.UpdateStatus(ctx, "missing", constants.StatusApproved); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("UpdateStatus(missing) = %v", err)
	}
}

func TestSQLStatistics(t *testing.T) {
	st := newSQLTestStore(t)
	ctx := context.Background()
	if err := st.SaveResult(ctx, testResult("inv-1", "ACME Corporation", "INV-1", 150, constants.StatusApproved)); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveResult(ctx, testResult("inv-2", "ACME Corporation", "INV-2", 250, constants.StatusException)); err != nil {
		t.Fatal(err)
	}

	stats, err := st.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalInvoices != 2 || stats.TotalAmount != 400 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByStatus["approved"] != 1 || stats.ByStatus["exception"] != 1 {
		t.Errorf("by status = %v", stats.ByStatus)
	}
}

func TestSQLGetPurchaseOrder(t *testing.T) {
	st := newSQLTestStore(t)
	ctx := context.Background()

	po, err := st.GetPurchaseOrder(ctx, "po-2024-002") // case-insensitive
	if err != nil {
		t.Fatal(err)
	}
	if po.VendorName != "TechSupply Inc" || po.TotalAmount != 12750 {
		t.Errorf("po = %+v", po)
	}
	if _, err := st.GetPurchaseOrder(ctx, "PO-0000-000"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("unknown PO = %v", err)
	}
}

func TestRebindPostgres(t *testing.T) {
	s := &SQLStore{postgres: true}
	got := s.rebind("UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?")
	want := "UPDATE invoices SET status = $1, updated_at = $2 WHERE id = $3"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	s.postgres = false
	if got := s.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind altered query: %q", got)
	}
}
