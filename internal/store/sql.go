package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/common"
	"github.com/apexfin/invoice-pipeline/internal/entity"
)

// Dates are stored as RFC3339 text so the same statements run on both
// sqlite and postgres.
const timeLayout = time.RFC3339Nano

var schema = []string{
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		document_path TEXT NOT NULL DEFAULT '',
		vendor_name TEXT NOT NULL DEFAULT '',
		invoice_number TEXT NOT NULL DEFAULT '',
		invoice_date TEXT NOT NULL DEFAULT '',
		due_date TEXT,
		subtotal REAL NOT NULL DEFAULT 0,
		tax_amount REAL NOT NULL DEFAULT 0,
		total_amount REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		po_number TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'received',
		approval_level TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		assigned_to TEXT NOT NULL DEFAULT '',
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices (vendor_name)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_number ON invoices (invoice_number)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices (status)`,
	`CREATE TABLE IF NOT EXISTS validations (
		invoice_id TEXT NOT NULL,
		rule TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (invoice_id, rule)
	)`,
	`CREATE TABLE IF NOT EXISTS approvals (
		request_id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		approval_level TEXT NOT NULL,
		assigned_to TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		sla_deadline TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS processing_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
		po_number TEXT PRIMARY KEY,
		vendor_name TEXT NOT NULL,
		total_amount REAL NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		status TEXT NOT NULL DEFAULT 'open',
		created_date TEXT NOT NULL DEFAULT ''
	)`,
}

// SQLStore persists invoices in sqlite or postgres via database/sql.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewSQLStore wires a store around an open handle. driver is the value from
// DatabaseConfig.Driver and selects the placeholder dialect.
func NewSQLStore(db *sql.DB, driver string, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, postgres: driver == "postgres", logger: logger, now: time.Now}
}

// Init creates the schema and seeds the purchase-order book when empty.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if s.postgres {
			stmt = strings.ReplaceAll(stmt, "INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY")
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return common.WrapError(common.ErrDatabase, fmt.Sprintf("create schema: %v", err))
		}
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM purchase_orders").Scan(&n); err != nil {
		return common.WrapError(common.ErrDatabase, fmt.Sprintf("count purchase orders: %v", err))
	}
	if n > 0 {
		return nil
	}
	for _, po := range samplePurchaseOrders() {
		_, err := s.db.ExecContext(ctx, s.rebind(
			"INSERT INTO purchase_orders (po_number, vendor_name, total_amount, currency, status, created_date) VALUES (?, ?, ?, ?, ?, ?)"),
			po.PONumber, po.VendorName, po.TotalAmount, po.Currency, po.Status, po.CreatedDate)
		if err != nil {
			return common.WrapError(common.ErrDatabase, fmt.Sprintf("seed purchase orders: %v", err))
		}
	}
	s.logger.Info("store.seeded_purchase_orders", "count", len(samplePurchaseOrders()))
	return nil
}

// rebind converts ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) SaveResult(ctx context.Context, res *entity.ProcessingResult) error {
	if res == nil || res.InvoiceID == "" {
		return common.ErrInvalidInput
	}
	now := s.now().UTC()
	rec := NewRecord(res, now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(common.ErrDatabase, fmt.Sprintf("begin: %v", err))
	}
	defer tx.Rollback()

	for _, table := range []string{"invoices", "validations", "approvals", "processing_history"} {
		col := "invoice_id"
		if table == "invoices" {
			col = "id"
		}
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM "+table+" WHERE "+col+" = ?"), rec.ID); err != nil {
			return common.WrapError(common.ErrDatabase, fmt.Sprintf("replace %s: %v", table, err))
		}
	}
	var due any
	if rec.DueDate != nil {
		due = rec.DueDate.UTC().Format(timeLayout)
	}
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO invoices
		(id, document_path, vendor_name, invoice_number, invoice_date, due_date,
		 subtotal, tax_amount, total_amount, currency, po_number, status,
		 approval_level, priority, assigned_to, elapsed_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.DocumentPath, rec.VendorName, rec.InvoiceNumber,
		formatTime(rec.InvoiceDate), due,
		rec.Subtotal, rec.TaxAmount, rec.TotalAmount, rec.Currency, rec.PONumber,
		string(rec.Status), string(rec.Level), string(rec.Priority), rec.AssignedTo,
		rec.ElapsedMS, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return common.WrapError(common.ErrDatabase, fmt.Sprintf("insert invoice: %v", err))
	}

	if v := res.Verdict; v != nil {
		for _, out := range v.Outcomes {
			_, err := tx.ExecContext(ctx, s.rebind(
				"INSERT INTO validations (invoice_id, rule, status, message, created_at) VALUES (?, ?, ?, ?, ?)"),
				rec.ID, out.Rule, string(out.Status), out.Message, formatTime(now))
			if err != nil {
				return common.WrapError(common.ErrDatabase, fmt.Sprintf("insert validation: %v", err))
			}
		}
	}

	if a := res.Approval; a != nil {
		_, err := tx.ExecContext(ctx, s.rebind(
			"INSERT INTO approvals (request_id, invoice_id, approval_level, assigned_to, priority, sla_deadline, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
			a.RequestID, rec.ID, string(a.Level), a.AssignedTo, string(a.Priority),
			formatTime(a.SLADeadline), string(a.Status), formatTime(now))
		if err != nil {
			return common.WrapError(common.ErrDatabase, fmt.Sprintf("insert approval: %v", err))
		}
	}

	for _, tr := range res.Traces {
		if tr == nil {
			continue
		}
		_, err := tx.ExecContext(ctx, s.rebind(
			"INSERT INTO processing_history (invoice_id, stage, detail, created_at) VALUES (?, ?, ?, ?)"),
			rec.ID, tr.Stage, tr.String(), formatTime(now))
		if err != nil {
			return common.WrapError(common.ErrDatabase, fmt.Sprintf("insert history: %v", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return common.WrapError(common.ErrDatabase, fmt.Sprintf("commit: %v", err))
	}
	return nil
}

const recordColumns = `id, document_path, vendor_name, invoice_number, invoice_date, due_date,
	subtotal, tax_amount, total_amount, currency, po_number, status,
	approval_level, priority, assigned_to, elapsed_ms, created_at, updated_at`

func (s *SQLStore) Get(ctx context.Context, id string) (*InvoiceRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+recordColumns+" FROM invoices WHERE id = ?"), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(common.ErrDatabase, fmt.Sprintf("get invoice: %v", err))
	}
	return rec, nil
}

func (s *SQLStore) List(ctx context.Context, status constants.InvoiceStatus, limit int) ([]InvoiceRecord, error) {
	query := "SELECT " + recordColumns + " FROM invoices"
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}
	return s.queryRecords(ctx, query, args...)
}

func (s *SQLStore) ListSince(ctx context.Context, since time.Time) ([]InvoiceRecord, error) {
	if since.IsZero() {
		return s.queryRecords(ctx, "SELECT "+recordColumns+" FROM invoices ORDER BY created_at DESC")
	}
	return s.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM invoices WHERE created_at >= ? ORDER BY created_at DESC",
		formatTime(since.UTC()))
}

func (s *SQLStore) queryRecords(ctx context.Context, query string, args ...any) ([]InvoiceRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, common.WrapError(common.ErrDatabase, fmt.Sprintf("list invoices: %v", err))
	}
	defer rows.Close()
	var out []InvoiceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, common.WrapError(common.ErrDatabase, fmt.Sprintf("scan invoice: %v", err))
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(common.ErrDatabase, fmt.Sprintf("list invoices: %v", err))
	}
	return out, nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id string, status constants.InvoiceStatus) error {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?"),
		string(status), formatTime(s.now().UTC()), id)
	if err != nil {
		return common.WrapError(common.ErrDatabase, fmt.Sprintf("update status: %v", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *SQLStore) Statistics(ctx context.Context) (Stats, error) {
	st := Stats{ByStatus: make(map[string]int64)}
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(AVG(elapsed_ms), 0) FROM invoices")
	if err := row.Scan(&st.TotalInvoices, &st.TotalAmount, &st.AvgElapsedMS); err != nil {
		return st, common.WrapError(common.ErrDatabase, fmt.Sprintf("statistics: %v", err))
	}
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM invoices GROUP BY status")
	if err != nil {
		return st, common.WrapError(common.ErrDatabase, fmt.Sprintf("statistics: %v", err))
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return st, common.WrapError(common.ErrDatabase, fmt.Sprintf("statistics: %v", err))
		}
		st.ByStatus[status] = count
	}
	return st, rows.Err()
}

func (s *SQLStore) GetPurchaseOrder(ctx context.Context, poNumber string) (*entity.PurchaseOrder, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT po_number, vendor_name, total_amount, currency, status, created_date FROM purchase_orders WHERE LOWER(po_number) = LOWER(?)"),
		poNumber)
	var po entity.PurchaseOrder
	err := row.Scan(&po.PONumber, &po.VendorName, &po.TotalAmount, &po.Currency, &po.Status, &po.CreatedDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(common.ErrDatabase, fmt.Sprintf("get purchase order: %v", err))
	}
	return &po, nil
}

func (s *SQLStore) ListPurchaseOrders(ctx context.Context) ([]entity.PurchaseOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT po_number, vendor_name, total_amount, currency, status, created_date FROM purchase_orders ORDER BY po_number")
	if err != nil {
		return nil, common.WrapError(common.ErrDatabase, fmt.Sprintf("list purchase orders: %v", err))
	}
	defer rows.Close()
	var out []entity.PurchaseOrder
	for rows.Next() {
		var po entity.PurchaseOrder
		if err := rows.Scan(&po.PONumber, &po.VendorName, &po.TotalAmount, &po.Currency, &po.Status, &po.CreatedDate); err != nil {
			return nil, common.WrapError(common.ErrDatabase, fmt.Sprintf("scan purchase order: %v", err))
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

var _ Store = (*SQLStore)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*InvoiceRecord, error) {
	var rec InvoiceRecord
	var invoiceDate, createdAt, updatedAt string
	var dueDate sql.NullString
	var status, level, priority string
	err := row.Scan(&rec.ID, &rec.DocumentPath, &rec.VendorName, &rec.InvoiceNumber,
		&invoiceDate, &dueDate, &rec.Subtotal, &rec.TaxAmount, &rec.TotalAmount,
		&rec.Currency, &rec.PONumber, &status, &level, &priority, &rec.AssignedTo,
		&rec.ElapsedMS, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = constants.InvoiceStatus(status)
	rec.Level = constants.ApprovalLevel(level)
	rec.Priority = constants.Priority(priority)
	rec.InvoiceDate = parseTime(invoiceDate)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	if dueDate.Valid && dueDate.String != "" {
		t := parseTime(dueDate.String)
		rec.DueDate = &t
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
