package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/common"
	"github.com/apexfin/invoice-pipeline/internal/docproc"
	"github.com/apexfin/invoice-pipeline/internal/entity"
	"github.com/apexfin/invoice-pipeline/internal/export"
	"github.com/apexfin/invoice-pipeline/internal/pipeline"
	"github.com/apexfin/invoice-pipeline/internal/store"
)

// fixedTextExtractor returns the same invoice text for every document.
type fixedTextExtractor struct {
	method string
	text   string
}

func (f *fixedTextExtractor) Extract(ctx context.Context, path string) (docproc.TextResult, error) {
	return docproc.TextResult{Text: f.text, Method: f.method}, nil
}

func (f *fixedTextExtractor) Method() string { return f.method }

func cleanInvoiceText() string {
	issued := time.Now().AddDate(0, 0, -7).Format("01/02/2006")
	return fmt.Sprintf("Office Solutions Ltd\nInvoice #: INV-8001\nDate: %s\nTotal: $850.00\n", issued)
}

func newTestHandler(t *testing.T) (*Handler, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	rules := common.DefaultRules()

	direct := &fixedTextExtractor{method: docproc.MethodDirectText, text: cleanInvoiceText()}
	recog := &fixedTextExtractor{method: docproc.MethodRecognition}
	extraction := pipeline.NewExtractionStage(direct, recog, logger)
	validation := pipeline.NewValidationStage(rules.Validation, st, st, logger)
	routing := pipeline.NewRoutingStage(rules.Routing, logger)
	processor := pipeline.NewProcessor(extraction, validation, routing, st, pipeline.ProcessorConfig{}, logger)

	return NewHandler(processor, st, export.NewService(st, logger), t.TempDir(), logger), st
}

func multipartBody(t *testing.T, field string, filenames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range filenames {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte("placeholder document bytes")); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func seedRecord(t *testing.T, st *store.MemoryStore, id string, status constants.InvoiceStatus) {
	t.Helper()
	err := st.SaveResult(context.Background(), &entity.ProcessingResult{
		InvoiceID: id,
		Status:    status,
		Success:   true,
		Data: &entity.InvoiceData{
			VendorName:    "TechSupply Inc",
			InvoiceNumber: "INV-" + id,
			TotalAmount:   1200,
			Currency:      "USD",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestProcessUpload(t *testing.T) {
	h, st := newTestHandler(t)
	body, contentType := multipartBody(t, "file", "invoice.pdf")
	req := httptest.NewRequest("POST", "/api/process", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result entity.ProcessingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Status != constants.StatusApproved {
		t.Errorf("result status = %s, errors = %v", result.Status, result.Errors)
	}
	if _, err := st.Get(context.Background(), result.InvoiceID); err != nil {
		t.Errorf("result not persisted: %v", err)
	}
}

func TestProcessRejectsUnsupportedExtension(t *testing.T) {
	h, _ := newTestHandler(t)
	body, contentType := multipartBody(t, "file", "notes.txt")
	req := httptest.NewRequest("POST", "/api/process", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProcessMissingFileField(t *testing.T) {
	h, _ := newTestHandler(t)
	body, contentType := multipartBody(t, "something_else", "invoice.pdf")
	req := httptest.NewRequest("POST", "/api/process", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProcessBatchSkipsUnsupported(t *testing.T) {
	h, _ := newTestHandler(t)
	body, contentType := multipartBody(t, "files", "a.pdf", "b.txt")
	req := httptest.NewRequest("POST", "/api/process-batch", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Total   int                        `json:"total"`
		Results []*entity.ProcessingResult `json:"results"`
		Skipped map[string]string          `json:"skipped"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Errorf("total = %d, results = %d", resp.Total, len(resp.Results))
	}
	if _, ok := resp.Skipped["b.txt"]; !ok {
		t.Errorf("skipped = %v", resp.Skipped)
	}
}

func TestListAndGetInvoices(t *testing.T) {
	h, st := newTestHandler(t)
	seedRecord(t, st, "inv-1", constants.StatusApproved)
	seedRecord(t, st, "inv-2", constants.StatusPendingApproval)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest("GET", "/api/invoices?status=approved", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var listResp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatal(err)
	}
	if listResp.Total != 1 {
		t.Errorf("total = %d", listResp.Total)
	}

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest("GET", "/api/invoices/inv-2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest("GET", "/api/invoices/ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing invoice status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest("GET", "/api/invoices?limit=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestDecisionFlow(t *testing.T) {
	h, st := newTestHandler(t)
	seedRecord(t, st, "inv-1", constants.StatusPendingApproval)

	decide := func(id, action string) *httptest.ResponseRecorder {
		body := strings.NewReader(fmt.Sprintf(`{"action":%q}`, action))
		req := httptest.NewRequest("POST", "/api/invoices/"+id+"/decision", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)
		return rec
	}

	if rec := decide("inv-1", "approve"); rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body = %s", rec.Code, rec.Body.String())
	}
	got, err := st.Get(context.Background(), "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != constants.StatusApproved {
		t.Errorf("stored status = %s", got.Status)
	}

	// Already decided: a second decision conflicts.
	if rec := decide("inv-1", "reject"); rec.Code != http.StatusConflict {
		t.Errorf("second decision status = %d", rec.Code)
	}
	if rec := decide("inv-1", "shred"); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action status = %d", rec.Code)
	}
	if rec := decide("ghost", "approve"); rec.Code != http.StatusNotFound {
		t.Errorf("missing invoice status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, st := newTestHandler(t)
	seedRecord(t, st, "inv-1", constants.StatusApproved)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest("GET", "/api/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"pipeline", "store"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
}

func TestOpsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest("GET", "/api/ops", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string][]struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, stage := range []string{"extraction", "validation", "routing"} {
		if len(resp[stage]) == 0 {
			t.Errorf("no ops listed for stage %q", stage)
		}
	}
}

func TestExportEndpoint(t *testing.T) {
	h, st := newTestHandler(t)
	seedRecord(t, st, "inv-1", constants.StatusApproved)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest("GET", "/api/export", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("content type = %q", ct)
	}
	// XLSX is a zip container.
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("body is not an XLSX archive")
	}
}
