package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/common"
	"github.com/apexfin/invoice-pipeline/internal/export"
	"github.com/apexfin/invoice-pipeline/internal/ops"
	"github.com/apexfin/invoice-pipeline/internal/pipeline"
	"github.com/apexfin/invoice-pipeline/internal/store"
)

const maxUploadBytes = 32 << 20

// Handler serves the pipeline API.
type Handler struct {
	processor *pipeline.Processor
	invoices  store.InvoiceStore
	exporter  *export.Service
	uploadDir string
	logger    *slog.Logger
}

func NewHandler(processor *pipeline.Processor, invoices store.InvoiceStore, exporter *export.Service, uploadDir string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		processor: processor,
		invoices:  invoices,
		exporter:  exporter,
		uploadDir: uploadDir,
		logger:    logger.With("handler", "invoices"),
	}
}

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/process", h.process)
	mux.HandleFunc("POST /api/process-batch", h.processBatch)
	mux.HandleFunc("GET /api/invoices", h.listInvoices)
	mux.HandleFunc("GET /api/invoices/{id}", h.getInvoice)
	mux.HandleFunc("POST /api/invoices/{id}/decision", h.decide)
	mux.HandleFunc("GET /api/metrics", h.metrics)
	mux.HandleFunc("GET /api/ops", h.listOps)
	mux.HandleFunc("GET /api/export", h.exportXLSX)
	mux.HandleFunc("GET /api/health", h.health)
	return mux
}

// process accepts one uploaded document and runs it through the pipeline.
func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	path, err := h.saveUpload(file, header)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, common.ErrUnsupportedFormat) {
			status = http.StatusBadRequest
		}
		respondError(w, h.logger, status, err)
		return
	}

	result := h.processor.ProcessDocument(r.Context(), path)
	respondJSON(w, http.StatusOK, result)
}

// processBatch accepts multiple uploads and fans them out concurrently.
func (h *Handler) processBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		respondError(w, h.logger, http.StatusBadRequest, errors.New("missing files field"))
		return
	}

	var paths []string
	skipped := map[string]string{}
	for _, header := range r.MultipartForm.File["files"] {
		file, err := header.Open()
		if err != nil {
			respondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("open upload %q: %w", header.Filename, err))
			return
		}
		path, err := h.saveUpload(file, header)
		file.Close()
		if err != nil {
			// An unsupported file never reaches the pipeline; the batch goes on.
			skipped[header.Filename] = err.Error()
			h.logger.Warn("server.batch.skipped_upload", "filename", header.Filename, "error", err)
			continue
		}
		paths = append(paths, path)
	}

	processed := h.processor.ProcessBatch(r.Context(), paths)
	resp := map[string]any{
		"total":   len(processed),
		"results": processed,
	}
	if len(skipped) > 0 {
		resp["skipped"] = skipped
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) saveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	ext := constants.NormalizeExt(filepath.Ext(header.Filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: .%s", common.ErrUnsupportedFormat, ext)
	}
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(h.uploadDir, uuid.NewString()+"."+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	status := constants.InvoiceStatus(r.URL.Query().Get("status"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	recs, err := h.invoices.List(r.Context(), status, limit)
	if err != nil {
		respondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total":    len(recs),
		"invoices": recs,
	})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	rec, err := h.invoices.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, mapStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

type decisionRequest struct {
	Action string `json:"action"`
}

// decide applies an external approval decision to a pending invoice.
func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	var next constants.InvoiceStatus
	switch req.Action {
	case "approve":
		next = constants.StatusApproved
	case "reject":
		next = constants.StatusRejected
	default:
		respondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("unknown action %q", req.Action))
		return
	}

	rec, err := h.invoices.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, mapStatus(err), err)
		return
	}
	if rec.Status != constants.StatusPendingApproval {
		respondError(w, h.logger, http.StatusConflict,
			fmt.Errorf("invoice %s is %s, only pending_approval invoices accept decisions", id, rec.Status))
		return
	}

	if err := h.invoices.UpdateStatus(r.Context(), id, next); err != nil {
		respondError(w, h.logger, mapStatus(err), err)
		return
	}
	h.logger.Info("server.decision.applied", "invoice_id", id, "action", req.Action)
	respondJSON(w, http.StatusOK, map[string]string{
		"invoice_id": id,
		"status":     string(next),
		"decided_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	snap := h.processor.Metrics()
	stats, err := h.invoices.Statistics(r.Context())
	if err != nil {
		respondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"pipeline": snap,
		"store": map[string]any{
			"total_invoices":         stats.TotalInvoices,
			"by_status":              stats.ByStatus,
			"total_amount":           stats.TotalAmount,
			"avg_processing_time_ms": stats.AvgElapsedMS,
		},
	})
}

// listOps describes the operations each stage exposes.
func (h *Handler) listOps(w http.ResponseWriter, _ *http.Request) {
	catalogs := []*ops.Catalog{
		pipeline.ExtractionCatalog,
		pipeline.ValidationCatalog,
		pipeline.RoutingCatalog,
	}
	out := make(map[string][]ops.Spec, len(catalogs))
	for _, cat := range catalogs {
		out[cat.Stage] = cat.Specs()
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	status := constants.InvoiceStatus(r.URL.Query().Get("status"))
	data, err := h.exporter.ExportInvoicesXLSX(r.Context(), status, 0)
	if err != nil {
		respondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func mapStatus(err error) int {
	if errors.Is(err, common.ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, common.ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
