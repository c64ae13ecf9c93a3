// invoice-batch processes a directory of invoice documents through the
// pipeline and writes an XLSX summary next to it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/common"
	"github.com/apexfin/invoice-pipeline/internal/docproc"
	"github.com/apexfin/invoice-pipeline/internal/export"
	"github.com/apexfin/invoice-pipeline/internal/pipeline"
	"github.com/apexfin/invoice-pipeline/internal/store"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory of invoice documents to process (required)")
		out     = flag.String("out", "", "output XLSX file path (defaults next to the input directory)")
		inmem   = flag.Bool("inmem", false, "keep results in memory instead of the configured database")
		workers = flag.Int("workers", 4, "number of documents processed in parallel")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "invoices.xlsx")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()

	rules, err := common.LoadRules(cfg.RulesPath)
	if err != nil {
		logger.Error("failed to load business rules", "error", err)
		os.Exit(1)
	}

	var st store.Store
	if *inmem {
		st = store.NewMemoryStore()
	} else {
		db, pool, err := store.Open(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer store.Close(db, pool, logger)
		sqlStore := store.NewSQLStore(db, cfg.Database.Driver, logger)
		if err := sqlStore.Init(ctx); err != nil {
			logger.Error("failed to initialize schema", "error", err)
			os.Exit(1)
		}
		st = sqlStore
	}

	paths, err := collectDocuments(*dir)
	if err != nil {
		logger.Error("failed to scan input directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		logger.Warn("no supported documents found", "dir", *dir)
		return
	}
	logger.Info("processing batch", "dir", *dir, "documents", len(paths))

	runner := docproc.ExecRunner{}
	direct := docproc.NewDirectTextExtractor(docproc.DirectTextConfig{
		Pdftotext: cfg.Extract.Pdftotext,
	}, runner, logger)
	recog := docproc.NewRecognitionExtractor(docproc.RecognitionConfig{
		Pdftoppm:  cfg.Extract.Pdftoppm,
		Tesseract: cfg.Extract.Tesseract,
		DPI:       cfg.Extract.DPI,
		MaxPages:  cfg.Extract.MaxPages,
	}, runner, logger)

	extraction := pipeline.NewExtractionStage(direct, recog, logger)
	validation := pipeline.NewValidationStage(rules.Validation, st, st, logger)
	routing := pipeline.NewRoutingStage(rules.Routing, logger)
	processor := pipeline.NewProcessor(extraction, validation, routing, st,
		pipeline.ProcessorConfig{Concurrency: *workers}, logger)

	results := processor.ProcessBatch(ctx, paths)
	for _, res := range results {
		logger.Info("document processed",
			"document", res.DocumentPath,
			"invoice_id", res.InvoiceID,
			"status", res.Status,
			"errors", len(res.Errors))
	}

	snap := processor.Metrics()
	logger.Info("batch complete",
		"total", snap.TotalProcessed,
		"successful", snap.Successful,
		"failed", snap.Failed,
		"auto_approved", snap.AutoApproved,
		"manual_review", snap.ManualReview,
		"exceptions", snap.Exceptions,
		"avg_processing_time_ms", snap.AvgLatencyMS)

	exporter := export.NewService(st, logger)
	data, err := exporter.ExportInvoicesXLSX(ctx, "", 0)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("failed to write output file", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("wrote summary", "path", *out)
}

// collectDocuments returns the supported documents under dir, sorted so runs
// are deterministic.
func collectDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := constants.NormalizeExt(filepath.Ext(e.Name()))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
