// invoiced is the invoice pipeline daemon: it wires the stores, the three
// pipeline stages and the HTTP API together and serves until interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/apexfin/invoice-pipeline/internal/common"
	"github.com/apexfin/invoice-pipeline/internal/docproc"
	"github.com/apexfin/invoice-pipeline/internal/export"
	"github.com/apexfin/invoice-pipeline/internal/pipeline"
	"github.com/apexfin/invoice-pipeline/internal/server"
	"github.com/apexfin/invoice-pipeline/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rules, err := common.LoadRules(cfg.RulesPath)
	if err != nil {
		logger.Error("failed to load business rules", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, pool, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close(db, pool, logger)

	if err := store.HealthCheck(ctx, db, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	st := store.NewSQLStore(db, cfg.Database.Driver, logger)
	if err := st.Init(ctx); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

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
	processor := pipeline.NewProcessor(extraction, validation, routing, st, pipeline.ProcessorConfig{}, logger)

	exporter := export.NewService(st, logger)
	handler := server.NewHandler(processor, st, exporter, cfg.Server.UploadDir, logger)
	srv := server.New(cfg.Server, server.RequestLogger(handler.Routes(), logger), logger)

	if err := srv.Start(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
