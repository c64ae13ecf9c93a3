package docproc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DirectTextConfig configures the pdftotext-backed extractor.
type DirectTextConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
}

// DirectTextExtractor reads the embedded text layer of a digital PDF.
// Faster and more accurate than recognition, but useless on scans.
type DirectTextExtractor struct {
	cfg    DirectTextConfig
	runner Runner
	logger *slog.Logger
}

func NewDirectTextExtractor(cfg DirectTextConfig, runner Runner, logger *slog.Logger) *DirectTextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &DirectTextExtractor{cfg: cfg, runner: runner, logger: logger}
}

func (e *DirectTextExtractor) Method() string { return MethodDirectText }

func (e *DirectTextExtractor) Extract(ctx context.Context, path string) (TextResult, error) {
	start := time.Now()
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return TextResult{
			Method:   MethodDirectText,
			Duration: time.Since(start),
			Warnings: []string{string(errb)},
		}, fmt.Errorf("pdftotext: %w", err)
	}
	text := string(out)
	// A form-feed \f is used as page separator by default.
	pages := 1 + strings.Count(text, "\f")
	return TextResult{
		Text:     text,
		Pages:    pages,
		Method:   MethodDirectText,
		Duration: time.Since(start),
	}, nil
}
