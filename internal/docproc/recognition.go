package docproc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/apexfin/invoice-pipeline/constants"
)

// RecognitionConfig configures the tesseract-backed extractor.
type RecognitionConfig struct {
	Pdftoppm  string // if empty -> "pdftoppm"
	Tesseract string // if empty -> "tesseract"
	Lang      string // default "eng"
	DPI       int    // rasterization DPI for PDFs, default 300
	MaxPages  int    // 0 = no limit
}

// RecognitionExtractor OCRs images directly and rasterizes PDFs page by page
// before recognition. Used for scans and as the fallback when a PDF carries
// no text layer.
type RecognitionExtractor struct {
	cfg    RecognitionConfig
	runner Runner
	logger *slog.Logger
}

func NewRecognitionExtractor(cfg RecognitionConfig, runner Runner, logger *slog.Logger) *RecognitionExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &RecognitionExtractor{cfg: cfg, runner: runner, logger: logger}
}

func (e *RecognitionExtractor) Method() string { return MethodRecognition }

func (e *RecognitionExtractor) Extract(ctx context.Context, path string) (TextResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))

	var text string
	var pages int
	var warns []string
	var err error

	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		text, pages, warns, err = e.recognizePDF(ctx, path)
	case constants.IMAGE:
		text, warns, err = e.recognizeImage(ctx, path)
		pages = 1
	default:
		return TextResult{Method: MethodRecognition}, fmt.Errorf("unsupported extension: %q", ext)
	}
	if err != nil {
		return TextResult{Method: MethodRecognition, Duration: time.Since(start), Warnings: warns}, err
	}

	return TextResult{
		Text:     CleanRecognized(text),
		Pages:    pages,
		Method:   MethodRecognition,
		Duration: time.Since(start),
		Warnings: warns,
	}, nil
}

func (e *RecognitionExtractor) recognizeImage(ctx context.Context, path string) (string, []string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.Lang)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil, nil
}

func (e *RecognitionExtractor) recognizePDF(ctx context.Context, path string) (string, int, []string, error) {
	tmpDir, err := os.MkdirTemp("", "ip-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", 0, []string{string(errb)}, err
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, fmt.Errorf("no pages rendered")
	}

	var b strings.Builder
	var warns []string
	for _, img := range matches {
		txt, w, err := e.recognizeImage(ctx, img)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(txt)
		warns = append(warns, w...)
	}
	return b.String(), len(matches), warns, nil
}
