package docproc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// scriptRunner fakes the external binaries. pdftoppm invocations drop page
// images next to the requested prefix; tesseract invocations return text.
type scriptRunner struct {
	pages    int
	pageText string
	fail     string // binary name that should fail
	calls    []string
}

func (r *scriptRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, name)
	bin := filepath.Base(name)
	if bin == r.fail {
		return nil, []byte("simulated failure"), errors.New("exit status 1")
	}
	switch bin {
	case "pdftotext":
		return []byte(r.pageText), nil, nil
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= r.pages; i++ {
			if err := os.WriteFile(prefix+"-"+string(rune('0'+i))+".png", []byte("img"), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		return []byte(r.pageText), nil, nil
	}
	return nil, nil, errors.New("unexpected binary " + name)
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDirectTextExtract(t *testing.T) {
	runner := &scriptRunner{pageText: "Invoice #: INV-1\fpage two"}
	e := NewDirectTextExtractor(DirectTextConfig{}, runner, nopLogger())

	res, err := e.Extract(context.Background(), "/tmp/a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Pages != 2 {
		t.Errorf("pages = %d, want 2 (form feed separated)", res.Pages)
	}
	if !strings.Contains(res.Text, "INV-1") {
		t.Errorf("text = %q", res.Text)
	}
	if res.Method != MethodDirectText {
		t.Errorf("method = %q", res.Method)
	}
}

func TestDirectTextExtractFailure(t *testing.T) {
	runner := &scriptRunner{fail: "pdftotext"}
	e := NewDirectTextExtractor(DirectTextConfig{}, runner, nopLogger())

	res, err := e.Extract(context.Background(), "/tmp/a.pdf")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "pdftotext") {
		t.Errorf("err = %v", err)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "simulated failure") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestRecognitionExtractImage(t *testing.T) {
	runner := &scriptRunner{pageText: "TOTAL  100\r\n"}
	e := NewRecognitionExtractor(RecognitionConfig{}, runner, nopLogger())

	res, err := e.Extract(context.Background(), "/tmp/scan.png")
	if err != nil {
		t.Fatal(err)
	}
	if res.Pages != 1 {
		t.Errorf("pages = %d", res.Pages)
	}
	// Recognized output is cleaned before it leaves the extractor.
	if strings.Contains(res.Text, "\r") {
		t.Errorf("text not cleaned: %q", res.Text)
	}
	if len(runner.calls) != 1 || filepath.Base(runner.calls[0]) != "tesseract" {
		t.Errorf("calls = %v", runner.calls)
	}
}

func TestRecognitionExtractPDF(t *testing.T) {
	runner := &scriptRunner{pages: 2, pageText: "page text"}
	e := NewRecognitionExtractor(RecognitionConfig{}, runner, nopLogger())

	res, err := e.Extract(context.Background(), "/tmp/scan.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Pages != 2 {
		t.Errorf("pages = %d, want 2", res.Pages)
	}
	// pdftoppm once, then tesseract per page.
	if len(runner.calls) != 3 {
		t.Errorf("calls = %v", runner.calls)
	}
}

func TestRecognitionExtractPDFNoPages(t *testing.T) {
	runner := &scriptRunner{pages: 0}
	e := NewRecognitionExtractor(RecognitionConfig{}, runner, nopLogger())

	_, err := e.Extract(context.Background(), "/tmp/scan.pdf")
	if err == nil || !strings.Contains(err.Error(), "no pages rendered") {
		t.Fatalf("err = %v", err)
	}
}

func TestRecognitionMaxPages(t *testing.T) {
	runner := &scriptRunner{pages: 4, pageText: "page text"}
	e := NewRecognitionExtractor(RecognitionConfig{MaxPages: 2}, runner, nopLogger())

	res, err := e.Extract(context.Background(), "/tmp/scan.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Pages != 2 {
		t.Errorf("pages = %d, want capped 2", res.Pages)
	}
}

func TestRecognitionUnsupportedExtension(t *testing.T) {
	e := NewRecognitionExtractor(RecognitionConfig{}, &scriptRunner{}, nopLogger())
	if _, err := e.Extract(context.Background(), "/tmp/notes.docx"); err == nil {
		t.Fatal("expected unsupported-extension error")
	}
}

func TestTextResultEmpty(t *testing.T) {
	if !(TextResult{Text: " \n\t\f\r"}).Empty() {
		t.Error("whitespace-only text should be empty")
	}
	if (TextResult{Text: "x"}).Empty() {
		t.Error("non-blank text reported empty")
	}
}
