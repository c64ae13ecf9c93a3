package docproc

import (
	"strings"
	"testing"
)

func TestNormalizeSpacingRepairsCharacterSpacing(t *testing.T) {
	in := "I N V O I C E  T O T A L  1 0 0"
	got := NormalizeSpacing(in)
	want := "INVOICE TOTAL 100"
	if got != want {
		t.Fatalf("NormalizeSpacing(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeSpacingPassThroughBelowThreshold(t *testing.T) {
	in := "Invoice Total: 4500.00 due by March"
	if got := NormalizeSpacing(in); got != in {
		t.Fatalf("text below space threshold changed: %q -> %q", in, got)
	}
}

func TestNormalizeSpacingIdempotentOnOrdinaryText(t *testing.T) {
	in := "Invoice INV-100\nTotal: $4,500.00\nVendor: ACME Corporation"
	once := NormalizeSpacing(in)
	twice := NormalizeSpacing(once)
	if once != twice {
		t.Fatalf("normalizer not idempotent: %q vs %q", once, twice)
	}
}

func TestNormalizeSpacingEmpty(t *testing.T) {
	if got := NormalizeSpacing(""); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestCleanRecognized(t *testing.T) {
	in := "Invoice\r\n\tINV-1\n\n\n\n----------\nTotal: 10  \n"
	got := CleanRecognized(in)
	if strings.Contains(got, "\r") || strings.Contains(got, "\t") {
		t.Fatalf("control characters survived: %q", got)
	}
	if strings.Contains(got, "----------") {
		t.Fatalf("ruled-line noise survived: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Fatalf("blank runs not collapsed: %q", got)
	}
	if strings.HasSuffix(got, " ") || strings.HasSuffix(got, "\n") {
		t.Fatalf("trailing whitespace survived: %q", got)
	}
}
