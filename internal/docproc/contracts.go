package docproc

import (
	"context"
	"time"
)

// Method identifiers for text extraction.
const (
	MethodDirectText  = "direct-text"
	MethodRecognition = "recognition"
)

// TextExtractor turns a document file into raw text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (TextResult, error)
	Method() string
}

// TextResult is the outcome of one text extraction attempt.
type TextResult struct {
	Text     string
	Pages    int
	Method   string
	Duration time.Duration
	Warnings []string
}

// Empty reports whether the extraction produced no usable text.
func (r TextResult) Empty() bool {
	for _, c := range r.Text {
		if c != ' ' && c != '\n' && c != '\t' && c != '\f' && c != '\r' {
			return false
		}
	}
	return true
}
