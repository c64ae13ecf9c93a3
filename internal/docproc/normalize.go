package docproc

import (
	"regexp"
	"strings"
)

// spaceRatioThreshold is the proportion of space characters above which the
// text is assumed to carry the per-character spacing artifact some PDF text
// backends produce ("I N V O I C E  T O T A L").
const spaceRatioThreshold = 0.3

const wordBoundaryToken = "<<<SPACE>>>"

var reMultiSpace = regexp.MustCompile(`\s{2,}`)

// NormalizeSpacing repairs character-spacing artifacts in extracted text.
// When more than 30% of the text is spaces, runs of two or more spaces are
// treated as true word boundaries and single spaces as inter-character noise.
// This is a heuristic and not reversible: legitimately space-sparse text that
// crosses the threshold will be damaged, which surfaces later as a low field
// extraction confidence. Below the threshold the text passes through
// unchanged, so the function is idempotent on ordinary text.
func NormalizeSpacing(text string) string {
	if len(text) == 0 {
		return text
	}
	ratio := float64(strings.Count(text, " ")) / float64(len(text))
	if ratio <= spaceRatioThreshold {
		return text
	}

	normalized := reMultiSpace.ReplaceAllString(text, wordBoundaryToken)
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, wordBoundaryToken, " ")
	return strings.TrimSpace(normalized)
}

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reBoxNoise   = regexp.MustCompile(`(?m)^\s*[_\-]{3,}\s*$`)
)

// CleanRecognized collapses noisy whitespace in recognition output.
// Conservative: keeps line breaks; collapses >2 newlines into a single blank
// line and strips ruled-line noise.
func CleanRecognized(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
