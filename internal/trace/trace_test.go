package trace

import (
	"strings"
	"testing"
	"time"
)

func TestRecordAssignsSequence(t *testing.T) {
	tr := New("extraction")
	first := tr.Record("saw a PDF", "extract its text", "extract_direct_text", map[string]any{"document_path": "/tmp/a.pdf"})
	second := tr.Record("got 1200 characters", "parse the fields", "parse_invoice_fields", nil)

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seq = %d, %d", first.Seq, second.Seq)
	}
	if len(tr.Steps) != 2 {
		t.Fatalf("steps = %d", len(tr.Steps))
	}
	if tr.Steps[0].Op != "extract_direct_text" {
		t.Errorf("op = %q", tr.Steps[0].Op)
	}
}

func TestNewAtUsesInjectedClock(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewAt("validation", func() time.Time { return at })
	step := tr.Record("obs", "why", "validate_amounts", nil)
	if !step.At.Equal(at) {
		t.Errorf("At = %v, want %v", step.At, at)
	}
}

func TestOps(t *testing.T) {
	tr := New("routing")
	tr.Record("a", "b", "determine_approval_level", nil)
	tr.Record("c", "d", "assign_approver", nil)

	ops := tr.Ops()
	if len(ops) != 2 || ops[0] != "determine_approval_level" || ops[1] != "assign_approver" {
		t.Errorf("ops = %v", ops)
	}
}

func TestReset(t *testing.T) {
	tr := New("validation")
	tr.Record("a", "b", "check_duplicate", nil)
	tr.Reset()
	if len(tr.Steps) != 0 {
		t.Errorf("steps after reset = %d", len(tr.Steps))
	}
	if step := tr.Record("c", "d", "check_duplicate", nil); step.Seq != 1 {
		t.Errorf("seq restarts at %d", step.Seq)
	}
}

func TestString(t *testing.T) {
	tr := New("extraction")
	tr.Record("saw a PDF", "extract its text", "extract_direct_text", nil)
	s := tr.String()
	for _, want := range []string{"=== extraction ===", "Step 1", "Observation: saw a PDF", "Op: extract_direct_text"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q:\n%s", want, s)
		}
	}
}
