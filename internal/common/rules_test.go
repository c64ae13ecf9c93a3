package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()

	v := rules.Validation
	if len(v.RequiredFields) != 5 {
		t.Errorf("required fields = %v", v.RequiredFields)
	}
	if v.TolerancePct != 0.02 || v.MaxAgeDays != 365 || v.DuplicateWindowDays != 90 {
		t.Errorf("validation rules = %+v", v)
	}

	r := rules.Routing
	if r.AutoApproveLimit != 5000 || r.ManagerLimit != 25_000 || r.DirectorLimit != 100_000 {
		t.Errorf("limits = %v/%v/%v", r.AutoApproveLimit, r.ManagerLimit, r.DirectorLimit)
	}
	if r.Approvers["manager"].ID != "MGR001" || r.Approvers["executive"].Name != "Michael Chen" {
		t.Errorf("approvers = %+v", r.Approvers)
	}
	if r.ExceptionTeams["missing-reference"].Name != "Procurement" {
		t.Errorf("exception teams = %+v", r.ExceptionTeams)
	}
	if r.FallbackTeam != "Accounts Payable" {
		t.Errorf("fallback team = %q", r.FallbackTeam)
	}
}

func TestLoadRulesEmptyPath(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatal(err)
	}
	if rules.Routing.AutoApproveLimit != 5000 {
		t.Errorf("expected defaults, got %+v", rules.Routing)
	}
}

func TestLoadRulesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	overlay := `
validation:
  max_age_days: 30
routing:
  auto_approve_limit: 1000
  fallback_team: Finance Ops
`
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	if rules.Validation.MaxAgeDays != 30 {
		t.Errorf("max age = %d, want overlay value", rules.Validation.MaxAgeDays)
	}
	if rules.Routing.AutoApproveLimit != 1000 {
		t.Errorf("auto limit = %v, want overlay value", rules.Routing.AutoApproveLimit)
	}
	if rules.Routing.FallbackTeam != "Finance Ops" {
		t.Errorf("fallback team = %q", rules.Routing.FallbackTeam)
	}
	// Keys absent from the overlay keep their defaults.
	if rules.Routing.ManagerLimit != 25_000 {
		t.Errorf("manager limit = %v, want default", rules.Routing.ManagerLimit)
	}
	if rules.Validation.TolerancePct != 0.02 {
		t.Errorf("tolerance = %v, want default", rules.Validation.TolerancePct)
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing rules file")
	}
}

func TestLoadRulesBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("routing: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected parse error")
	}
}
