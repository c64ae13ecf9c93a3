package common

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the immutable business-rule configuration shared by the
// validation and routing stages. Load it once at startup and pass it into
// the stage constructors; nothing mutates it afterwards.
type Rules struct {
	Validation ValidationRules `yaml:"validation"`
	Routing    RoutingRules    `yaml:"routing"`
}

// ValidationRules configures the six rule checks.
type ValidationRules struct {
	RequiredFields      []string `yaml:"required_fields"`
	MinAmount           float64  `yaml:"min_amount"`
	MaxAmount           float64  `yaml:"max_amount"`
	TolerancePct        float64  `yaml:"tolerance_pct"`
	MaxAgeDays          int      `yaml:"max_age_days"`
	AllowFutureDates    bool     `yaml:"allow_future_dates"`
	ApprovedVendors     []string `yaml:"approved_vendors"`
	DuplicateWindowDays int      `yaml:"duplicate_window_days"`
}

// RoutingRules configures tiers, SLAs and assignment.
type RoutingRules struct {
	AutoApproveLimit      float64             `yaml:"auto_approve_limit"`
	ManagerLimit          float64             `yaml:"manager_limit"`
	DirectorLimit         float64             `yaml:"director_limit"`
	RequireReferenceMatch bool                `yaml:"require_reference_match"`
	RequireVendorApproved bool                `yaml:"require_vendor_approved"`
	EscalationAfterHours  int                 `yaml:"escalation_after_hours"`
	Approvers             map[string]Approver `yaml:"approvers"`
	ExceptionTeams        map[string]Team     `yaml:"exception_teams"`
	FallbackTeam          string              `yaml:"fallback_team"`
}

// Approver identifies who signs off at a given tier.
type Approver struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Team is an exception hand-off target.
type Team struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	SLAHours int    `yaml:"sla_hours"`
}

// DefaultRules returns the stock rule set. A YAML rules file overlays these
// values; absent keys keep their defaults.
func DefaultRules() Rules {
	return Rules{
		Validation: ValidationRules{
			RequiredFields: []string{
				"vendor_name", "invoice_number", "invoice_date", "total_amount", "currency",
			},
			MinAmount:           0.01,
			MaxAmount:           10_000_000.00,
			TolerancePct:        0.02,
			MaxAgeDays:          365,
			AllowFutureDates:    false,
			DuplicateWindowDays: 90,
			ApprovedVendors: []string{
				"ACME Corporation",
				"TechSupply Inc",
				"Office Solutions Ltd",
				"Global Services Co",
				"Industrial Parts Supplier",
			},
		},
		Routing: RoutingRules{
			AutoApproveLimit:      5_000.00,
			ManagerLimit:          25_000.00,
			DirectorLimit:         100_000.00,
			RequireReferenceMatch: true,
			RequireVendorApproved: true,
			EscalationAfterHours:  24,
			Approvers: map[string]Approver{
				"auto":      {ID: "SYSTEM", Name: "Automated Approval", Email: "system@company.com"},
				"manager":   {ID: "MGR001", Name: "John Smith", Email: "john.smith@company.com"},
				"director":  {ID: "DIR001", Name: "Sarah Johnson", Email: "sarah.johnson@company.com"},
				"executive": {ID: "EXEC001", Name: "Michael Chen", Email: "michael.chen@company.com"},
			},
			ExceptionTeams: map[string]Team{
				"missing-reference":   {Name: "Procurement", Email: "procurement@company.com", SLAHours: 24},
				"vendor-not-approved": {Name: "Vendor Management", Email: "vendors@company.com", SLAHours: 48},
				"duplicate-suspected": {Name: "Accounts Payable", Email: "ap@company.com", SLAHours: 24},
				"amount-mismatch":     {Name: "Original Requester", Email: "", SLAHours: 48},
			},
			FallbackTeam: "Accounts Payable",
		},
	}
}

// LoadRules returns DefaultRules overlaid with the YAML file at path.
// An empty path returns the defaults unchanged.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return rules, fmt.Errorf("parse rules file %q: %w", path, err)
	}
	return rules, nil
}
