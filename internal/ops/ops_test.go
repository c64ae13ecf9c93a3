package ops

import (
	"strings"
	"testing"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog("validation",
		Spec{
			Name:        "validate_amounts",
			Description: "Validate invoice amount consistency",
			Params: map[string]Param{
				"total_amount": {Type: "number", Description: "Invoice total"},
				"currency":     {Type: "string", Description: "ISO currency code"},
			},
			Required: []string{"total_amount"},
		},
		Spec{
			Name:        "check_duplicate",
			Description: "Check for prior submissions of the same invoice",
			Params: map[string]Param{
				"invoice_number": {Type: "string", Description: "Invoice number"},
			},
			Required: []string{"invoice_number"},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCatalogRejectsDuplicateOps(t *testing.T) {
	spec := Spec{Name: "validate_amounts", Params: map[string]Param{}}
	if _, err := NewCatalog("validation", spec, spec); err == nil {
		t.Fatal("expected duplicate op error")
	}
}

func TestValidateAcceptsGoodArgs(t *testing.T) {
	c := testCatalog(t)
	err := c.Validate("validate_amounts", map[string]any{"total_amount": 4500.00, "currency": "USD"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	c := testCatalog(t)
	if err := c.Validate("validate_amounts", map[string]any{"currency": "USD"}); err == nil {
		t.Fatal("expected missing-required error")
	}
}

func TestValidateRejectsWrongType(t *testing.T) {
	c := testCatalog(t)
	if err := c.Validate("validate_amounts", map[string]any{"total_amount": "a lot"}); err == nil {
		t.Fatal("expected type error")
	}
}

func TestValidateRejectsUnknownParam(t *testing.T) {
	c := testCatalog(t)
	err := c.Validate("check_duplicate", map[string]any{"invoice_number": "INV-1", "color": "blue"})
	if err == nil {
		t.Fatal("expected additional-properties error")
	}
}

func TestValidateUnknownOp(t *testing.T) {
	c := testCatalog(t)
	err := c.Validate("launch_rocket", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown op") {
		t.Fatalf("err = %v", err)
	}
}

func TestSpecsSorted(t *testing.T) {
	c := testCatalog(t)
	specs := c.Specs()
	if len(specs) != 2 {
		t.Fatalf("specs = %d", len(specs))
	}
	if specs[0].Name != "check_duplicate" || specs[1].Name != "validate_amounts" {
		t.Errorf("order = %s, %s", specs[0].Name, specs[1].Name)
	}
}

func TestLookup(t *testing.T) {
	c := testCatalog(t)
	spec, ok := c.Lookup("check_duplicate")
	if !ok || spec.Description == "" {
		t.Errorf("Lookup = %+v, %t", spec, ok)
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Error("Lookup(nope) = true")
	}
}
