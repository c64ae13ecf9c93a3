package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/common"
	"github.com/apexfin/invoice-pipeline/internal/entity"
	"github.com/apexfin/invoice-pipeline/internal/store"
	"github.com/apexfin/invoice-pipeline/internal/trace"
)

// Rule identifiers, stored with each outcome.
const (
	RuleRequiredFields     = "required_fields"
	RuleAmountValidation   = "amount_validation"
	RuleDateValidation     = "date_validation"
	RuleVendorVerification = "vendor_verification"
	RuleDuplicateCheck     = "duplicate_check"
	RulePOMatching         = "po_matching"
)

// ValidationStage runs the six business-rule checks against an extracted
// record and rolls them into a single verdict. Rule violations are data, not
// errors; only store failures abort the stage.
type ValidationStage struct {
	rules    common.ValidationRules
	invoices store.InvoiceStore
	refs     store.ReferenceStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewValidationStage(rules common.ValidationRules, invoices store.InvoiceStore, refs store.ReferenceStore, logger *slog.Logger) *ValidationStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidationStage{
		rules:    rules,
		invoices: invoices,
		refs:     refs,
		logger:   logger,
		now:      time.Now,
	}
}

// Run validates one record. The verdict's overall status is the worst of the
// six outcomes; exception tags are derived from failed rules.
func (s *ValidationStage) Run(ctx context.Context, invoiceID string, record *entity.InvoiceData) (out ValidationOutput) {
	tr := trace.New("validation")
	out.Trace = tr
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pipeline.validation.panic", "invoice_id", invoiceID, "panic", r)
			out = ValidationOutput{Trace: tr, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if record == nil {
		out.Error = "no invoice data provided for validation"
		return out
	}

	verdict := &entity.Verdict{
		InvoiceID:   invoiceID,
		Overall:     constants.ValidationPassed,
		ValidatedAt: s.now().UTC(),
	}

	type check struct {
		observation string
		rationale   string
		op          string
		input       map[string]any
		run         func(context.Context, *entity.InvoiceData) (entity.RuleOutcome, error)
		onFail      constants.ExceptionType
	}
	prev := "Received invoice data for validation"
	checks := []check{
		{
			observation: prev,
			rationale:   "First check that all required fields are present",
			op:          "validate_required_fields",
			input:       map[string]any{"invoice_number": record.InvoiceNumber},
			run:         s.checkRequiredFields,
			onFail:      constants.ExceptionInvalidData,
		},
		{
			rationale: "Now validate the financial amounts",
			op:        "validate_amounts",
			input:     map[string]any{"total_amount": record.TotalAmount},
			run:       s.checkAmounts,
			onFail:    constants.ExceptionAmountMismatch,
		},
		{
			rationale: "Check that the invoice dates are valid",
			op:        "validate_dates",
			input:     map[string]any{"invoice_date": record.InvoiceDate.Format("2006-01-02")},
			run:       s.checkDates,
		},
		{
			rationale: "Verify the vendor against the approved list",
			op:        "verify_vendor",
			input:     map[string]any{"vendor_name": record.VendorName},
			run:       s.verifyVendor,
			onFail:    constants.ExceptionVendorNotApproved,
		},
		{
			rationale: "Check whether this might be a duplicate invoice",
			op:        "check_duplicate",
			input: map[string]any{
				"vendor_name":    record.VendorName,
				"invoice_number": record.InvoiceNumber,
				"amount":         record.TotalAmount,
			},
			run:    s.checkDuplicate,
			onFail: constants.ExceptionDuplicate,
		},
		{
			rationale: "Attempt to match the invoice to a purchase order",
			op:        "match_purchase_order",
			input: map[string]any{
				"po_number":   record.PONumber,
				"vendor_name": record.VendorName,
				"amount":      record.TotalAmount,
			},
			run:    s.matchPurchaseOrder,
			onFail: constants.ExceptionMissingReference,
		},
	}

	for i, c := range checks {
		obs := c.observation
		if obs == "" {
			last := verdict.Outcomes[i-1]
			obs = fmt.Sprintf("%s check: %s", last.Rule, last.Status)
		}
		recordStep(tr, ValidationCatalog, s.logger, obs, c.rationale, c.op, c.input)

		outcome, err := c.run(ctx, record)
		if err != nil {
			s.logger.Error("pipeline.validation.check_failed", "invoice_id", invoiceID, "op", c.op, "error", err)
			out.Error = fmt.Sprintf("%s: %v", c.op, err)
			return out
		}
		verdict.Outcomes = append(verdict.Outcomes, outcome)
		if outcome.Status.Worse(verdict.Overall) {
			verdict.Overall = outcome.Status
		}
		if c.onFail != "" && outcome.Status == constants.ValidationFailed {
			verdict.Exceptions = append(verdict.Exceptions, c.onFail)
		}
	}

	verdict.AutoProcess = verdict.Overall == constants.ValidationPassed
	tr.Record(
		fmt.Sprintf("All validations complete, overall status %s", verdict.Overall),
		fmt.Sprintf("Found %d exceptions, returning verdict", len(verdict.Exceptions)),
		"return_results", nil)

	out.Verdict = verdict
	out.Success = verdict.Overall != constants.ValidationFailed
	s.logger.Info("pipeline.validation.done",
		"invoice_id", invoiceID,
		"overall", verdict.Overall,
		"exceptions", len(verdict.Exceptions))
	return out
}

func (s *ValidationStage) checkRequiredFields(_ context.Context, record *entity.InvoiceData) (entity.RuleOutcome, error) {
	var missing []string
	for _, field := range s.rules.RequiredFields {
		if !fieldPresent(record, field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return entity.RuleOutcome{
			Rule:    RuleRequiredFields,
			Status:  constants.ValidationFailed,
			Message: "Missing required fields: " + strings.Join(missing, ", "),
			Details: map[string]any{"missing_fields": missing},
		}, nil
	}
	return entity.RuleOutcome{
		Rule:    RuleRequiredFields,
		Status:  constants.ValidationPassed,
		Message: "All required fields present",
		Details: map[string]any{"fields_checked": s.rules.RequiredFields},
	}, nil
}

func fieldPresent(record *entity.InvoiceData, field string) bool {
	switch field {
	case "vendor_name":
		return strings.TrimSpace(record.VendorName) != ""
	case "invoice_number":
		return strings.TrimSpace(record.InvoiceNumber) != ""
	case "invoice_date":
		return !record.InvoiceDate.IsZero()
	case "total_amount":
		return record.TotalAmount != 0
	case "currency":
		return strings.TrimSpace(record.Currency) != ""
	case "po_number":
		return strings.TrimSpace(record.PONumber) != ""
	default:
		return true
	}
}

func (s *ValidationStage) checkAmounts(_ context.Context, record *entity.InvoiceData) (entity.RuleOutcome, error) {
	total, subtotal, tax := record.TotalAmount, record.Subtotal, record.TaxAmount
	var issues []string

	if total < s.rules.MinAmount {
		issues = append(issues, fmt.Sprintf("Total amount %.2f below minimum %.2f", total, s.rules.MinAmount))
	}
	if total > s.rules.MaxAmount {
		issues = append(issues, fmt.Sprintf("Total amount %.2f exceeds maximum %.2f", total, s.rules.MaxAmount))
	}
	if subtotal > 0 {
		expected := subtotal + tax
		// Tolerance is computed from the stated total, not the expected sum.
		tolerance := total * s.rules.TolerancePct
		if math.Abs(total-expected) > tolerance {
			issues = append(issues, fmt.Sprintf(
				"Amount mismatch: subtotal(%.2f) + tax(%.2f) = %.2f, but total is %.2f",
				subtotal, tax, expected, total))
		}
	}

	details := map[string]any{"total": total, "subtotal": subtotal, "tax": tax}
	if len(issues) > 0 {
		status := constants.ValidationWarning
		if len(issues) > 1 {
			status = constants.ValidationFailed
		}
		return entity.RuleOutcome{
			Rule:    RuleAmountValidation,
			Status:  status,
			Message: strings.Join(issues, "; "),
			Details: details,
		}, nil
	}
	return entity.RuleOutcome{
		Rule:    RuleAmountValidation,
		Status:  constants.ValidationPassed,
		Message: "Amount validation passed",
		Details: details,
	}, nil
}

func (s *ValidationStage) checkDates(_ context.Context, record *entity.InvoiceData) (entity.RuleOutcome, error) {
	if record.InvoiceDate.IsZero() {
		return entity.RuleOutcome{
			Rule:    RuleDateValidation,
			Status:  constants.ValidationFailed,
			Message: "Cannot parse invoice date",
		}, nil
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	invDate := record.InvoiceDate.UTC().Truncate(24 * time.Hour)
	var issues []string

	if invDate.After(today) && !s.rules.AllowFutureDates {
		issues = append(issues, fmt.Sprintf("Invoice date %s is in the future", invDate.Format("2006-01-02")))
	}
	if today.Sub(invDate) > time.Duration(s.rules.MaxAgeDays)*24*time.Hour {
		issues = append(issues, fmt.Sprintf("Invoice date %s is older than %d days", invDate.Format("2006-01-02"), s.rules.MaxAgeDays))
	}
	if record.DueDate != nil && record.DueDate.Before(invDate) {
		issues = append(issues, "Due date is before invoice date")
	}

	details := map[string]any{"invoice_date": invDate.Format("2006-01-02")}
	if record.DueDate != nil {
		details["due_date"] = record.DueDate.Format("2006-01-02")
	}
	if len(issues) > 0 {
		return entity.RuleOutcome{
			Rule:    RuleDateValidation,
			Status:  constants.ValidationFailed,
			Message: strings.Join(issues, "; "),
			Details: details,
		}, nil
	}
	return entity.RuleOutcome{
		Rule:    RuleDateValidation,
		Status:  constants.ValidationPassed,
		Message: "Date validation passed",
		Details: details,
	}, nil
}

func (s *ValidationStage) verifyVendor(_ context.Context, record *entity.InvoiceData) (entity.RuleOutcome, error) {
	vendorLower := strings.ToLower(record.VendorName)
	approved := false
	if vendorLower != "" {
		for _, name := range s.rules.ApprovedVendors {
			nameLower := strings.ToLower(name)
			if strings.Contains(vendorLower, nameLower) || strings.Contains(nameLower, vendorLower) {
				approved = true
				break
			}
		}
	}
	if approved {
		return entity.RuleOutcome{
			Rule:    RuleVendorVerification,
			Status:  constants.ValidationPassed,
			Message: fmt.Sprintf("Vendor %q is approved", record.VendorName),
			Details: map[string]any{"vendor_name": record.VendorName, "approved": true},
		}, nil
	}
	return entity.RuleOutcome{
		Rule:    RuleVendorVerification,
		Status:  constants.ValidationWarning,
		Message: fmt.Sprintf("Vendor %q not found in approved vendor list", record.VendorName),
		Details: map[string]any{
			"vendor_name":     record.VendorName,
			"approved":        false,
			"requires_action": "vendor_management_review",
		},
	}, nil
}

func (s *ValidationStage) checkDuplicate(ctx context.Context, record *entity.InvoiceData) (entity.RuleOutcome, error) {
	var since time.Time
	if s.rules.DuplicateWindowDays > 0 {
		since = s.now().UTC().AddDate(0, 0, -s.rules.DuplicateWindowDays)
	}
	processed, err := s.invoices.ListSince(ctx, since)
	if err != nil {
		return entity.RuleOutcome{}, fmt.Errorf("scan processed invoices: %w", err)
	}

	for _, prev := range processed {
		sameVendor := strings.EqualFold(prev.VendorName, record.VendorName)
		if sameVendor && strings.EqualFold(prev.InvoiceNumber, record.InvoiceNumber) {
			return entity.RuleOutcome{
				Rule:    RuleDuplicateCheck,
				Status:  constants.ValidationFailed,
				Message: fmt.Sprintf("Duplicate invoice detected: %s from %s", record.InvoiceNumber, record.VendorName),
				Details: map[string]any{"original_id": prev.ID, "is_duplicate": true},
			}, nil
		}
		if sameVendor && math.Abs(prev.TotalAmount-record.TotalAmount) < 0.01 {
			return entity.RuleOutcome{
				Rule:    RuleDuplicateCheck,
				Status:  constants.ValidationWarning,
				Message: "Potential duplicate: same vendor and amount found",
				Details: map[string]any{"original_id": prev.ID, "potential_duplicate": true},
			}, nil
		}
	}
	return entity.RuleOutcome{
		Rule:    RuleDuplicateCheck,
		Status:  constants.ValidationPassed,
		Message: "No duplicate detected",
		Details: map[string]any{"is_duplicate": false},
	}, nil
}

func (s *ValidationStage) matchPurchaseOrder(ctx context.Context, record *entity.InvoiceData) (entity.RuleOutcome, error) {
	pos, err := s.refs.ListPurchaseOrders(ctx)
	if err != nil {
		return entity.RuleOutcome{}, fmt.Errorf("list purchase orders: %w", err)
	}

	vendorLower := strings.ToLower(record.VendorName)
	var matched *entity.PurchaseOrder
	for i := range pos {
		po := &pos[i]
		if record.PONumber != "" && strings.EqualFold(po.PONumber, record.PONumber) {
			matched = po
			break
		}
		poVendor := strings.ToLower(po.VendorName)
		if vendorLower != "" && (strings.Contains(vendorLower, poVendor) || strings.Contains(poVendor, vendorLower)) {
			tolerance := po.TotalAmount * s.rules.TolerancePct
			if math.Abs(po.TotalAmount-record.TotalAmount) <= tolerance {
				matched = po
				break
			}
		}
	}

	if matched != nil {
		amountMatch := math.Abs(matched.TotalAmount-record.TotalAmount) <= matched.TotalAmount*s.rules.TolerancePct
		status := constants.ValidationPassed
		msg := fmt.Sprintf("Matched to PO %s", matched.PONumber)
		if !amountMatch {
			status = constants.ValidationWarning
			msg += " (amount variance detected)"
		}
		return entity.RuleOutcome{
			Rule:    RulePOMatching,
			Status:  status,
			Message: msg,
			Details: map[string]any{
				"po_number":      matched.PONumber,
				"po_amount":      matched.TotalAmount,
				"invoice_amount": record.TotalAmount,
				"variance":       record.TotalAmount - matched.TotalAmount,
				"matched":        true,
			},
		}, nil
	}

	if record.PONumber != "" {
		return entity.RuleOutcome{
			Rule:    RulePOMatching,
			Status:  constants.ValidationFailed,
			Message: fmt.Sprintf("PO %s not found in system", record.PONumber),
			Details: map[string]any{"po_number": record.PONumber, "matched": false},
		}, nil
	}
	return entity.RuleOutcome{
		Rule:    RulePOMatching,
		Status:  constants.ValidationWarning,
		Message: "No PO reference provided - requires manual verification",
		Details: map[string]any{"matched": false, "requires_action": "procurement_review"},
	}, nil
}
