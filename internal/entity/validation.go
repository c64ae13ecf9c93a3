package entity

import (
	"time"

	"github.com/apexfin/invoice-pipeline/constants"
)

// RuleOutcome is the result of one business-rule check against a record.
// Immutable after creation.
type RuleOutcome struct {
	Rule    string                     `json:"rule"`
	Status  constants.ValidationStatus `json:"status"`
	Message string                     `json:"message"`
	Details map[string]any             `json:"details,omitempty"`
}

// Verdict aggregates all rule outcomes for one record.
type Verdict struct {
	InvoiceID   string                     `json:"invoice_id"`
	Overall     constants.ValidationStatus `json:"overall_status"`
	Outcomes    []RuleOutcome              `json:"outcomes"`
	Exceptions  []constants.ExceptionType  `json:"exceptions,omitempty"`
	AutoProcess bool                       `json:"can_auto_process"`
	ValidatedAt time.Time                  `json:"validated_at"`
}

// HasException reports whether the verdict carries the given tag.
func (v *Verdict) HasException(tag constants.ExceptionType) bool {
	for _, e := range v.Exceptions {
		if e == tag {
			return true
		}
	}
	return false
}

// RulePassed reports whether the named rule ran and passed.
func (v *Verdict) RulePassed(rule string) bool {
	for _, o := range v.Outcomes {
		if o.Rule == rule {
			return o.Status == constants.ValidationPassed
		}
	}
	return false
}
