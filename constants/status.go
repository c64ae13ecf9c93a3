package constants

// InvoiceStatus is the canonical processing status for an invoice.
type InvoiceStatus string

// Stable values (store these exact strings in DB).
const (
	StatusReceived        InvoiceStatus = "received"
	StatusExtracted       InvoiceStatus = "extracted"
	StatusValidated       InvoiceStatus = "validated"
	StatusPendingApproval InvoiceStatus = "pending_approval"
	StatusApproved        InvoiceStatus = "approved"
	StatusRejected        InvoiceStatus = "rejected"
	StatusPaid            InvoiceStatus = "paid"
	StatusException       InvoiceStatus = "exception"
)

// ValidationStatus is the outcome of a single rule check, and of a whole
// validation run. Severity ordering: failed > warning > passed.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationWarning ValidationStatus = "warning"
	ValidationFailed  ValidationStatus = "failed"
)

// Worse reports whether s is more severe than other.
func (s ValidationStatus) Worse(other ValidationStatus) bool {
	return severity(s) > severity(other)
}

func severity(s ValidationStatus) int {
	switch s {
	case ValidationFailed:
		return 2
	case ValidationWarning:
		return 1
	default:
		return 0
	}
}

// ApprovalLevel is the tier an invoice must clear before payment.
// Collaborators consume these identifiers bit-exact.
type ApprovalLevel string

const (
	LevelAuto      ApprovalLevel = "auto"
	LevelManager   ApprovalLevel = "manager"
	LevelDirector  ApprovalLevel = "director"
	LevelExecutive ApprovalLevel = "executive"
	LevelException ApprovalLevel = "exception"
)

// ExceptionType tags a failed rule with the class of manual intervention it
// needs. Collaborators consume these identifiers bit-exact.
type ExceptionType string

const (
	ExceptionMissingReference  ExceptionType = "missing-reference"
	ExceptionVendorNotApproved ExceptionType = "vendor-not-approved"
	ExceptionDuplicate         ExceptionType = "duplicate-suspected"
	ExceptionAmountMismatch    ExceptionType = "amount-mismatch"
	ExceptionInvalidData       ExceptionType = "invalid-data"
)

// Priority is the SLA urgency band for an approval request.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)
