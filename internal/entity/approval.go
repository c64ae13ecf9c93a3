package entity

import (
	"time"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/common"
)

// SLA is the urgency band and deadline assigned to an approval request.
type SLA struct {
	Priority constants.Priority `json:"priority"`
	Hours    int                `json:"sla_hours"`
	Deadline time.Time          `json:"deadline"`
	Discount bool               `json:"has_early_payment_discount"`
}

// Assignment names the approver for a tier. Manager-tier assignments carry a
// backup approver and an escalation window independent of the SLA deadline.
type Assignment struct {
	Level           constants.ApprovalLevel `json:"approval_level"`
	Approver        common.Approver         `json:"approver"`
	Backup          *common.Approver        `json:"backup,omitempty"`
	EscalationAfter time.Duration           `json:"escalation_after,omitempty"`
}

// ExceptionRoute is one exception tag handed off to a team with a required action.
type ExceptionRoute struct {
	Exception constants.ExceptionType `json:"exception_type"`
	Team      common.Team             `json:"team"`
	Action    string                  `json:"action_required"`
}

// ApprovalRequest is the routing stage's final product: one per record.
// Status is "approved" iff the tier is auto; an external approval decision
// later moves pending requests to a terminal approved/rejected status.
type ApprovalRequest struct {
	RequestID     string                  `json:"request_id"`
	InvoiceID     string                  `json:"invoice_id"`
	InvoiceNumber string                  `json:"invoice_number"`
	VendorName    string                  `json:"vendor_name"`
	Amount        float64                 `json:"amount"`
	Currency      string                  `json:"currency"`
	Level         constants.ApprovalLevel `json:"approval_level"`
	AssignedTo    string                  `json:"assigned_to"`
	Priority      constants.Priority      `json:"priority"`
	SLADeadline   time.Time               `json:"sla_deadline"`
	Status        constants.InvoiceStatus `json:"status"`
	Actions       []string                `json:"workflow_actions"`
	CreatedAt     time.Time               `json:"created_at"`
}
