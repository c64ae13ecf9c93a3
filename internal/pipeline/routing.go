package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/apexfin/invoice-pipeline/constants"
	"github.com/apexfin/invoice-pipeline/internal/common"
	"github.com/apexfin/invoice-pipeline/internal/entity"
	"github.com/apexfin/invoice-pipeline/internal/trace"
)

// Workflow actions by request state.
var (
	autoApprovedActions = []string{"create-payment"}
	pendingActions      = []string{"approve", "reject", "request-info", "escalate", "delegate"}
)

// exceptionActions maps each exception tag to the action its handling team
// must take.
var exceptionActions = map[constants.ExceptionType]string{
	constants.ExceptionMissingReference:  "Create or locate a purchase order reference",
	constants.ExceptionVendorNotApproved: "Submit vendor for approval or find an alternative",
	constants.ExceptionDuplicate:         "Verify if duplicate or mark as valid",
	constants.ExceptionAmountMismatch:    "Reconcile amount difference with the requester",
	constants.ExceptionInvalidData:       "Correct invoice data or request a new invoice",
}

const defaultExceptionAction = "Review and resolve exception"

// RoutingStage derives the approval tier, SLA deadline, approver assignment
// and exception hand-off for a validated record, then assembles the approval
// request.
type RoutingStage struct {
	rules  common.RoutingRules
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewRoutingStage(rules common.RoutingRules, logger *slog.Logger) *RoutingStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoutingStage{
		rules:  rules,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return "APR-" + uuid.NewString() },
	}
}

// Run routes one record. Routing runs even when validation failed; in that
// case the tier is overridden to exception.
func (s *RoutingStage) Run(ctx context.Context, invoiceID string, record *entity.InvoiceData, verdict *entity.Verdict) (out RoutingOutput) {
	tr := trace.New("routing")
	out.Trace = tr
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pipeline.routing.panic", "invoice_id", invoiceID, "panic", r)
			out = RoutingOutput{Trace: tr, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if record == nil {
		out.Error = "no invoice data provided for routing"
		return out
	}

	amount := record.TotalAmount
	overall := constants.ValidationStatus("pending")
	var exceptions []constants.ExceptionType
	poMatched, vendorApproved := false, false
	if verdict != nil {
		overall = verdict.Overall
		exceptions = verdict.Exceptions
		poMatched = verdict.RulePassed(RulePOMatching)
		vendorApproved = verdict.RulePassed(RuleVendorVerification)
	}

	recordStep(tr, RoutingCatalog, s.logger,
		fmt.Sprintf("Invoice amount %.2f %s, validation %s", amount, record.Currency, overall),
		"First check whether this invoice qualifies for automatic approval",
		"check_auto_approval_eligibility",
		map[string]any{"amount": amount, "validation_status": string(overall)})
	out.AutoEligible = s.AutoApprovalEligible(amount, overall, poMatched, vendorApproved)

	var routes []entity.ExceptionRoute
	for _, exc := range exceptions {
		recordStep(tr, RoutingCatalog, s.logger,
			fmt.Sprintf("Exception found: %s", exc),
			"Route the exception to its handling team",
			"route_exception", map[string]any{"exception_type": string(exc)})
		routes = append(routes, s.RouteException(exc))
	}
	out.Routes = routes

	recordStep(tr, RoutingCatalog, s.logger,
		fmt.Sprintf("Auto-approval eligible: %t", out.AutoEligible),
		"Determine the required approval level from the amount",
		"determine_approval_level",
		map[string]any{"amount": amount, "currency": record.Currency})
	level := s.ApprovalLevel(amount)

	// Unresolved exceptions on a failed validation force the exception tier,
	// irrespective of amount.
	if len(exceptions) > 0 && overall == constants.ValidationFailed {
		level = constants.LevelException
	}

	recordStep(tr, RoutingCatalog, s.logger,
		fmt.Sprintf("Approval level: %s", level),
		"Calculate the SLA deadline for this invoice",
		"calculate_sla", map[string]any{"amount": amount, "has_discount": false})
	sla := s.CalculateSLA(amount, false)
	out.SLA = &sla

	recordStep(tr, RoutingCatalog, s.logger,
		fmt.Sprintf("SLA: %s priority, deadline %s", sla.Priority, sla.Deadline.Format("2006-01-02 15:04")),
		"Assign the approver for this level",
		"assign_approver", map[string]any{"approval_level": string(level)})
	assignment := s.AssignApprover(level)
	out.Assignment = &assignment

	recordStep(tr, RoutingCatalog, s.logger,
		fmt.Sprintf("Approver: %s", assignment.Approver.Name),
		"Create the final approval request",
		"create_approval_request",
		map[string]any{"approval_level": string(level), "priority": string(sla.Priority)})
	request := s.buildRequest(invoiceID, record, level, assignment, sla)
	out.Request = &request

	tr.Record(
		fmt.Sprintf("Approval request created: %s", request.RequestID),
		"Routing complete, returning results",
		"return_results", nil)

	out.Success = true
	s.logger.Info("pipeline.routing.done",
		"invoice_id", invoiceID,
		"level", level,
		"priority", sla.Priority,
		"assigned_to", request.AssignedTo,
		"status", request.Status)
	return out
}

// AutoApprovalEligible is true only if the amount is within the auto-approve
// ceiling, the configured PO-match and vendor-approval preconditions hold,
// and validation passed outright.
func (s *RoutingStage) AutoApprovalEligible(amount float64, overall constants.ValidationStatus, poMatched, vendorApproved bool) bool {
	if amount > s.rules.AutoApproveLimit {
		return false
	}
	if s.rules.RequireReferenceMatch && !poMatched {
		return false
	}
	if s.rules.RequireVendorApproved && !vendorApproved {
		return false
	}
	return overall == constants.ValidationPassed
}

// ApprovalLevel is a monotonic step function of the amount; ties at a
// threshold belong to the lower tier.
func (s *RoutingStage) ApprovalLevel(amount float64) constants.ApprovalLevel {
	switch {
	case amount <= s.rules.AutoApproveLimit:
		return constants.LevelAuto
	case amount <= s.rules.ManagerLimit:
		return constants.LevelManager
	case amount <= s.rules.DirectorLimit:
		return constants.LevelDirector
	default:
		return constants.LevelExecutive
	}
}

// CalculateSLA derives priority and allotted hours from the amount. An
// early-payment discount caps the window at 4 hours and forces critical.
func (s *RoutingStage) CalculateSLA(amount float64, hasDiscount bool) entity.SLA {
	var hours int
	var priority constants.Priority
	switch {
	case amount > 100_000:
		hours, priority = 4, constants.PriorityCritical
	case amount > 25_000:
		hours, priority = 8, constants.PriorityHigh
	case amount > 5_000:
		hours, priority = 24, constants.PriorityMedium
	default:
		hours, priority = 48, constants.PriorityNormal
	}
	if hasDiscount {
		if hours > 4 {
			hours = 4
		}
		priority = constants.PriorityCritical
	}
	now := s.now().UTC()
	return entity.SLA{
		Priority: priority,
		Hours:    hours,
		Deadline: now.Add(time.Duration(hours) * time.Hour),
		Discount: hasDiscount,
	}
}

// RouteException maps an exception tag to its handling team and required
// action. Unknown tags go to the fallback team.
func (s *RoutingStage) RouteException(exc constants.ExceptionType) entity.ExceptionRoute {
	team, ok := s.rules.ExceptionTeams[string(exc)]
	if !ok {
		team = common.Team{Name: s.rules.FallbackTeam, SLAHours: 24}
	}
	action, ok := exceptionActions[exc]
	if !ok {
		action = defaultExceptionAction
	}
	return entity.ExceptionRoute{Exception: exc, Team: team, Action: action}
}

// AssignApprover maps a tier to its approver. The manager tier carries the
// director as backup plus a fixed escalation window.
func (s *RoutingStage) AssignApprover(level constants.ApprovalLevel) entity.Assignment {
	approver, ok := s.rules.Approvers[string(level)]
	if !ok {
		// Tiers without a dedicated approver (exception) land with the manager.
		approver = s.rules.Approvers[string(constants.LevelManager)]
	}
	assignment := entity.Assignment{Level: level, Approver: approver}
	if level == constants.LevelManager {
		if backup, ok := s.rules.Approvers[string(constants.LevelDirector)]; ok {
			assignment.Backup = &backup
		}
		assignment.EscalationAfter = time.Duration(s.rules.EscalationAfterHours) * time.Hour
	}
	return assignment
}

func (s *RoutingStage) buildRequest(invoiceID string, record *entity.InvoiceData, level constants.ApprovalLevel, assignment entity.Assignment, sla entity.SLA) entity.ApprovalRequest {
	status := constants.StatusPendingApproval
	actions := pendingActions
	if level == constants.LevelAuto {
		status = constants.StatusApproved
		actions = autoApprovedActions
	}
	return entity.ApprovalRequest{
		RequestID:     s.newID(),
		InvoiceID:     invoiceID,
		InvoiceNumber: record.InvoiceNumber,
		VendorName:    record.VendorName,
		Amount:        record.TotalAmount,
		Currency:      record.Currency,
		Level:         level,
		AssignedTo:    assignment.Approver.Name,
		Priority:      sla.Priority,
		SLADeadline:   sla.Deadline,
		Status:        status,
		Actions:       actions,
		CreatedAt:     s.now().UTC(),
	}
}
