package domain

import (
	"fmt"
	"strings"
	"time"
)

// NewAssignment creates an assignment in the Assigned state.
func NewAssignment(id, employeeID, templateID, assignedBy string, dueDate *time.Time) *Assignment {
	return &Assignment{
		ID:            id,
		EmployeeID:    employeeID,
		TemplateID:    templateID,
		AssignedBy:    assignedBy,
		WorkflowState: StateAssigned,
		DueDate:       dueDate,
		Version:       1,
	}
}

// ensureMutable rejects every operation on withdrawn or locked assignments.
func (a *Assignment) ensureMutable(op Operation) error {
	if a.IsWithdrawn {
		return &TransitionError{Operation: op, State: a.WorkflowState, Reason: "assignment was withdrawn", Err: ErrWithdrawn}
	}
	if a.IsLocked {
		return &TransitionError{Operation: op, State: a.WorkflowState, Reason: "assignment is finalized and locked", Err: ErrLocked}
	}
	return nil
}

func (a *Assignment) submitted(role CompletionRole) bool {
	if role == CompletionEmployee {
		return a.EmployeeSubmittedAt != nil
	}
	return a.ManagerSubmittedAt != nil
}

func (a *Assignment) rederive() {
	a.WorkflowState = derivePreReviewState(
		a.EmployeeStartedAt != nil,
		a.ManagerStartedAt != nil,
		a.EmployeeSubmittedAt != nil,
		a.ManagerSubmittedAt != nil,
	)
}

// CanEdit reports whether responder may change answers right now.
func (a *Assignment) CanEdit(responder CompletionRole) error {
	if err := a.ensureMutable(OpSaveAnswer); err != nil {
		return err
	}
	if !responder.IsResponder() {
		return fmt.Errorf("%w: invalid responder %q", ErrValidation, responder)
	}
	switch {
	case a.WorkflowState.IsPreReview():
		if a.submitted(responder) {
			return rejectf(OpSaveAnswer, a.WorkflowState, "%s answers were already submitted", responder)
		}
		return nil
	case a.WorkflowState == StateInReview && responder == CompletionManager:
		// the manager edits during the review meeting
		return nil
	}
	return rejectf(OpSaveAnswer, a.WorkflowState, "answers can no longer be edited by %s", responder)
}

// RecordProgress marks that responder started answering.
func (a *Assignment) RecordProgress(responder CompletionRole, at time.Time) error {
	if err := a.CanEdit(responder); err != nil {
		return err
	}
	if a.WorkflowState == StateInReview {
		return nil
	}
	switch responder {
	case CompletionEmployee:
		if a.EmployeeStartedAt == nil {
			a.EmployeeStartedAt = &at
		}
	case CompletionManager:
		if a.ManagerStartedAt == nil {
			a.ManagerStartedAt = &at
		}
	}
	a.rederive()
	return nil
}

// CanAddSection reports whether instance-specific sections may still be added.
func (a *Assignment) CanAddSection() error {
	if err := a.ensureMutable(OpAddSection); err != nil {
		return err
	}
	if a.EmployeeSubmittedAt != nil || a.ManagerSubmittedAt != nil || !a.WorkflowState.IsPreReview() {
		return rejectf(OpAddSection, a.WorkflowState, "sections can only be added before any submission")
	}
	return nil
}

// Submit records the submission of one party.
func (a *Assignment) Submit(responder CompletionRole, by string, at time.Time) error {
	if err := a.ensureMutable(OpSubmit); err != nil {
		return err
	}
	if !responder.IsResponder() {
		return fmt.Errorf("%w: invalid responder %q", ErrValidation, responder)
	}
	if !a.WorkflowState.IsPreReview() {
		return rejectf(OpSubmit, a.WorkflowState, "submissions are closed")
	}
	if a.submitted(responder) {
		return rejectf(OpSubmit, a.WorkflowState, "%s already submitted", responder)
	}
	switch responder {
	case CompletionEmployee:
		a.EmployeeSubmittedBy, a.EmployeeSubmittedAt = &by, &at
		if a.EmployeeStartedAt == nil {
			a.EmployeeStartedAt = &at
		}
	case CompletionManager:
		a.ManagerSubmittedBy, a.ManagerSubmittedAt = &by, &at
		if a.ManagerStartedAt == nil {
			a.ManagerStartedAt = &at
		}
	}
	a.rederive()
	return nil
}

// InitiateReview opens the review meeting. The manager's answers must be in.
func (a *Assignment) InitiateReview(by string, at time.Time) error {
	if err := a.ensureMutable(OpInitiateReview); err != nil {
		return err
	}
	if a.WorkflowState != StateManagerSubmitted && a.WorkflowState != StateBothSubmitted {
		return rejectf(OpInitiateReview, a.WorkflowState, "manager answers must be submitted first")
	}
	a.ReviewInitiatedBy, a.ReviewInitiatedAt = &by, &at
	a.WorkflowState = StateInReview
	return nil
}

// FinishReview closes the review meeting.
func (a *Assignment) FinishReview(by string, at time.Time, summary string) error {
	if err := a.ensureMutable(OpFinishReview); err != nil {
		return err
	}
	if a.WorkflowState != StateInReview {
		return rejectf(OpFinishReview, a.WorkflowState, "no review in progress")
	}
	a.ReviewFinishedBy, a.ReviewFinishedAt = &by, &at
	a.ReviewSummary = strings.TrimSpace(summary)
	a.WorkflowState = StateReviewFinished
	return nil
}

// ConfirmReview records one party's confirmation of the review outcome.
func (a *Assignment) ConfirmReview(responder CompletionRole, by string, at time.Time, comments string) error {
	if err := a.ensureMutable(OpConfirmReview); err != nil {
		return err
	}
	switch a.WorkflowState {
	case StateReviewFinished, StateEmployeeReviewConfirmed, StateManagerReviewConfirmed:
	default:
		return rejectf(OpConfirmReview, a.WorkflowState, "review is not awaiting confirmation")
	}
	switch responder {
	case CompletionEmployee:
		if a.EmployeeReviewConfirmedAt != nil {
			return rejectf(OpConfirmReview, a.WorkflowState, "employee already confirmed")
		}
		a.EmployeeReviewConfirmedBy, a.EmployeeReviewConfirmedAt = &by, &at
		a.EmployeeReviewComments = strings.TrimSpace(comments)
		a.WorkflowState = StateEmployeeReviewConfirmed
	case CompletionManager:
		if a.ManagerReviewConfirmedAt != nil {
			return rejectf(OpConfirmReview, a.WorkflowState, "manager already confirmed")
		}
		a.ManagerReviewConfirmedBy, a.ManagerReviewConfirmedAt = &by, &at
		a.WorkflowState = StateManagerReviewConfirmed
	default:
		return fmt.Errorf("%w: invalid responder %q", ErrValidation, responder)
	}
	return nil
}

// Finalize locks the assignment once both parties confirmed.
func (a *Assignment) Finalize(by string, at time.Time) error {
	if err := a.ensureMutable(OpFinalize); err != nil {
		return err
	}
	if a.EmployeeReviewConfirmedAt == nil || a.ManagerReviewConfirmedAt == nil {
		return rejectf(OpFinalize, a.WorkflowState, "both employee and manager must confirm the review")
	}
	a.FinalizedBy, a.FinalizedAt = &by, &at
	a.IsLocked = true
	a.WorkflowState = StateFinalized
	return nil
}

// Reopen moves the assignment back to an earlier state and records the audit
// trail. It is the only operation allowed on a locked assignment.
func (a *Assignment) Reopen(by Principal, at time.Time, target WorkflowState, reason string) error {
	if a.IsWithdrawn {
		return &TransitionError{Operation: OpReopen, State: a.WorkflowState, Reason: "assignment was withdrawn", Err: ErrWithdrawn}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: reopen reason is required", ErrValidation)
	}
	if !target.IsReopenTarget() {
		return rejectf(OpReopen, a.WorkflowState, "%s is not a reopen target", target)
	}
	if target.Rank() >= a.WorkflowState.Rank() {
		return rejectf(OpReopen, a.WorkflowState, "target %s is not earlier than the current state", target)
	}

	from := a.WorkflowState
	a.FinalizedBy, a.FinalizedAt = nil, nil
	a.IsLocked = false
	a.EmployeeReviewConfirmedBy, a.EmployeeReviewConfirmedAt = nil, nil
	a.EmployeeReviewComments = ""
	a.ManagerReviewConfirmedBy, a.ManagerReviewConfirmedAt = nil, nil
	a.ReviewFinishedBy, a.ReviewFinishedAt = nil, nil
	a.ReviewSummary = ""

	if target == StateInReview {
		a.WorkflowState = StateInReview
	} else {
		a.ReviewInitiatedBy, a.ReviewInitiatedAt = nil, nil
		a.EmployeeSubmittedBy, a.EmployeeSubmittedAt = nil, nil
		a.ManagerSubmittedBy, a.ManagerSubmittedAt = nil, nil
		employee := target == StateEmployeeInProgress || target == StateBothInProgress
		manager := target == StateManagerInProgress || target == StateBothInProgress
		if !employee {
			a.EmployeeStartedAt = nil
		} else if a.EmployeeStartedAt == nil {
			a.EmployeeStartedAt = &at
		}
		if !manager {
			a.ManagerStartedAt = nil
		} else if a.ManagerStartedAt == nil {
			a.ManagerStartedAt = &at
		}
		a.rederive()
	}

	userID, role := by.UserID, by.Role
	a.LastReopenedBy = &userID
	a.LastReopenedByRole = &role
	a.LastReopenedAt = &at
	a.LastReopenReason = reason
	a.LastReopenedFromState = &from
	return nil
}

// Withdraw cancels the assignment before completion.
func (a *Assignment) Withdraw(by string, at time.Time, reason string) error {
	if err := a.ensureMutable(OpWithdraw); err != nil {
		return err
	}
	if a.WorkflowState == StateFinalized {
		return rejectf(OpWithdraw, a.WorkflowState, "finalized assignments cannot be withdrawn")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: withdrawal reason is required", ErrValidation)
	}
	a.IsWithdrawn = true
	a.WithdrawnBy, a.WithdrawnAt = &by, &at
	a.WithdrawalReason = reason
	return nil
}
