package domain

import (
	"time"

	"github.com/google/uuid"
)

// Operation names a workflow command.
type Operation string

const (
	OpCreate         Operation = "create"
	OpSaveAnswer     Operation = "save_answer"
	OpAddSection     Operation = "add_section"
	OpSubmit         Operation = "submit"
	OpInitiateReview Operation = "initiate_review"
	OpFinishReview   Operation = "finish_review"
	OpConfirmReview  Operation = "confirm_review"
	OpFinalize       Operation = "finalize"
	OpReopen         Operation = "reopen"
	OpWithdraw       Operation = "withdraw"
	OpRemind         Operation = "reminder"
)

// WorkflowTransition is an append-only history row written alongside every
// assignment change.
type WorkflowTransition struct {
	ID           string          `gorm:"type:char(36);primaryKey" json:"id"`
	AssignmentID string          `gorm:"type:char(36);not null;index" json:"assignment_id"`
	Operation    Operation       `gorm:"type:varchar(40);not null" json:"operation"`
	FromState    WorkflowState   `gorm:"type:varchar(40)" json:"from_state"`
	ToState      WorkflowState   `gorm:"type:varchar(40);not null" json:"to_state"`
	ActorID      string          `gorm:"type:char(36);not null" json:"actor_id"`
	ActorRole    ApplicationRole `gorm:"type:varchar(20)" json:"actor_role"`
	Reason       string          `gorm:"type:text" json:"reason,omitempty"`
	OccurredAt   time.Time       `gorm:"not null;index" json:"occurred_at"`
}

// NewTransition records a change of a from its previous state.
func NewTransition(a *Assignment, from WorkflowState, op Operation, actor Principal, reason string, at time.Time) WorkflowTransition {
	return WorkflowTransition{
		ID:           uuid.NewString(),
		AssignmentID: a.ID,
		Operation:    op,
		FromState:    from,
		ToState:      a.WorkflowState,
		ActorID:      actor.UserID,
		ActorRole:    actor.Role,
		Reason:       reason,
		OccurredAt:   at,
	}
}

// WorkflowEvent is published after a transition has been persisted.
type WorkflowEvent struct {
	ID           string        `json:"id"`
	AssignmentID string        `json:"assignment_id"`
	EmployeeID   string        `json:"employee_id"`
	Operation    Operation     `json:"operation"`
	FromState    WorkflowState `json:"from_state,omitempty"`
	ToState      WorkflowState `json:"to_state"`
	ActorID      string        `json:"actor_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// EventFor builds the event announcing t.
func EventFor(a *Assignment, t WorkflowTransition) WorkflowEvent {
	return WorkflowEvent{
		ID:           uuid.NewString(),
		AssignmentID: a.ID,
		EmployeeID:   a.EmployeeID,
		Operation:    t.Operation,
		FromState:    t.FromState,
		ToState:      t.ToState,
		ActorID:      t.ActorID,
		Reason:       t.Reason,
		OccurredAt:   t.OccurredAt,
	}
}

// ChangeSet is persisted atomically with an assignment update.
type ChangeSet struct {
	Transition *WorkflowTransition
	Answer     *SectionAnswer
	Section    *QuestionSection
}
