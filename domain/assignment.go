package domain

import "time"

// Assignment is one questionnaire template assigned to one employee.
type Assignment struct {
	ID            string        `gorm:"type:char(36);primaryKey" json:"id"`
	EmployeeID    string        `gorm:"type:char(36);not null;index" json:"employee_id"`
	TemplateID    string        `gorm:"type:char(36);not null;index" json:"template_id"`
	AssignedBy    string        `gorm:"type:char(36)" json:"assigned_by"`
	WorkflowState WorkflowState `gorm:"type:varchar(40);not null;index" json:"workflow_state"`
	DueDate       *time.Time    `json:"due_date,omitempty"`

	EmployeeStartedAt *time.Time `json:"employee_started_at,omitempty"`
	ManagerStartedAt  *time.Time `json:"manager_started_at,omitempty"`

	EmployeeSubmittedBy *string    `gorm:"type:char(36)" json:"employee_submitted_by,omitempty"`
	EmployeeSubmittedAt *time.Time `json:"employee_submitted_at,omitempty"`
	ManagerSubmittedBy  *string    `gorm:"type:char(36)" json:"manager_submitted_by,omitempty"`
	ManagerSubmittedAt  *time.Time `json:"manager_submitted_at,omitempty"`

	ReviewInitiatedBy *string    `gorm:"type:char(36)" json:"review_initiated_by,omitempty"`
	ReviewInitiatedAt *time.Time `json:"review_initiated_at,omitempty"`
	ReviewFinishedBy  *string    `gorm:"type:char(36)" json:"review_finished_by,omitempty"`
	ReviewFinishedAt  *time.Time `json:"review_finished_at,omitempty"`
	ReviewSummary     string     `gorm:"type:text" json:"review_summary,omitempty"`

	EmployeeReviewConfirmedBy *string    `gorm:"type:char(36)" json:"employee_review_confirmed_by,omitempty"`
	EmployeeReviewConfirmedAt *time.Time `json:"employee_review_confirmed_at,omitempty"`
	EmployeeReviewComments    string     `gorm:"type:text" json:"employee_review_comments,omitempty"`
	ManagerReviewConfirmedBy  *string    `gorm:"type:char(36)" json:"manager_review_confirmed_by,omitempty"`
	ManagerReviewConfirmedAt  *time.Time `json:"manager_review_confirmed_at,omitempty"`

	FinalizedBy *string    `gorm:"type:char(36)" json:"finalized_by,omitempty"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	IsLocked    bool       `gorm:"not null;default:false" json:"is_locked"`

	// Only the most recent reopen is kept here; the full trail lives in
	// workflow_transitions.
	LastReopenedBy        *string          `gorm:"type:char(36)" json:"last_reopened_by,omitempty"`
	LastReopenedByRole    *ApplicationRole `gorm:"type:varchar(20)" json:"last_reopened_by_role,omitempty"`
	LastReopenedAt        *time.Time       `json:"last_reopened_at,omitempty"`
	LastReopenReason      string           `gorm:"type:text" json:"last_reopen_reason,omitempty"`
	LastReopenedFromState *WorkflowState   `gorm:"type:varchar(40)" json:"last_reopened_from_state,omitempty"`

	IsWithdrawn      bool       `gorm:"not null;default:false;index" json:"is_withdrawn"`
	WithdrawnBy      *string    `gorm:"type:char(36)" json:"withdrawn_by,omitempty"`
	WithdrawnAt      *time.Time `json:"withdrawn_at,omitempty"`
	WithdrawalReason string     `gorm:"type:text" json:"withdrawal_reason,omitempty"`

	// Set by the reminder sweep only; not part of the versioned workflow state.
	LastRemindedAt *time.Time `json:"last_reminded_at,omitempty"`

	Version   int       `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOverdue reports whether the due date passed while one of the parties still
// owes a submission.
func (a *Assignment) IsOverdue(now time.Time) bool {
	if a.DueDate == nil || a.IsWithdrawn || !a.WorkflowState.IsPreReview() {
		return false
	}
	if a.EmployeeSubmittedAt != nil && a.ManagerSubmittedAt != nil {
		return false
	}
	return now.After(*a.DueDate)
}
