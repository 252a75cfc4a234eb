package domain

import "fmt"

// WorkflowState is the lifecycle stage of an assignment.
type WorkflowState string

const (
	StateAssigned                WorkflowState = "Assigned"
	StateEmployeeInProgress      WorkflowState = "EmployeeInProgress"
	StateManagerInProgress       WorkflowState = "ManagerInProgress"
	StateBothInProgress          WorkflowState = "BothInProgress"
	StateEmployeeSubmitted       WorkflowState = "EmployeeSubmitted"
	StateManagerSubmitted        WorkflowState = "ManagerSubmitted"
	StateBothSubmitted           WorkflowState = "BothSubmitted"
	StateInReview                WorkflowState = "InReview"
	StateReviewFinished          WorkflowState = "ReviewFinished"
	StateEmployeeReviewConfirmed WorkflowState = "EmployeeReviewConfirmed"
	StateManagerReviewConfirmed  WorkflowState = "ManagerReviewConfirmed"
	StateFinalized               WorkflowState = "Finalized"
)

// stateRank orders states by phase. States sharing a rank are reached
// independently per role.
var stateRank = map[WorkflowState]int{
	StateAssigned:                0,
	StateEmployeeInProgress:      1,
	StateManagerInProgress:       1,
	StateBothInProgress:          1,
	StateEmployeeSubmitted:       2,
	StateManagerSubmitted:        2,
	StateBothSubmitted:           2,
	StateInReview:                3,
	StateReviewFinished:          4,
	StateEmployeeReviewConfirmed: 5,
	StateManagerReviewConfirmed:  5,
	StateFinalized:               6,
}

var reopenTargets = map[WorkflowState]bool{
	StateAssigned:           true,
	StateEmployeeInProgress: true,
	StateManagerInProgress:  true,
	StateBothInProgress:     true,
	StateInReview:           true,
}

// AllStates lists every state in lifecycle order.
func AllStates() []WorkflowState {
	return []WorkflowState{
		StateAssigned,
		StateEmployeeInProgress,
		StateManagerInProgress,
		StateBothInProgress,
		StateEmployeeSubmitted,
		StateManagerSubmitted,
		StateBothSubmitted,
		StateInReview,
		StateReviewFinished,
		StateEmployeeReviewConfirmed,
		StateManagerReviewConfirmed,
		StateFinalized,
	}
}

// ParseWorkflowState converts an external value into a WorkflowState.
func ParseWorkflowState(v string) (WorkflowState, error) {
	s := WorkflowState(v)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: unknown workflow state %q", ErrValidation, v)
	}
	return s, nil
}

func (s WorkflowState) String() string {
	return string(s)
}

func (s WorkflowState) IsValid() bool {
	_, ok := stateRank[s]
	return ok
}

// Rank returns the phase index of the state, or -1 when unknown.
func (s WorkflowState) Rank() int {
	r, ok := stateRank[s]
	if !ok {
		return -1
	}
	return r
}

// IsPreReview reports whether the state comes before the review meeting.
func (s WorkflowState) IsPreReview() bool {
	r := s.Rank()
	return r >= 0 && r < stateRank[StateInReview]
}

// IsPostReview reports whether the review meeting has been concluded.
// Every answer is visible to every party in these states.
func (s WorkflowState) IsPostReview() bool {
	return s.Rank() >= stateRank[StateReviewFinished]
}

func (s WorkflowState) IsTerminal() bool {
	return s == StateFinalized
}

// IsReopenTarget reports whether an administrative reopen may land on s.
func (s WorkflowState) IsReopenTarget() bool {
	return reopenTargets[s]
}

// derivePreReviewState merges the independent per-role progress into the
// combined state. A submission dominates the other party's progress.
func derivePreReviewState(employeeStarted, managerStarted, employeeSubmitted, managerSubmitted bool) WorkflowState {
	switch {
	case employeeSubmitted && managerSubmitted:
		return StateBothSubmitted
	case employeeSubmitted:
		return StateEmployeeSubmitted
	case managerSubmitted:
		return StateManagerSubmitted
	case employeeStarted && managerStarted:
		return StateBothInProgress
	case employeeStarted:
		return StateEmployeeInProgress
	case managerStarted:
		return StateManagerInProgress
	default:
		return StateAssigned
	}
}
