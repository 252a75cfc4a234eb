package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrAccessDenied           = errors.New("access denied")
	ErrValidation             = errors.New("validation failed")
	ErrInvalidTransition      = errors.New("invalid workflow transition")
	ErrLocked                 = errors.New("assignment is locked")
	ErrWithdrawn              = errors.New("assignment is withdrawn")
	ErrConcurrentModification = errors.New("assignment was modified concurrently")
)

// TransitionError describes an operation rejected because of the current
// workflow state. It matches ErrInvalidTransition, ErrLocked or ErrWithdrawn
// through errors.Is.
type TransitionError struct {
	Operation Operation
	State     WorkflowState
	Reason    string
	Err       error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s: %s", e.Operation, e.State, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidTransition
	}
	return e.Err
}

func rejectf(op Operation, state WorkflowState, format string, args ...any) error {
	return &TransitionError{Operation: op, State: state, Reason: fmt.Sprintf(format, args...), Err: ErrInvalidTransition}
}
