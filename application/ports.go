package application

import (
	"context"
	"time"

	"review-workflow/domain"
)

// AssignmentFilter narrows ListAssignments. An empty EmployeeIDs with All
// unset matches nothing.
type AssignmentFilter struct {
	All         bool
	EmployeeIDs []string
}

type AssignmentRepository interface {
	Create(ctx context.Context, a *domain.Assignment, t domain.WorkflowTransition) error
	Get(ctx context.Context, id string) (*domain.Assignment, error)
	List(ctx context.Context, f AssignmentFilter) ([]domain.Assignment, error)
	// Update persists a together with changes when a.Version still matches
	// the stored row, and increments the version.
	Update(ctx context.Context, a *domain.Assignment, changes domain.ChangeSet) error
	History(ctx context.Context, assignmentID string) ([]domain.WorkflowTransition, error)
	// ListDue returns open assignments due before the given time that were
	// not reminded since remindedBefore.
	ListDue(ctx context.Context, before, remindedBefore time.Time) ([]domain.Assignment, error)
	MarkReminded(ctx context.Context, id string, at time.Time) error
}

type TemplateRepository interface {
	Get(ctx context.Context, id string) (*domain.QuestionnaireTemplate, error)
	// Sections returns the template sections plus the instance-specific
	// sections of the assignment, ordered.
	Sections(ctx context.Context, templateID, assignmentID string) ([]domain.QuestionSection, error)
}

type AnswerRepository interface {
	ListByAssignment(ctx context.Context, assignmentID string) ([]domain.SectionAnswer, error)
	Get(ctx context.Context, assignmentID, sectionID string, role domain.CompletionRole) (*domain.SectionAnswer, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e domain.WorkflowEvent) error
}
