package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"review-workflow/domain"
)

// memoryStore backs the repository fakes used by the service tests.
type memoryStore struct {
	mu          sync.Mutex
	assignments map[string]domain.Assignment
	history     []domain.WorkflowTransition
	templates   map[string]domain.QuestionnaireTemplate
	sections    []domain.QuestionSection
	answers     map[string]domain.SectionAnswer
	employees   map[string]domain.Employee
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		assignments: map[string]domain.Assignment{},
		templates:   map[string]domain.QuestionnaireTemplate{},
		answers:     map[string]domain.SectionAnswer{},
		employees:   map[string]domain.Employee{},
	}
}

func answerKey(assignmentID, sectionID string, role domain.CompletionRole) string {
	return assignmentID + "/" + sectionID + "/" + string(role)
}

type memoryAssignments struct{ s *memoryStore }

func (r memoryAssignments) Create(_ context.Context, a *domain.Assignment, t domain.WorkflowTransition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.assignments[a.ID] = *a
	r.s.history = append(r.s.history, t)
	return nil
}

func (r memoryAssignments) Get(_ context.Context, id string) (*domain.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (r memoryAssignments) List(_ context.Context, f AssignmentFilter) ([]domain.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range f.EmployeeIDs {
		wanted[id] = true
	}
	var out []domain.Assignment
	for _, a := range r.s.assignments {
		if f.All || wanted[a.EmployeeID] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryAssignments) Update(_ context.Context, a *domain.Assignment, changes domain.ChangeSet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.assignments[a.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != a.Version {
		return domain.ErrConcurrentModification
	}
	a.Version++
	a.LastRemindedAt = stored.LastRemindedAt
	r.s.assignments[a.ID] = *a
	if changes.Transition != nil {
		r.s.history = append(r.s.history, *changes.Transition)
	}
	if changes.Answer != nil {
		ans := *changes.Answer
		ans.UpdatedAt = time.Now()
		r.s.answers[answerKey(ans.AssignmentID, ans.SectionID, ans.Role)] = ans
	}
	if changes.Section != nil {
		r.s.sections = append(r.s.sections, *changes.Section)
	}
	return nil
}

func (r memoryAssignments) History(_ context.Context, assignmentID string) ([]domain.WorkflowTransition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.WorkflowTransition
	for _, t := range r.s.history {
		if t.AssignmentID == assignmentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memoryAssignments) ListDue(_ context.Context, before, remindedBefore time.Time) ([]domain.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Assignment
	for _, a := range r.s.assignments {
		if a.DueDate == nil || !a.DueDate.Before(before) {
			continue
		}
		if a.LastRemindedAt != nil && !a.LastRemindedAt.Before(remindedBefore) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r memoryAssignments) MarkReminded(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.LastRemindedAt = &at
	r.s.assignments[id] = a
	return nil
}

type memoryTemplates struct{ s *memoryStore }

func (r memoryTemplates) Get(_ context.Context, id string) (*domain.QuestionnaireTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.templates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r memoryTemplates) Sections(_ context.Context, templateID, assignmentID string) ([]domain.QuestionSection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.QuestionSection
	out = append(out, r.s.templates[templateID].Sections...)
	for _, sec := range r.s.sections {
		if sec.AssignmentID != nil && *sec.AssignmentID == assignmentID {
			out = append(out, sec)
		}
	}
	return out, nil
}

type memoryAnswers struct{ s *memoryStore }

func (r memoryAnswers) ListByAssignment(_ context.Context, assignmentID string) ([]domain.SectionAnswer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.SectionAnswer
	for _, a := range r.s.answers {
		if a.AssignmentID == assignmentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memoryAnswers) Get(_ context.Context, assignmentID, sectionID string, role domain.CompletionRole) (*domain.SectionAnswer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.answers[answerKey(assignmentID, sectionID, role)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

type memoryDirectory struct{ s *memoryStore }

func (d memoryDirectory) RoleOf(_ context.Context, userID string) (domain.ApplicationRole, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	e, ok := d.s.employees[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return e.Role, nil
}

func (d memoryDirectory) IsDirectManager(_ context.Context, managerID, employeeID string) (bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	e, ok := d.s.employees[employeeID]
	if !ok {
		return false, domain.ErrNotFound
	}
	return e.ManagerID != nil && *e.ManagerID == managerID, nil
}

func (d memoryDirectory) DirectReports(_ context.Context, managerID string) ([]string, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	var out []string
	for _, e := range d.s.employees {
		if e.ManagerID != nil && *e.ManagerID == managerID {
			out = append(out, e.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.WorkflowEvent
	fail   bool
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.WorkflowEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) operations() []domain.Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Operation
	for _, e := range p.events {
		out = append(out, e.Operation)
	}
	return out
}
