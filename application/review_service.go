package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"review-workflow/domain"
)

// ReviewService runs every assignment operation through the same steps:
// authenticate, load, authorize, transition, persist, publish.
type ReviewService struct {
	assignments AssignmentRepository
	templates   TemplateRepository
	answers     AnswerRepository
	gate        *domain.AuthorizationGate
	events      EventPublisher
	log         logrus.FieldLogger
	now         func() time.Time
	remindEvery time.Duration
}

type Option func(*ReviewService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *ReviewService) { s.now = now }
}

// WithReminderInterval sets how long an overdue assignment waits before it is
// reminded again.
func WithReminderInterval(d time.Duration) Option {
	return func(s *ReviewService) {
		if d > 0 {
			s.remindEvery = d
		}
	}
}

func NewReviewService(
	assignments AssignmentRepository,
	templates TemplateRepository,
	answers AnswerRepository,
	gate *domain.AuthorizationGate,
	events EventPublisher,
	log logrus.FieldLogger,
	opts ...Option,
) *ReviewService {
	s := &ReviewService{
		assignments: assignments,
		templates:   templates,
		answers:     answers,
		gate:        gate,
		events:      events,
		log:         log,
		now:         time.Now,
		remindEvery: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResponseView is what a requester gets back for an assignment's answers.
type ResponseView struct {
	Assignment *domain.Assignment           `json:"assignment"`
	Viewer     domain.CompletionRole        `json:"viewer"`
	Sections   []domain.QuestionSection     `json:"sections"`
	Response   domain.QuestionnaireResponse `json:"response"`
}

type CreateAssignmentInput struct {
	EmployeeID string
	TemplateID string
	DueDate    *time.Time
}

type CustomSectionInput struct {
	Title          string
	Description    string
	CompletionRole string
}

func (s *ReviewService) CreateAssignment(ctx context.Context, principalID string, in CreateAssignmentInput) (*domain.Assignment, error) {
	p, err := s.gate.Authenticate(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.AuthorizeManager(ctx, p, in.EmployeeID); err != nil {
		return nil, err
	}
	if err := s.gate.RequireEmployee(ctx, in.EmployeeID); err != nil {
		return nil, err
	}
	if _, err := s.templates.Get(ctx, in.TemplateID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: template %s does not exist", domain.ErrValidation, in.TemplateID)
		}
		return nil, err
	}

	now := s.now()
	a := domain.NewAssignment(uuid.NewString(), in.EmployeeID, in.TemplateID, p.UserID, in.DueDate)
	t := domain.NewTransition(a, "", domain.OpCreate, p, "", now)
	if err := s.assignments.Create(ctx, a, t); err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}
	s.publish(ctx, a, t)
	return a, nil
}

func (s *ReviewService) ListAssignments(ctx context.Context, principalID string) ([]domain.Assignment, error) {
	p, err := s.gate.Authenticate(ctx, principalID)
	if err != nil {
		return nil, err
	}
	filter := AssignmentFilter{EmployeeIDs: []string{p.UserID}}
	switch {
	case p.IsElevated():
		filter = AssignmentFilter{All: true}
	case p.Role.IsManagerTier():
		reports, err := s.gate.DirectReports(ctx, p)
		if err != nil {
			return nil, err
		}
		filter.EmployeeIDs = append(filter.EmployeeIDs, reports...)
	}
	return s.assignments.List(ctx, filter)
}

func (s *ReviewService) GetAssignment(ctx context.Context, principalID, assignmentID string) (*domain.Assignment, error) {
	a, _, err := s.authorize(ctx, principalID, assignmentID)
	return a, err
}

// GetResponse returns the answers the requester may see in the current state.
func (s *ReviewService) GetResponse(ctx context.Context, principalID, assignmentID string) (*ResponseView, error) {
	a, grant, err := s.authorize(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	sections, err := s.templates.Sections(ctx, a.TemplateID, a.ID)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	answers, err := s.answers.ListByAssignment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	viewer := grant.Responder()
	log := s.log.WithFields(logrus.Fields{"assignment_id": a.ID, "viewer": viewer})
	return &ResponseView{
		Assignment: a,
		Viewer:     viewer,
		Sections:   domain.VisibleSections(a.WorkflowState, viewer, sections),
		Response:   domain.FilterResponse(log, a.WorkflowState, viewer, sections, domain.BuildResponse(a.ID, answers)),
	}, nil
}

// SaveSectionAnswer stores the requester's answer for one section.
func (s *ReviewService) SaveSectionAnswer(ctx context.Context, principalID, assignmentID, sectionID string, payload json.RawMessage) (*domain.Assignment, error) {
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: answer payload must be valid JSON", domain.ErrValidation)
	}
	if string(bytes.TrimSpace(payload)) == "null" {
		return nil, fmt.Errorf("%w: answer payload must not be null", domain.ErrValidation)
	}
	a, grant, err := s.authorize(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	section, err := s.findSection(ctx, a, sectionID)
	if err != nil {
		return nil, err
	}
	responder := grant.Responder()
	if !section.CompletionRole.Accepts(responder) {
		return nil, fmt.Errorf("%w: section %s is not answered by %s", domain.ErrAccessDenied, sectionID, responder)
	}

	now := s.now()
	from := a.WorkflowState
	if err := a.RecordProgress(responder, now); err != nil {
		return nil, err
	}

	answer, err := s.answers.Get(ctx, a.ID, sectionID, responder)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		answer = &domain.SectionAnswer{ID: uuid.NewString(), AssignmentID: a.ID, SectionID: sectionID, Role: responder}
	case err != nil:
		return nil, fmt.Errorf("load answer: %w", err)
	}
	answer.Payload = datatypes.JSON(payload)
	answer.AnsweredBy = grant.Principal.UserID

	changes := domain.ChangeSet{Answer: answer}
	if a.WorkflowState != from {
		t := domain.NewTransition(a, from, domain.OpSaveAnswer, grant.Principal, "", now)
		changes.Transition = &t
	}
	if err := s.assignments.Update(ctx, a, changes); err != nil {
		return nil, err
	}
	if changes.Transition != nil {
		s.publish(ctx, a, *changes.Transition)
	}
	return a, nil
}

// AddCustomSection attaches an instance-specific section to one assignment.
func (s *ReviewService) AddCustomSection(ctx context.Context, principalID, assignmentID string, in CustomSectionInput) (*domain.QuestionSection, error) {
	a, grant, err := s.authorizeManager(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	role, err := domain.ParseCompletionRole(in.CompletionRole)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: section title is required", domain.ErrValidation)
	}
	if err := a.CanAddSection(); err != nil {
		return nil, err
	}
	existing, err := s.templates.Sections(ctx, a.TemplateID, a.ID)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}

	now := s.now()
	assignmentRef := a.ID
	section := &domain.QuestionSection{
		ID:                 uuid.NewString(),
		AssignmentID:       &assignmentRef,
		Title:              title,
		Description:        strings.TrimSpace(in.Description),
		Order:              len(existing) + 1,
		CompletionRole:     role,
		IsInstanceSpecific: true,
	}
	t := domain.NewTransition(a, a.WorkflowState, domain.OpAddSection, grant.Principal, title, now)
	if err := s.assignments.Update(ctx, a, domain.ChangeSet{Section: section, Transition: &t}); err != nil {
		return nil, err
	}
	s.publish(ctx, a, t)
	return section, nil
}

func (s *ReviewService) Submit(ctx context.Context, principalID, assignmentID string) (*domain.Assignment, error) {
	a, grant, err := s.authorize(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, grant, domain.OpSubmit, "", func(now time.Time) error {
		return a.Submit(grant.Responder(), grant.Principal.UserID, now)
	})
}

func (s *ReviewService) InitiateReview(ctx context.Context, principalID, assignmentID string) (*domain.Assignment, error) {
	a, grant, err := s.authorizeManager(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, grant, domain.OpInitiateReview, "", func(now time.Time) error {
		return a.InitiateReview(grant.Principal.UserID, now)
	})
}

func (s *ReviewService) FinishReview(ctx context.Context, principalID, assignmentID, summary string) (*domain.Assignment, error) {
	a, grant, err := s.authorizeManager(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, grant, domain.OpFinishReview, "", func(now time.Time) error {
		return a.FinishReview(grant.Principal.UserID, now, summary)
	})
}

func (s *ReviewService) ConfirmReview(ctx context.Context, principalID, assignmentID, comments string) (*domain.Assignment, error) {
	a, grant, err := s.authorize(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, grant, domain.OpConfirmReview, "", func(now time.Time) error {
		return a.ConfirmReview(grant.Responder(), grant.Principal.UserID, now, comments)
	})
}

func (s *ReviewService) Finalize(ctx context.Context, principalID, assignmentID string) (*domain.Assignment, error) {
	a, grant, err := s.authorizeManager(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, grant, domain.OpFinalize, "", func(now time.Time) error {
		return a.Finalize(grant.Principal.UserID, now)
	})
}

// Reopen is restricted to elevated roles acting on someone else's assignment.
func (s *ReviewService) Reopen(ctx context.Context, principalID, assignmentID string, target domain.WorkflowState, reason string) (*domain.Assignment, error) {
	a, grant, err := s.authorize(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	if grant.Relation != domain.RelationElevated {
		return nil, domain.ErrAccessDenied
	}
	return s.apply(ctx, a, grant, domain.OpReopen, reason, func(now time.Time) error {
		return a.Reopen(grant.Principal, now, target, reason)
	})
}

func (s *ReviewService) Withdraw(ctx context.Context, principalID, assignmentID, reason string) (*domain.Assignment, error) {
	a, grant, err := s.authorizeManager(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, grant, domain.OpWithdraw, reason, func(now time.Time) error {
		return a.Withdraw(grant.Principal.UserID, now, reason)
	})
}

func (s *ReviewService) History(ctx context.Context, principalID, assignmentID string) ([]domain.WorkflowTransition, error) {
	a, _, err := s.authorize(ctx, principalID, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.assignments.History(ctx, a.ID)
}

// ReportAssignments returns every assignment for the HR compliance export.
func (s *ReviewService) ReportAssignments(ctx context.Context, principalID string) ([]domain.Assignment, error) {
	p, err := s.gate.Authenticate(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if err := domain.RequireElevated(p); err != nil {
		return nil, err
	}
	return s.assignments.List(ctx, AssignmentFilter{All: true})
}

// SendOverdueReminders publishes a reminder for every overdue assignment not
// reminded within the reminder interval and returns how many were sent.
func (s *ReviewService) SendOverdueReminders(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.assignments.ListDue(ctx, now, now.Add(-s.remindEvery))
	if err != nil {
		return 0, fmt.Errorf("list due assignments: %w", err)
	}
	sent := 0
	for i := range due {
		a := &due[i]
		if !a.IsOverdue(now) {
			continue
		}
		e := domain.WorkflowEvent{
			ID:           uuid.NewString(),
			AssignmentID: a.ID,
			EmployeeID:   a.EmployeeID,
			Operation:    domain.OpRemind,
			ToState:      a.WorkflowState,
			OccurredAt:   now,
		}
		if err := s.events.Publish(ctx, e); err != nil {
			s.log.WithError(err).WithField("assignment_id", a.ID).Error("failed to publish reminder")
			continue
		}
		sent++
		if err := s.assignments.MarkReminded(ctx, a.ID, now); err != nil {
			s.log.WithError(err).WithField("assignment_id", a.ID).Warn("failed to record reminder")
		}
	}
	return sent, nil
}

func (s *ReviewService) apply(ctx context.Context, a *domain.Assignment, grant domain.Grant, op domain.Operation, reason string, mutate func(now time.Time) error) (*domain.Assignment, error) {
	now := s.now()
	from := a.WorkflowState
	if err := mutate(now); err != nil {
		return nil, err
	}
	t := domain.NewTransition(a, from, op, grant.Principal, strings.TrimSpace(reason), now)
	if err := s.assignments.Update(ctx, a, domain.ChangeSet{Transition: &t}); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"assignment_id": a.ID,
		"operation":     op,
		"from":          from,
		"to":            a.WorkflowState,
		"actor":         grant.Principal.UserID,
	}).Info("workflow transition")
	s.publish(ctx, a, t)
	return a, nil
}

func (s *ReviewService) publish(ctx context.Context, a *domain.Assignment, t domain.WorkflowTransition) {
	if err := s.events.Publish(ctx, domain.EventFor(a, t)); err != nil {
		s.log.WithError(err).WithField("assignment_id", a.ID).Error("failed to publish workflow event")
	}
}

// authorize loads the assignment and checks base access. Callers without an
// elevated role cannot tell a missing assignment from a forbidden one.
func (s *ReviewService) authorize(ctx context.Context, principalID, assignmentID string) (*domain.Assignment, domain.Grant, error) {
	p, err := s.gate.Authenticate(ctx, principalID)
	if err != nil {
		return nil, domain.Grant{}, err
	}
	a, err := s.assignments.Get(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) && !p.IsElevated() {
			return nil, domain.Grant{}, domain.ErrAccessDenied
		}
		return nil, domain.Grant{}, err
	}
	grant, err := s.gate.Authorize(ctx, p, a.EmployeeID)
	if err != nil {
		return nil, domain.Grant{}, err
	}
	return a, grant, nil
}

func (s *ReviewService) authorizeManager(ctx context.Context, principalID, assignmentID string) (*domain.Assignment, domain.Grant, error) {
	a, grant, err := s.authorize(ctx, principalID, assignmentID)
	if err != nil {
		return nil, domain.Grant{}, err
	}
	if !grant.IsManagerSide() {
		return nil, domain.Grant{}, domain.ErrAccessDenied
	}
	return a, grant, nil
}

func (s *ReviewService) findSection(ctx context.Context, a *domain.Assignment, sectionID string) (domain.QuestionSection, error) {
	sections, err := s.templates.Sections(ctx, a.TemplateID, a.ID)
	if err != nil {
		return domain.QuestionSection{}, fmt.Errorf("load sections: %w", err)
	}
	for _, sec := range sections {
		if sec.ID == sectionID {
			return sec, nil
		}
	}
	return domain.QuestionSection{}, fmt.Errorf("%w: section %s", domain.ErrNotFound, sectionID)
}
