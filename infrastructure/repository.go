package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"review-workflow/application"
	"review-workflow/domain"
)

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}
	return err
}

// AssignmentStore persists assignments and their transition history.
type AssignmentStore struct {
	db *gorm.DB
}

func NewAssignmentStore(db *gorm.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

func (s *AssignmentStore) Create(ctx context.Context, a *domain.Assignment, t domain.WorkflowTransition) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return err
		}
		return tx.Create(&t).Error
	})
}

func (s *AssignmentStore) Get(ctx context.Context, id string) (*domain.Assignment, error) {
	var a domain.Assignment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "assignment "+id)
	}
	return &a, nil
}

func (s *AssignmentStore) List(ctx context.Context, f application.AssignmentFilter) ([]domain.Assignment, error) {
	q := s.db.WithContext(ctx).Order("created_at, id")
	if !f.All {
		if len(f.EmployeeIDs) == 0 {
			return nil, nil
		}
		q = q.Where("employee_id IN ?", f.EmployeeIDs)
	}
	var out []domain.Assignment
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes a only when the stored version still equals a.Version. The
// change set is written in the same transaction.
func (s *AssignmentStore) Update(ctx context.Context, a *domain.Assignment, changes domain.ChangeSet) error {
	expected := a.Version
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a.Version = expected + 1
		res := tx.Model(a).
			Where("version = ?", expected).
			Select("*").
			Omit("ID", "CreatedAt", "LastRemindedAt").
			Updates(a)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConcurrentModification
		}

		if changes.Transition != nil {
			if err := tx.Create(changes.Transition).Error; err != nil {
				return err
			}
		}
		if changes.Answer != nil {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "assignment_id"}, {Name: "section_id"}, {Name: "role"}},
				DoUpdates: clause.AssignmentColumns([]string{"payload", "answered_by", "updated_at"}),
			}).Create(changes.Answer).Error
			if err != nil {
				return err
			}
		}
		if changes.Section != nil {
			if err := tx.Create(changes.Section).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		a.Version = expected
		return err
	}
	return nil
}

func (s *AssignmentStore) History(ctx context.Context, assignmentID string) ([]domain.WorkflowTransition, error) {
	var out []domain.WorkflowTransition
	err := s.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("occurred_at, id").
		Find(&out).Error
	return out, err
}

// ListDue returns open assignments whose due date is before the given time
// and that were not reminded since remindedBefore.
func (s *AssignmentStore) ListDue(ctx context.Context, before, remindedBefore time.Time) ([]domain.Assignment, error) {
	var open []domain.WorkflowState
	for _, st := range domain.AllStates() {
		if st.IsPreReview() {
			open = append(open, st)
		}
	}
	var out []domain.Assignment
	err := s.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND due_date < ?", before).
		Where("is_withdrawn = ?", false).
		Where("workflow_state IN ?", open).
		Where("(last_reminded_at IS NULL OR last_reminded_at < ?)", remindedBefore).
		Order("due_date").
		Find(&out).Error
	return out, err
}

// MarkReminded stamps the reminder time without touching the version.
func (s *AssignmentStore) MarkReminded(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Assignment{}).
		Where("id = ?", id).
		UpdateColumn("last_reminded_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: assignment %s", domain.ErrNotFound, id)
	}
	return nil
}

// TemplateStore reads and upserts questionnaire templates.
type TemplateStore struct {
	db *gorm.DB
}

func NewTemplateStore(db *gorm.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

func (s *TemplateStore) Get(ctx context.Context, id string) (*domain.QuestionnaireTemplate, error) {
	var t domain.QuestionnaireTemplate
	err := s.db.WithContext(ctx).
		Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order") }).
		First(&t, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "template "+id)
	}
	return &t, nil
}

func (s *TemplateStore) List(ctx context.Context) ([]domain.QuestionnaireTemplate, error) {
	var out []domain.QuestionnaireTemplate
	err := s.db.WithContext(ctx).
		Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order") }).
		Order("name").
		Find(&out).Error
	return out, err
}

func (s *TemplateStore) Sections(ctx context.Context, templateID, assignmentID string) ([]domain.QuestionSection, error) {
	var out []domain.QuestionSection
	err := s.db.WithContext(ctx).
		Where("template_id = ? OR assignment_id = ?", templateID, assignmentID).
		Order("sort_order, created_at").
		Find(&out).Error
	return out, err
}

// Upsert stores t keyed by its id and replaces its template sections.
// Sections removed from the definition are deleted; their answers stay and
// are skipped when responses are filtered.
func (s *TemplateStore) Upsert(ctx context.Context, t *domain.QuestionnaireTemplate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sections := t.Sections
		err := tx.Omit("Sections").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"key", "name", "description", "updated_at"}),
		}).Create(t).Error
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(sections))
		for i := range sections {
			ids = append(ids, sections[i].ID)
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"title", "description", "sort_order", "completion_role"}),
			}).Create(&sections[i]).Error
			if err != nil {
				return err
			}
		}
		q := tx.Where("template_id = ?", t.ID)
		if len(ids) > 0 {
			q = q.Where("id NOT IN ?", ids)
		}
		return q.Delete(&domain.QuestionSection{}).Error
	})
}

// AnswerStore reads section answers. Writes go through AssignmentStore.Update.
type AnswerStore struct {
	db *gorm.DB
}

func NewAnswerStore(db *gorm.DB) *AnswerStore {
	return &AnswerStore{db: db}
}

func (s *AnswerStore) ListByAssignment(ctx context.Context, assignmentID string) ([]domain.SectionAnswer, error) {
	var out []domain.SectionAnswer
	err := s.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("section_id, role").
		Find(&out).Error
	return out, err
}

func (s *AnswerStore) Get(ctx context.Context, assignmentID, sectionID string, role domain.CompletionRole) (*domain.SectionAnswer, error) {
	var a domain.SectionAnswer
	err := s.db.WithContext(ctx).
		First(&a, "assignment_id = ? AND section_id = ? AND role = ?", assignmentID, sectionID, role).Error
	if err != nil {
		return nil, notFound(err, "answer")
	}
	return &a, nil
}

// EmployeeDirectory resolves roles and reporting lines from the employees
// table.
type EmployeeDirectory struct {
	db *gorm.DB
}

func NewEmployeeDirectory(db *gorm.DB) *EmployeeDirectory {
	return &EmployeeDirectory{db: db}
}

func (d *EmployeeDirectory) RoleOf(ctx context.Context, userID string) (domain.ApplicationRole, error) {
	var e domain.Employee
	if err := d.db.WithContext(ctx).Select("id", "role").First(&e, "id = ?", userID).Error; err != nil {
		return "", notFound(err, "employee "+userID)
	}
	return e.Role, nil
}

func (d *EmployeeDirectory) IsDirectManager(ctx context.Context, managerID, employeeID string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&domain.Employee{}).
		Where("id = ? AND manager_id = ?", employeeID, managerID).
		Count(&count).Error
	return count > 0, err
}

func (d *EmployeeDirectory) DirectReports(ctx context.Context, managerID string) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).
		Model(&domain.Employee{}).
		Where("manager_id = ?", managerID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// Names maps employee ids to display names.
func (d *EmployeeDirectory) Names(ctx context.Context) (map[string]string, error) {
	var all []domain.Employee
	if err := d.db.WithContext(ctx).Select("id", "name").Find(&all).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(all))
	for _, e := range all {
		out[e.ID] = e.Name
	}
	return out, nil
}

// Upsert inserts or updates employees by id.
func (d *EmployeeDirectory) Upsert(ctx context.Context, employees []domain.Employee) error {
	if len(employees) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "role", "manager_id"}),
	}).Create(&employees).Error
}
