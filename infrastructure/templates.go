package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"review-workflow/domain"
)

var templateNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("review-workflow/templates"))

// TemplateFile is the YAML layout of a questionnaire template.
type TemplateFile struct {
	Key         string        `yaml:"key" validate:"required,max=100"`
	Name        string        `yaml:"name" validate:"required,max=255"`
	Description string        `yaml:"description"`
	Sections    []SectionFile `yaml:"sections" validate:"required,min=1,unique=Key,dive"`
}

type SectionFile struct {
	Key            string `yaml:"key" validate:"required"`
	Title          string `yaml:"title" validate:"required,max=255"`
	Description    string `yaml:"description"`
	CompletionRole string `yaml:"completion_role" validate:"required"`
}

// EmployeeFile is the YAML layout of the optional employee seed.
type EmployeeFile struct {
	Employees []struct {
		ID        string `yaml:"id" validate:"required,max=36"`
		Name      string `yaml:"name" validate:"required"`
		Email     string `yaml:"email" validate:"required,email"`
		Role      string `yaml:"role" validate:"required"`
		ManagerID string `yaml:"manager_id" validate:"omitempty,max=36"`
	} `yaml:"employees" validate:"dive"`
}

// TemplateID is the stable id derived from a template key.
func TemplateID(key string) string {
	return uuid.NewSHA1(templateNamespace, []byte(key)).String()
}

func sectionID(templateKey, sectionKey string) string {
	return uuid.NewSHA1(templateNamespace, []byte(templateKey+"/"+sectionKey)).String()
}

// ParseTemplate decodes and validates one template definition.
func ParseTemplate(data []byte) (*domain.QuestionnaireTemplate, error) {
	var f TemplateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	id := TemplateID(f.Key)
	t := &domain.QuestionnaireTemplate{
		ID:          id,
		Key:         f.Key,
		Name:        f.Name,
		Description: f.Description,
	}
	for i, s := range f.Sections {
		role, err := domain.ParseCompletionRole(s.CompletionRole)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", s.Key, err)
		}
		templateRef := id
		t.Sections = append(t.Sections, domain.QuestionSection{
			ID:             sectionID(f.Key, s.Key),
			TemplateID:     &templateRef,
			Title:          s.Title,
			Description:    s.Description,
			Order:          i + 1,
			CompletionRole: role,
		})
	}
	return t, nil
}

// LoadTemplates parses every *.yaml and *.yml file in dir, in name order.
func LoadTemplates(dir string) ([]*domain.QuestionnaireTemplate, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	seen := map[string]string{}
	var out []*domain.QuestionnaireTemplate
	for _, path := range files {
		if filepath.Base(path) == employeeSeedFile {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		t, err := ParseTemplate(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prev, ok := seen[t.Key]; ok {
			return nil, fmt.Errorf("%w: template key %q defined in %s and %s", domain.ErrValidation, t.Key, prev, path)
		}
		seen[t.Key] = path
		out = append(out, t)
	}
	return out, nil
}

// SeedTemplates upserts the templates found in dir and returns how many were
// stored.
func SeedTemplates(ctx context.Context, dir string, store *TemplateStore, log logrus.FieldLogger) (int, error) {
	templates, err := LoadTemplates(dir)
	if err != nil {
		return 0, err
	}
	for _, t := range templates {
		if err := store.Upsert(ctx, t); err != nil {
			return 0, fmt.Errorf("store template %s: %w", t.Key, err)
		}
		log.WithFields(logrus.Fields{"key": t.Key, "id": t.ID, "sections": len(t.Sections)}).Info("template loaded")
	}
	return len(templates), nil
}

const employeeSeedFile = "employees.yaml"

// SeedEmployees upserts dir/employees.yaml when it exists.
func SeedEmployees(ctx context.Context, dir string, dirStore *EmployeeDirectory, log logrus.FieldLogger) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, employeeSeedFile))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var f EmployeeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := validator.New().Struct(f); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	employees := make([]domain.Employee, 0, len(f.Employees))
	for _, e := range f.Employees {
		role, err := domain.ParseApplicationRole(e.Role)
		if err != nil {
			return 0, fmt.Errorf("employee %s: %w", e.ID, err)
		}
		emp := domain.Employee{ID: e.ID, Name: e.Name, Email: e.Email, Role: role}
		if e.ManagerID != "" {
			manager := e.ManagerID
			emp.ManagerID = &manager
		}
		employees = append(employees, emp)
	}
	if err := dirStore.Upsert(ctx, employees); err != nil {
		return 0, fmt.Errorf("store employees: %w", err)
	}
	log.WithField("count", len(employees)).Info("employees loaded")
	return len(employees), nil
}
