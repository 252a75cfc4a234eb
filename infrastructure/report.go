package infrastructure

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"review-workflow/domain"
)

const (
	assignmentsSheet = "Assignments"
	summarySheet     = "Summary"
)

var reportHeaders = []string{
	"Assignment ID", "Employee", "Template", "State", "Due Date",
	"Employee Submitted", "Manager Submitted", "Finalized", "Withdrawn", "Overdue",
}

// ReportLabels maps ids to display names. Missing ids are printed as is.
type ReportLabels struct {
	Employees map[string]string
	Templates map[string]string
}

func label(names map[string]string, id string) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// BuildAssignmentReport renders one row per assignment plus a summary sheet
// with the number of assignments per state.
func BuildAssignmentReport(rows []domain.Assignment, labels ReportLabels, now time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", assignmentsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	for i, h := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(assignmentsSheet, cell, h); err != nil {
			return nil, err
		}
	}

	counts := map[domain.WorkflowState]int{}
	withdrawn, overdue := 0, 0
	for i, a := range rows {
		values := []any{
			a.ID,
			label(labels.Employees, a.EmployeeID),
			label(labels.Templates, a.TemplateID),
			string(a.WorkflowState),
			formatTime(a.DueDate),
			formatTime(a.EmployeeSubmittedAt),
			formatTime(a.ManagerSubmittedAt),
			formatTime(a.FinalizedAt),
			yesNo(a.IsWithdrawn),
			yesNo(a.IsOverdue(now)),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(assignmentsSheet, cell, &values); err != nil {
			return nil, err
		}
		if a.IsWithdrawn {
			withdrawn++
			continue
		}
		counts[a.WorkflowState]++
		if a.IsOverdue(now) {
			overdue++
		}
	}

	if err := f.SetSheetRow(summarySheet, "A1", &[]any{"State", "Assignments"}); err != nil {
		return nil, err
	}
	row := 2
	for _, st := range domain.AllStates() {
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(summarySheet, cell, &[]any{string(st), counts[st]}); err != nil {
			return nil, err
		}
		row++
	}
	for _, extra := range []struct {
		name  string
		count int
	}{{"Withdrawn", withdrawn}, {"Overdue", overdue}, {"Total", len(rows)}} {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", row), &[]any{extra.name, extra.count}); err != nil {
			return nil, err
		}
		row++
	}
	return f, nil
}

// WriteAssignmentReport streams the workbook to w.
func WriteAssignmentReport(w io.Writer, rows []domain.Assignment, labels ReportLabels, now time.Time) error {
	f, err := BuildAssignmentReport(rows, labels, now)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

// ReportLabelSource loads display names for the report from the database.
type ReportLabelSource struct {
	employees *EmployeeDirectory
	templates *TemplateStore
}

func NewReportLabelSource(employees *EmployeeDirectory, templates *TemplateStore) *ReportLabelSource {
	return &ReportLabelSource{employees: employees, templates: templates}
}

func (s *ReportLabelSource) Labels(ctx context.Context) (ReportLabels, error) {
	names, err := s.employees.Names(ctx)
	if err != nil {
		return ReportLabels{}, err
	}
	templates, err := s.templates.List(ctx)
	if err != nil {
		return ReportLabels{}, err
	}
	labels := ReportLabels{Employees: names, Templates: make(map[string]string, len(templates))}
	for _, t := range templates {
		labels.Templates[t.ID] = t.Name
	}
	return labels, nil
}
