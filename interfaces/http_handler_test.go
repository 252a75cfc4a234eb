package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"review-workflow/application"
	"review-workflow/domain"
	"review-workflow/infrastructure"
)

var secret = []byte("test-secret-0123456789")

const (
	employee = "11111111-1111-1111-1111-111111111111"
	manager  = "22222222-2222-2222-2222-222222222222"
	hr       = "33333333-3333-3333-3333-333333333333"
	outsider = "44444444-4444-4444-4444-444444444444"
)

type testServer struct {
	router   *gin.Engine
	template *domain.QuestionnaireTemplate
}

func token(t *testing.T, sub string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	db, err := infrastructure.NewSQLiteConnection(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	directory := infrastructure.NewEmployeeDirectory(db)
	mgr := manager
	require.NoError(t, directory.Upsert(ctx, []domain.Employee{
		{ID: employee, Name: "Ada", Email: "ada@example.com", Role: domain.RoleEmployee, ManagerID: &mgr},
		{ID: manager, Name: "Grace", Email: "grace@example.com", Role: domain.RoleTeamLead},
		{ID: hr, Name: "Barbara", Email: "barbara@example.com", Role: domain.RoleHRLead},
		{ID: outsider, Name: "Ken", Email: "ken@example.com", Role: domain.RoleTeamLead},
	}))

	templates := infrastructure.NewTemplateStore(db)
	tpl, err := infrastructure.ParseTemplate([]byte(`
key: annual
name: Annual review
sections:
  - {key: self, title: Self assessment, completion_role: Employee}
  - {key: rating, title: Rating, completion_role: Manager}
  - {key: goals, title: Goals, completion_role: Both}
`))
	require.NoError(t, err)
	require.NoError(t, templates.Upsert(ctx, tpl))

	svc := application.NewReviewService(
		infrastructure.NewAssignmentStore(db),
		templates,
		infrastructure.NewAnswerStore(db),
		domain.NewAuthorizationGate(directory),
		infrastructure.NewLogPublisher(logger),
		logger,
	)
	router := gin.New()
	NewHTTPHandler(router, svc, infrastructure.NewReportLabelSource(directory, templates), secret, logger)
	return &testServer{router: router, template: tpl}
}

func (s *testServer) do(t *testing.T, method, path, principal string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, principal))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) section(key int) string {
	return s.template.Sections[key].ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (s *testServer) createAssignment(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/assignments", manager, gin.H{"employee_id": employee, "template_id": s.template.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.Assignment](t, w).ID
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/assignments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/assignments", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: employee}).SignedString([]byte("another-secret-value"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/assignments", nil)
	req.Header.Set("Authorization", "Bearer "+wrongKey)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_UnknownPrincipalIsForbidden(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/assignments", "55555555-5555-5555-5555-555555555555", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAPI_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.createAssignment(t)
	base := "/assignments/" + id

	steps := []struct {
		method    string
		path      string
		principal string
		body      any
		state     domain.WorkflowState
	}{
		{http.MethodPut, base + "/sections/" + s.section(0), employee, gin.H{"payload": gin.H{"text": "shipped v2"}}, domain.StateEmployeeInProgress},
		{http.MethodPut, base + "/sections/" + s.section(2), employee, gin.H{"payload": gin.H{"text": "learn Go"}}, domain.StateEmployeeInProgress},
		{http.MethodPut, base + "/sections/" + s.section(1), manager, gin.H{"payload": gin.H{"rating": 4}}, domain.StateBothInProgress},
		{http.MethodPut, base + "/sections/" + s.section(2), manager, gin.H{"payload": gin.H{"text": "lead a project"}}, domain.StateBothInProgress},
		{http.MethodPost, base + "/submit", employee, nil, domain.StateEmployeeSubmitted},
		{http.MethodPost, base + "/submit", manager, nil, domain.StateBothSubmitted},
		{http.MethodPost, base + "/review/initiate", manager, nil, domain.StateInReview},
		{http.MethodPost, base + "/review/finish", manager, gin.H{"summary": "strong year"}, domain.StateReviewFinished},
		{http.MethodPost, base + "/review/confirm", employee, gin.H{"comments": "agreed"}, domain.StateEmployeeReviewConfirmed},
		{http.MethodPost, base + "/review/confirm", manager, nil, domain.StateManagerReviewConfirmed},
		{http.MethodPost, base + "/finalize", manager, nil, domain.StateFinalized},
	}
	for _, step := range steps {
		w := s.do(t, step.method, step.path, step.principal, step.body)
		require.Equal(t, http.StatusOK, w.Code, "%s %s: %s", step.method, step.path, w.Body.String())
		assert.Equal(t, step.state, decode[domain.Assignment](t, w).WorkflowState)
	}

	w := s.do(t, http.MethodGet, base+"/history", hr, nil)
	require.Equal(t, http.StatusOK, w.Code)
	type historyBody struct {
		History []domain.WorkflowTransition `json:"history"`
	}
	history := decode[historyBody](t, w).History
	assert.Len(t, history, 10)

	w = s.do(t, http.MethodGet, base+"/response", employee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[application.ResponseView](t, w)
	assert.Len(t, view.Response.Sections, 3)
	assert.Len(t, view.Response.Sections[s.section(2)], 2)
}

func TestAPI_ResponseHidesManagerAnswersBeforeReview(t *testing.T) {
	s := newTestServer(t)
	id := s.createAssignment(t)
	base := "/assignments/" + id

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, base+"/sections/"+s.section(1), manager, gin.H{"payload": gin.H{"rating": 2}}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, base+"/sections/"+s.section(2), manager, gin.H{"payload": gin.H{"text": "secret"}}).Code)

	w := s.do(t, http.MethodGet, base+"/response", employee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[application.ResponseView](t, w)
	assert.Equal(t, domain.CompletionEmployee, view.Viewer)
	assert.NotContains(t, view.Response.Sections, s.section(1))
	assert.Empty(t, view.Response.Sections[s.section(2)])
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestAPI_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	id := s.createAssignment(t)
	base := "/assignments/" + id

	tests := []struct {
		name      string
		method    string
		path      string
		principal string
		body      any
		want      int
	}{
		{"outsider cannot read", http.MethodGet, base, outsider, nil, http.StatusForbidden},
		{"missing assignment hidden from employee", http.MethodGet, "/assignments/nope", employee, nil, http.StatusForbidden},
		{"missing assignment visible to hr", http.MethodGet, "/assignments/nope", hr, nil, http.StatusNotFound},
		{"employee cannot initiate", http.MethodPost, base + "/review/initiate", employee, nil, http.StatusForbidden},
		{"initiate before manager submits", http.MethodPost, base + "/review/initiate", manager, nil, http.StatusConflict},
		{"bad payload body", http.MethodPut, base + "/sections/" + s.section(0), employee, gin.H{}, http.StatusBadRequest},
		{"unknown section", http.MethodPut, base + "/sections/nope", employee, gin.H{"payload": gin.H{}}, http.StatusNotFound},
		{"wrong role section", http.MethodPut, base + "/sections/" + s.section(1), employee, gin.H{"payload": gin.H{}}, http.StatusForbidden},
		{"null payload", http.MethodPut, base + "/sections/" + s.section(0), employee, gin.H{"payload": nil}, http.StatusUnprocessableEntity},
		{"unknown employee", http.MethodPost, "/assignments", hr, gin.H{"employee_id": "no-such-employee", "template_id": s.template.ID}, http.StatusUnprocessableEntity},
		{"unknown reopen target", http.MethodPost, base + "/reopen", hr, gin.H{"target_state": "Draft", "reason": "x"}, http.StatusUnprocessableEntity},
		{"manager cannot reopen", http.MethodPost, base + "/reopen", manager, gin.H{"target_state": "Assigned", "reason": "x"}, http.StatusForbidden},
		{"withdraw needs reason", http.MethodPost, base + "/withdraw", manager, gin.H{}, http.StatusBadRequest},
		{"report needs elevated role", http.MethodGet, "/reports/assignments.xlsx", manager, nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.principal, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAPI_ReopenAndWithdraw(t *testing.T) {
	s := newTestServer(t)
	id := s.createAssignment(t)
	base := "/assignments/" + id

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/submit", employee, nil).Code)

	w := s.do(t, http.MethodPost, base+"/reopen", hr, gin.H{"target_state": "EmployeeInProgress", "reason": "wrong file attached"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	a := decode[domain.Assignment](t, w)
	assert.Equal(t, domain.StateEmployeeInProgress, a.WorkflowState)
	assert.Nil(t, a.EmployeeSubmittedAt)
	assert.Equal(t, "wrong file attached", a.LastReopenReason)

	w = s.do(t, http.MethodPost, base+"/withdraw", manager, gin.H{"reason": "role changed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.Assignment](t, w).IsWithdrawn)

	w = s.do(t, http.MethodPost, base+"/submit", employee, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAPI_AddCustomSection(t *testing.T) {
	s := newTestServer(t)
	id := s.createAssignment(t)

	w := s.do(t, http.MethodPost, "/assignments/"+id+"/sections", manager, gin.H{"title": "Mentoring", "completion_role": "Both"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sec := decode[domain.QuestionSection](t, w)
	assert.True(t, sec.IsInstanceSpecific)

	sectionIDs := func(principal string) []string {
		w := s.do(t, http.MethodGet, "/assignments/"+id+"/response", principal, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var ids []string
		for _, v := range decode[application.ResponseView](t, w).Sections {
			ids = append(ids, v.ID)
		}
		return ids
	}

	// the manager-only rating section stays hidden from the employee
	assert.ElementsMatch(t, []string{s.section(0), s.section(2), sec.ID}, sectionIDs(employee))
	assert.ElementsMatch(t, []string{s.section(1), s.section(2), sec.ID}, sectionIDs(manager))
}

func TestAPI_ListAssignments(t *testing.T) {
	s := newTestServer(t)
	s.createAssignment(t)

	type list struct {
		Assignments []domain.Assignment `json:"assignments"`
	}
	for principal, want := range map[string]int{employee: 1, manager: 1, hr: 1, outsider: 0} {
		w := s.do(t, http.MethodGet, "/assignments", principal, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[list](t, w).Assignments, want, principal)
	}
	w := s.do(t, http.MethodGet, "/assignments", hr, nil)
	var raw struct {
		Assignments []map[string]any `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Len(t, raw.Assignments, 1)
	assert.Contains(t, raw.Assignments[0], "created_at")
	assert.Contains(t, raw.Assignments[0], "updated_at")
	assert.NotContains(t, raw.Assignments[0], "CreatedAt")
}

func TestAPI_ExportReport(t *testing.T) {
	s := newTestServer(t)
	s.createAssignment(t)

	w := s.do(t, http.MethodGet, "/reports/assignments.xlsx", hr, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "assignments.xlsx")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Assignments")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ada", rows[1][1])
	assert.Equal(t, "Annual review", rows[1][2])
}
