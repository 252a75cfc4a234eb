package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"review-workflow/application"
	"review-workflow/domain"
	"review-workflow/infrastructure"
)

// LabelSource supplies display names for the HR report.
type LabelSource interface {
	Labels(ctx context.Context) (infrastructure.ReportLabels, error)
}

type HTTPHandler struct {
	Service *application.ReviewService
	Labels  LabelSource
	Log     logrus.FieldLogger
}

// NewHTTPHandler registers every route behind the bearer token check.
func NewHTTPHandler(router *gin.Engine, svc *application.ReviewService, labels LabelSource, secret []byte, log logrus.FieldLogger) {
	h := &HTTPHandler{Service: svc, Labels: labels, Log: log}

	api := router.Group("/", Verify(secret))
	api.POST("/assignments", h.CreateAssignment)
	api.GET("/assignments", h.ListAssignments)
	api.GET("/assignments/:id", h.GetAssignment)
	api.GET("/assignments/:id/response", h.GetResponse)
	api.PUT("/assignments/:id/sections/:sectionId", h.SaveSectionAnswer)
	api.POST("/assignments/:id/sections", h.AddCustomSection)
	api.POST("/assignments/:id/submit", h.Submit)
	api.POST("/assignments/:id/review/initiate", h.InitiateReview)
	api.POST("/assignments/:id/review/finish", h.FinishReview)
	api.POST("/assignments/:id/review/confirm", h.ConfirmReview)
	api.POST("/assignments/:id/finalize", h.Finalize)
	api.POST("/assignments/:id/reopen", h.Reopen)
	api.POST("/assignments/:id/withdraw", h.Withdraw)
	api.GET("/assignments/:id/history", h.History)
	api.GET("/reports/assignments.xlsx", h.ExportReport)
}

// writeError maps domain errors onto HTTP statuses.
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	var te *domain.TransitionError
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &te):
		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"operation": te.Operation,
			"state":     te.State,
		})
	default:
		h.Log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *HTTPHandler) respondAssignment(c *gin.Context, a *domain.Assignment, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *HTTPHandler) CreateAssignment(c *gin.Context) {
	var req struct {
		EmployeeID string     `json:"employee_id" binding:"required"`
		TemplateID string     `json:"template_id" binding:"required"`
		DueDate    *time.Time `json:"due_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.Service.CreateAssignment(c.Request.Context(), principalID(c), application.CreateAssignmentInput{
		EmployeeID: req.EmployeeID,
		TemplateID: req.TemplateID,
		DueDate:    req.DueDate,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *HTTPHandler) ListAssignments(c *gin.Context) {
	list, err := h.Service.ListAssignments(c.Request.Context(), principalID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []domain.Assignment{}
	}
	c.JSON(http.StatusOK, gin.H{"assignments": list})
}

func (h *HTTPHandler) GetAssignment(c *gin.Context) {
	a, err := h.Service.GetAssignment(c.Request.Context(), principalID(c), c.Param("id"))
	h.respondAssignment(c, a, err)
}

func (h *HTTPHandler) GetResponse(c *gin.Context) {
	view, err := h.Service.GetResponse(c.Request.Context(), principalID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *HTTPHandler) SaveSectionAnswer(c *gin.Context) {
	var req struct {
		Payload json.RawMessage `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.Service.SaveSectionAnswer(c.Request.Context(), principalID(c), c.Param("id"), c.Param("sectionId"), req.Payload)
	h.respondAssignment(c, a, err)
}

func (h *HTTPHandler) AddCustomSection(c *gin.Context) {
	var req struct {
		Title          string `json:"title" binding:"required"`
		Description    string `json:"description"`
		CompletionRole string `json:"completion_role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sec, err := h.Service.AddCustomSection(c.Request.Context(), principalID(c), c.Param("id"), application.CustomSectionInput{
		Title:          req.Title,
		Description:    req.Description,
		CompletionRole: req.CompletionRole,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sec)
}

func (h *HTTPHandler) Submit(c *gin.Context) {
	a, err := h.Service.Submit(c.Request.Context(), principalID(c), c.Param("id"))
	h.respondAssignment(c, a, err)
}

func (h *HTTPHandler) InitiateReview(c *gin.Context) {
	a, err := h.Service.InitiateReview(c.Request.Context(), principalID(c), c.Param("id"))
	h.respondAssignment(c, a, err)
}

func (h *HTTPHandler) FinishReview(c *gin.Context) {
	var req struct {
		Summary string `json:"summary"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.Service.FinishReview(c.Request.Context(), principalID(c), c.Param("id"), req.Summary)
	h.respondAssignment(c, a, err)
}

func (h *HTTPHandler) ConfirmReview(c *gin.Context) {
	var req struct {
		Comments string `json:"comments"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.Service.ConfirmReview(c.Request.Context(), principalID(c), c.Param("id"), req.Comments)
	h.respondAssignment(c, a, err)
}

func (h *HTTPHandler) Finalize(c *gin.Context) {
	a, err := h.Service.Finalize(c.Request.Context(), principalID(c), c.Param("id"))
	h.respondAssignment(c, a, err)
}

func (h *HTTPHandler) Reopen(c *gin.Context) {
	var req struct {
		TargetState string `json:"target_state" binding:"required"`
		Reason      string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, err := domain.ParseWorkflowState(req.TargetState)
	if err != nil {
		h.writeError(c, err)
		return
	}
	a, err := h.Service.Reopen(c.Request.Context(), principalID(c), c.Param("id"), target, req.Reason)
	h.respondAssignment(c, a, err)
}

func (h *HTTPHandler) Withdraw(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.Service.Withdraw(c.Request.Context(), principalID(c), c.Param("id"), req.Reason)
	h.respondAssignment(c, a, err)
}

func (h *HTTPHandler) History(c *gin.Context) {
	history, err := h.Service.History(c.Request.Context(), principalID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if history == nil {
		history = []domain.WorkflowTransition{}
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// ExportReport streams the HR compliance workbook.
func (h *HTTPHandler) ExportReport(c *gin.Context) {
	ctx := c.Request.Context()
	rows, err := h.Service.ReportAssignments(ctx, principalID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	labels, err := h.Labels.Labels(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="assignments.xlsx"`)
	c.Status(http.StatusOK)
	if err := infrastructure.WriteAssignmentReport(c.Writer, rows, labels, time.Now()); err != nil {
		h.Log.WithError(err).Error("failed to write assignment report")
	}
}

// bindOptionalJSON binds the body when there is one.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
