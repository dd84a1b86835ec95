package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mentorlink/mentorlink-api/internal/models"
	"github.com/mentorlink/mentorlink-api/internal/service"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
	"github.com/mentorlink/mentorlink-api/pkg/response"
)

type assignmentService interface {
	Assign(ctx context.Context, req service.AssignRequest, actor *models.JWTClaims) (*models.AssignmentRecord, error)
	Unassign(ctx context.Context, submissionID string, actor *models.JWTClaims) error
}

type progressService interface {
	UpdateSubmissionStatus(ctx context.Context, submissionID string, newStatus models.SubmissionStatus, actor *models.JWTClaims) (*models.Submission, error)
	RecordProgressNote(ctx context.Context, req service.ProgressNoteRequest) (*models.ProgressNote, error)
}

// AssignmentHandler exposes mentor assignment and progress endpoints.
type AssignmentHandler struct {
	assignments assignmentService
	progress    progressService
	metrics     *service.MetricsService
}

// NewAssignmentHandler builds a new handler.
func NewAssignmentHandler(assignments assignmentService, progress progressService, metrics *service.MetricsService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, progress: progress, metrics: metrics}
}

// Assign godoc
// @Summary Assign a mentor to a submission
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.AssignRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Assign(c *gin.Context) {
	var req service.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	record, err := h.assignments.Assign(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		h.metrics.RecordAssignment("assign", "error")
		response.Error(c, err)
		return
	}
	h.metrics.RecordAssignment("assign", "ok")
	response.Created(c, record)
}

// Unassign godoc
// @Summary Release a submission back to pending
// @Tags Assignments
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{submissionId} [delete]
func (h *AssignmentHandler) Unassign(c *gin.Context) {
	err := h.assignments.Unassign(c.Request.Context(), c.Param("submissionId"), claimsFromContext(c))
	if err != nil {
		h.metrics.RecordAssignment("unassign", "error")
		response.Error(c, err)
		return
	}
	h.metrics.RecordAssignment("unassign", "ok")
	response.NoContent(c)
}

// UpdateStatus godoc
// @Summary Update submission lifecycle status
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body map[string]string true "New status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /submissions/{id}/status [patch]
func (h *AssignmentHandler) UpdateStatus(c *gin.Context) {
	var payload struct {
		Status models.SubmissionStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status is required"))
		return
	}
	submission, err := h.progress.UpdateSubmissionStatus(c.Request.Context(), c.Param("id"), payload.Status, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// RecordNote godoc
// @Summary Record a progress note on an assignment record
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.ProgressNoteRequest true "Progress note"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/notes [put]
func (h *AssignmentHandler) RecordNote(c *gin.Context) {
	var req service.ProgressNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid progress note payload"))
		return
	}
	note, err := h.progress.RecordProgressNote(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, note, nil)
}
