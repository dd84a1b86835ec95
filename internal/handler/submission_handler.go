package handler

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/mentorlink/mentorlink-api/internal/models"
	"github.com/mentorlink/mentorlink-api/internal/service"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
	"github.com/mentorlink/mentorlink-api/pkg/response"
)

type submissionService interface {
	Create(ctx context.Context, req service.CreateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter, actor *models.JWTClaims) ([]models.Submission, int, error)
	Update(ctx context.Context, id string, req service.UpdateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error)
	AttachResume(ctx context.Context, id string, upload service.ResumeUpload, actor *models.JWTClaims) (*models.Submission, error)
	ResumeLink(ctx context.Context, id string, actor *models.JWTClaims) (*service.ResumeLink, error)
	OpenResumeByToken(ctx context.Context, token string) (*os.File, error)
}

// SubmissionHandler exposes interest submission endpoints.
type SubmissionHandler struct {
	service       submissionService
	maxResumeSize int64
}

// NewSubmissionHandler builds a new handler.
func NewSubmissionHandler(svc submissionService, maxResumeSize int64) *SubmissionHandler {
	return &SubmissionHandler{service: svc, maxResumeSize: maxResumeSize}
}

// Create godoc
// @Summary Submit an interest form
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body service.CreateSubmissionRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req service.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	submission, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// Get godoc
// @Summary Get one submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	submission, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// List godoc
// @Summary List submissions
// @Tags Submissions
// @Produce json
// @Param status query string false "Lifecycle status filter"
// @Param search query string false "Search in student name, email or domain"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	filter := models.SubmissionFilter{
		Status:    models.SubmissionStatus(c.Query("status")),
		Search:    c.Query("search"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "pageSize", 20),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	submissions, total, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Update godoc
// @Summary Edit a pending submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body service.UpdateSubmissionRequest true "Updated fields"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /submissions/{id} [put]
func (h *SubmissionHandler) Update(c *gin.Context) {
	var req service.UpdateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	submission, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// UploadResume godoc
// @Summary Attach a resume to a submission
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Submission ID"
// @Param file formData file true "Resume file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /submissions/{id}/resume [post]
func (h *SubmissionHandler) UploadResume(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "resume file is required"))
		return
	}
	if h.maxResumeSize > 0 && fileHeader.Size > h.maxResumeSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "resume file is too large"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read resume file"))
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read resume file"))
		return
	}

	submission, err := h.service.AttachResume(c.Request.Context(), c.Param("id"), service.ResumeUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// ResumeLink godoc
// @Summary Issue a signed resume download link
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id}/resume-link [get]
func (h *SubmissionHandler) ResumeLink(c *gin.Context) {
	link, err := h.service.ResumeLink(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadResume godoc
// @Summary Download a resume via signed token
// @Tags Submissions
// @Produce application/octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /submissions/resume/download [get]
func (h *SubmissionHandler) DownloadResume(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.service.OpenResumeByToken(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", "attachment")
	c.Header("Content-Type", "application/octet-stream")
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}
