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

type sessionService interface {
	Schedule(ctx context.Context, req service.ScheduleSessionRequest, actor *models.JWTClaims) (*models.SessionRecord, error)
	ListByMentor(ctx context.Context, mentorID string, status models.SessionStatus, page, pageSize int) ([]models.SessionRecord, error)
	ListByStudent(ctx context.Context, studentID string, status models.SessionStatus, page, pageSize int) ([]models.SessionRecord, error)
}

type sessionCloser interface {
	CloseSession(ctx context.Context, sessionID string, newStatus models.SessionStatus, actor *models.JWTClaims) (*models.SessionRecord, error)
}

// SessionHandler exposes mentoring session endpoints.
type SessionHandler struct {
	sessions sessionService
	progress sessionCloser
}

// NewSessionHandler builds a new handler.
func NewSessionHandler(sessions sessionService, progress sessionCloser) *SessionHandler {
	return &SessionHandler{sessions: sessions, progress: progress}
}

// Schedule godoc
// @Summary Schedule a mentoring session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.ScheduleSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Schedule(c *gin.Context) {
	var req service.ScheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.sessions.Schedule(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// List godoc
// @Summary List own sessions
// @Tags Sessions
// @Produce json
// @Param status query string false "Session status filter"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	status := models.SessionStatus(c.Query("status"))
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "pageSize", 20)

	var (
		sessions []models.SessionRecord
		err      error
	)
	switch claims.Role {
	case models.RoleMentor:
		sessions, err = h.sessions.ListByMentor(c.Request.Context(), claims.UserID, status, page, pageSize)
	case models.RoleStudent:
		sessions, err = h.sessions.ListByStudent(c.Request.Context(), claims.UserID, status, page, pageSize)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "sessions are scoped to mentors and students"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Close godoc
// @Summary Complete or cancel a scheduled session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body map[string]string true "New status (completed or canceled)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/status [patch]
func (h *SessionHandler) Close(c *gin.Context) {
	var payload struct {
		Status models.SessionStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status is required"))
		return
	}
	session, err := h.progress.CloseSession(c.Request.Context(), c.Param("id"), payload.Status, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}
