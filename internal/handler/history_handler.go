package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mentorlink/mentorlink-api/internal/models"
	"github.com/mentorlink/mentorlink-api/pkg/response"
)

type historyService interface {
	List(ctx context.Context, page, pageSize int, actor *models.JWTClaims) ([]models.HistoryEntry, error)
	ExportCSV(ctx context.Context, page, pageSize int, actor *models.JWTClaims) ([]byte, error)
	ExportPDF(ctx context.Context, page, pageSize int, actor *models.JWTClaims) ([]byte, error)
}

// HistoryHandler exposes the merged assignment and session audit view.
type HistoryHandler struct {
	service historyService
}

// NewHistoryHandler builds a new handler.
func NewHistoryHandler(svc historyService) *HistoryHandler {
	return &HistoryHandler{service: svc}
}

// List godoc
// @Summary Merged assignment and session history
// @Tags History
// @Produce json
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "pageSize", 20)
	entries, err := h.service.List(c.Request.Context(), page, pageSize, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, &models.Pagination{Page: page, PageSize: pageSize})
}

// ExportCSV godoc
// @Summary Export history as CSV
// @Tags History
// @Produce text/csv
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {file} binary
// @Router /history/export/csv [get]
func (h *HistoryHandler) ExportCSV(c *gin.Context) {
	data, err := h.service.ExportCSV(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "pageSize", 100), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="history.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

// ExportPDF godoc
// @Summary Export history as PDF
// @Tags History
// @Produce application/pdf
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {file} binary
// @Router /history/export/pdf [get]
func (h *HistoryHandler) ExportPDF(c *gin.Context) {
	data, err := h.service.ExportPDF(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "pageSize", 100), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="history.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}
