package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mentorlink/mentorlink-api/internal/models"
	"github.com/mentorlink/mentorlink-api/pkg/export"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
)

type assignmentHistorySource interface {
	ListDetails(ctx context.Context, page, pageSize int) ([]models.AssignmentDetail, error)
	GetProgressNote(ctx context.Context, assignmentRecordID string) (*models.ProgressNote, error)
}

type sessionHistorySource interface {
	ListCompletedDetails(ctx context.Context, page, pageSize int) ([]models.SessionDetail, error)
}

type historyCacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// HistoryService produces the merged chronological audit view of assignment
// ledger entries and completed sessions. The view is read-only and re-derived
// from the source tables; Redis only shortcuts repeated reads.
type HistoryService struct {
	assignments assignmentHistorySource
	sessions    sessionHistorySource
	cache       historyCacheStore
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	cacheTTL    time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewHistoryService creates a service instance.
func NewHistoryService(
	assignments assignmentHistorySource,
	sessions sessionHistorySource,
	cache historyCacheStore,
	cacheTTL time.Duration,
	metrics *MetricsService,
	logger *zap.Logger,
) *HistoryService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		assignments: assignments,
		sessions:    sessions,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		cacheTTL:    cacheTTL,
		metrics:     metrics,
		logger:      logger,
	}
}

// List returns one page of the merged history, newest first. Administrators
// only.
func (s *HistoryService) List(ctx context.Context, page, pageSize int, actor *models.JWTClaims) ([]models.HistoryEntry, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may view history")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	cacheKey := fmt.Sprintf("history:%d:%d", page, pageSize)
	if s.cache != nil {
		var cached []models.HistoryEntry
		err := s.cache.Get(ctx, cacheKey, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false)
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("history cache read failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	entries, err := s.build(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, entries, s.cacheTTL); err != nil {
			s.logger.Warn("history cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return entries, nil
}

// ExportCSV renders one history page as CSV bytes.
func (s *HistoryService) ExportCSV(ctx context.Context, page, pageSize int, actor *models.JWTClaims) ([]byte, error) {
	entries, err := s.List(ctx, page, pageSize, actor)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(historyDataset(entries))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render history csv")
	}
	return data, nil
}

// ExportPDF renders one history page as a tabular PDF.
func (s *HistoryService) ExportPDF(ctx context.Context, page, pageSize int, actor *models.JWTClaims) ([]byte, error) {
	entries, err := s.List(ctx, page, pageSize, actor)
	if err != nil {
		return nil, err
	}
	data, err := s.pdf.Render(historyDataset(entries), "Mentorship History")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render history pdf")
	}
	return data, nil
}

// build fetches both sources and merges them into a single page ordered by
// completion time when present, start time otherwise, newest first.
func (s *HistoryService) build(ctx context.Context, page, pageSize int) ([]models.HistoryEntry, error) {
	// Both sources are over-fetched up to the requested page boundary so the
	// merged ordering stays correct across pages.
	fetch := page * pageSize

	assignments, err := s.assignments.ListDetails(ctx, 1, fetch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment history")
	}
	sessions, err := s.sessions.ListCompletedDetails(ctx, 1, fetch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session history")
	}

	entries := make([]models.HistoryEntry, 0, len(assignments)+len(sessions))
	for _, a := range assignments {
		entry := models.HistoryEntry{
			Type:         models.HistoryEntryAssignment,
			RecordID:     a.ID,
			StudentID:    a.StudentID,
			StudentName:  a.StudentName,
			MentorID:     a.MentorID,
			MentorName:   a.MentorName,
			Domain:       a.DesiredDomain,
			StartedAt:    a.AssignedAt,
			UnassignedAt: a.UnassignedAt,
			CompletedAt:  a.CompletedAt,
			Notes:        a.Notes,
		}
		if note, err := s.assignments.GetProgressNote(ctx, a.ID); err == nil {
			entry.Notes = note.Notes
			if entry.CompletedAt == nil {
				entry.CompletedAt = note.CompletionDate
			}
		}
		entries = append(entries, entry)
	}
	for _, sd := range sessions {
		agenda := sd.Agenda
		entries = append(entries, models.HistoryEntry{
			Type:        models.HistoryEntrySession,
			RecordID:    sd.ID,
			StudentID:   sd.StudentID,
			StudentName: sd.StudentName,
			MentorID:    sd.MentorID,
			MentorName:  sd.MentorName,
			Agenda:      &agenda,
			StartedAt:   sd.Timing,
			CompletedAt: sd.CompletedAt,
			Notes:       sd.Description,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SortTime().After(entries[j].SortTime())
	})

	start := (page - 1) * pageSize
	if start >= len(entries) {
		return []models.HistoryEntry{}, nil
	}
	end := start + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end], nil
}

const timeLayout = "2006-01-02 15:04"

func historyDataset(entries []models.HistoryEntry) export.Dataset {
	headers := []string{"Type", "Student", "Mentor", "Domain", "Agenda", "Started At", "Completed At", "Notes"}
	rows := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		row := map[string]string{
			"Type":       string(e.Type),
			"Student":    e.StudentName,
			"Mentor":     e.MentorName,
			"Started At": e.StartedAt.Format(timeLayout),
		}
		if e.Domain != nil {
			row["Domain"] = *e.Domain
		}
		if e.Agenda != nil {
			row["Agenda"] = *e.Agenda
		}
		if e.CompletedAt != nil {
			row["Completed At"] = e.CompletedAt.Format(timeLayout)
		}
		if e.Notes != nil {
			row["Notes"] = *e.Notes
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
