package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mentorlink/mentorlink-api/internal/models"
)

// SessionRepository persists mentor-created meeting records.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, mentor_id, student_id, agenda, description, timing, meeting_ref, status, completed_at, canceled_at, created_at, updated_at`

// Create inserts a new session in scheduled state.
func (r *SessionRepository) Create(ctx context.Context, session *models.SessionRecord) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.SessionScheduled
	}

	const query = `INSERT INTO mentoring_sessions (id, mentor_id, student_id, agenda, description, timing, meeting_ref, status, created_at, updated_at)
		VALUES (:id, :mentor_id, :student_id, :agenda, :description, :timing, :meeting_ref, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID returns a session by identifier regardless of owner.
func (r *SessionRepository) FindByID(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	const query = `SELECT ` + sessionColumns + ` FROM mentoring_sessions WHERE id = $1 LIMIT 1`
	var session models.SessionRecord
	if err := r.db.GetContext(ctx, &session, query, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// CloseSession moves a scheduled session to completed or canceled, stamping
// the matching timestamp. The status guard in the WHERE clause enforces the
// one-way transition; a no-op means the row was missing or already closed.
func (r *SessionRepository) CloseSession(ctx context.Context, sessionID, mentorID string, status models.SessionStatus, at time.Time) error {
	var query string
	switch status {
	case models.SessionCompleted:
		query = `UPDATE mentoring_sessions SET status = 'completed', completed_at = $3, updated_at = $3 WHERE id = $1 AND mentor_id = $2 AND status = 'scheduled'`
	case models.SessionCanceled:
		query = `UPDATE mentoring_sessions SET status = 'canceled', canceled_at = $3, updated_at = $3 WHERE id = $1 AND mentor_id = $2 AND status = 'scheduled'`
	default:
		return fmt.Errorf("unsupported session close status %q", status)
	}

	result, err := r.db.ExecContext(ctx, query, sessionID, mentorID, at)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check closed session rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns sessions filtered by the provided criteria.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionRecord, error) {
	baseQuery := `FROM mentoring_sessions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.MentorID != "" {
		conditions = append(conditions, fmt.Sprintf("mentor_id = $%d", len(args)+1))
		args = append(args, filter.MentorID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf("SELECT %s %s ORDER BY timing DESC LIMIT %d OFFSET %d", sessionColumns, baseQuery, pageSize, offset)

	var sessions []models.SessionRecord
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ListCompletedDetails returns completed sessions joined with participant
// names, newest completion first. Feeds the merged history view.
func (r *SessionRepository) ListCompletedDetails(ctx context.Context, page, pageSize int) ([]models.SessionDetail, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const query = `
SELECT ms.id, ms.mentor_id, ms.student_id, ms.agenda, ms.description, ms.timing, ms.meeting_ref, ms.status, ms.completed_at, ms.canceled_at, ms.created_at, ms.updated_at,
       COALESCE(su.full_name, '') AS student_name,
       COALESCE(mu.full_name, '') AS mentor_name
FROM mentoring_sessions ms
LEFT JOIN users su ON su.id = ms.student_id
LEFT JOIN users mu ON mu.id = ms.mentor_id
WHERE ms.status = 'completed'
ORDER BY ms.completed_at DESC
LIMIT $1 OFFSET $2`
	var details []models.SessionDetail
	if err := r.db.SelectContext(ctx, &details, query, pageSize, offset); err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	return details, nil
}
