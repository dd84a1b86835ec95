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

// SubmissionRepository persists interest-form submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `id, student_id, student_email, student_name, interests, desired_domain, domain_key, goals, resume_ref, status, mentor_id, mentor_name, created_at, updated_at`

// Create inserts a new submission.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = now
	submission.DomainKey = models.NormalizeDomain(submission.DesiredDomain)

	const query = `INSERT INTO submissions (id, student_id, student_email, student_name, interests, desired_domain, domain_key, goals, resume_ref, status, mentor_id, mentor_name, created_at, updated_at)
		VALUES (:id, :student_id, :student_email, :student_name, :interests, :desired_domain, :domain_key, :goals, :resume_ref, :status, :mentor_id, :mentor_name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// FindByID returns a submission by identifier.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission by id: %w", err)
	}
	return &submission, nil
}

// FindLatestByStudent returns the most recently created submission of a
// student. Used as the resolution fallback when no explicit submission id is
// provided; newest wins.
func (r *SubmissionRepository) FindLatestByStudent(ctx context.Context, studentID string) (*models.Submission, error) {
	const query = `SELECT ` + submissionColumns + ` FROM submissions WHERE student_id = $1 ORDER BY created_at DESC LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest submission: %w", err)
	}
	return &submission, nil
}

// ExistsActiveDomain checks whether the student identity already holds a
// non-rejected submission for the normalized domain.
func (r *SubmissionRepository) ExistsActiveDomain(ctx context.Context, studentID *string, studentEmail, domainKey string) (bool, error) {
	const query = `SELECT 1 FROM submissions
		WHERE domain_key = $1 AND status <> 'rejected'
		  AND (($2::text IS NOT NULL AND student_id = $2) OR student_email = $3)
		LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, domainKey, studentID, studentEmail); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check duplicate domain submission: %w", err)
	}
	return true, nil
}

// ExistsByStudentAndMentor reports whether the student currently has a
// submission bound to the mentor.
func (r *SubmissionRepository) ExistsByStudentAndMentor(ctx context.Context, studentID, mentorID string) (bool, error) {
	const query = `SELECT 1 FROM submissions WHERE student_id = $1 AND mentor_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, mentorID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check submission mentor binding: %w", err)
	}
	return true, nil
}

// List returns submissions filtered by the provided criteria with total count.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	baseQuery := `FROM submissions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.MentorID != "" {
		conditions = append(conditions, fmt.Sprintf("mentor_id = $%d", len(args)+1))
		args = append(args, filter.MentorID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(student_name) LIKE $%d OR LOWER(student_email) LIKE $%d OR domain_key LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]bool{
		"created_at":     true,
		"updated_at":     true,
		"student_name":   true,
		"desired_domain": true,
		"status":         true,
	}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", submissionColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	return submissions, total, nil
}

// UpdateStudentFields updates the student-owned fields of a pending
// submission. The status guard keeps post-assignment rows immutable to the
// student.
func (r *SubmissionRepository) UpdateStudentFields(ctx context.Context, submission *models.Submission) error {
	submission.UpdatedAt = time.Now().UTC()
	submission.DomainKey = models.NormalizeDomain(submission.DesiredDomain)
	const query = `UPDATE submissions
		SET student_name = :student_name, interests = :interests, desired_domain = :desired_domain,
		    domain_key = :domain_key, goals = :goals, updated_at = :updated_at
		WHERE id = :id AND status = 'pending'`
	result, err := r.db.NamedExecContext(ctx, query, submission)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated submission rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus writes a new lifecycle status and bumps updated_at.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus, updatedAt time.Time) error {
	const query = `UPDATE submissions SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, updatedAt)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetResumeRef stores the opaque resume reference on the submission.
func (r *SubmissionRepository) SetResumeRef(ctx context.Context, id, resumeRef string, updatedAt time.Time) error {
	const query = `UPDATE submissions SET resume_ref = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, resumeRef, updatedAt)
	if err != nil {
		return fmt.Errorf("set resume reference: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resume rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
