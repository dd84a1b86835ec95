package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mentorlink/mentorlink-api/internal/models"
)

// Sentinel errors surfaced by the transactional assignment writes. The service
// layer maps them onto the public conflict taxonomy.
var (
	// ErrSubmissionBound means the submission row is already bound to a mentor.
	ErrSubmissionBound = errors.New("submission already bound to a mentor")
	// ErrPairActive means an active ledger entry already exists for the
	// (student, mentor) pair.
	ErrPairActive = errors.New("active assignment exists for pair")
	// ErrLifecycleFinished means the submission reached completed or rejected
	// and cannot be reverted.
	ErrLifecycleFinished = errors.New("submission lifecycle already finished")
)

// AssignmentRepository persists the assignment ledger and owns the
// transactional dual-write against the submissions table.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `id, student_id, mentor_id, submission_id, mentor_name, assigned_at, unassigned_at, completed_at, notes`

// Assign executes the pending->assigned transition atomically: it locks the
// submission row, re-checks both conflict rules under the lock, updates the
// submission and appends the ledger entry. Either both writes land or neither
// does.
func (r *AssignmentRepository) Assign(ctx context.Context, submissionID, studentID, mentorID, mentorName string) (*models.AssignmentRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin assign transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		ID       string  `db:"id"`
		Status   string  `db:"status"`
		MentorID *string `db:"mentor_id"`
	}
	const lockQuery = `SELECT id, status, mentor_id FROM submissions WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock submission: %w", err)
	}

	if current.MentorID != nil || current.Status == string(models.SubmissionAssigned) {
		err = ErrSubmissionBound
		return nil, err
	}

	var exists int
	const pairQuery = `SELECT 1 FROM assignment_records WHERE student_id = $1 AND mentor_id = $2 AND unassigned_at IS NULL LIMIT 1 FOR UPDATE`
	if err = tx.GetContext(ctx, &exists, pairQuery, studentID, mentorID); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("check active pair: %w", err)
	}
	if err == nil {
		err = ErrPairActive
		return nil, err
	}
	err = nil

	now := time.Now().UTC()
	const updateQuery = `UPDATE submissions SET status = 'assigned', mentor_id = $2, mentor_name = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, submissionID, mentorID, mentorName, now); err != nil {
		return nil, fmt.Errorf("bind submission to mentor: %w", err)
	}

	record := &models.AssignmentRecord{
		ID:           uuid.NewString(),
		StudentID:    studentID,
		MentorID:     mentorID,
		SubmissionID: &submissionID,
		MentorName:   mentorName,
		AssignedAt:   now,
	}
	const insertQuery = `INSERT INTO assignment_records (id, student_id, mentor_id, submission_id, mentor_name, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, insertQuery, record.ID, record.StudentID, record.MentorID, record.SubmissionID, record.MentorName, record.AssignedAt); err != nil {
		// Two assigns of the same pair via different submissions lock
		// different rows, so both can pass the pair probe. The partial unique
		// index breaks the tie; surface the loser as the pair conflict.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			err = ErrPairActive
			return nil, err
		}
		return nil, fmt.Errorf("append assignment record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assign transaction: %w", err)
	}
	return record, nil
}

// Unassign reverts a submission to pending and stamps unassigned_at on the
// active ledger entry. The ledger row is kept; it becomes historical. Returns
// false without touching anything when the submission is already unbound,
// making the operation idempotent at the submission level. A completed or
// rejected submission is never reverted; that fails with
// ErrLifecycleFinished.
func (r *AssignmentRepository) Unassign(ctx context.Context, submissionID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin unassign transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		ID        string  `db:"id"`
		Status    string  `db:"status"`
		StudentID *string `db:"student_id"`
		MentorID  *string `db:"mentor_id"`
	}
	const lockQuery = `SELECT id, status, student_id, mentor_id FROM submissions WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return false, err
		}
		return false, fmt.Errorf("lock submission: %w", err)
	}

	// A finished submission stays finished. Re-engaging requires a new
	// submission, never a reset of this row.
	if models.SubmissionStatus(current.Status).Terminal() {
		err = ErrLifecycleFinished
		return false, err
	}

	if current.MentorID == nil && current.Status == string(models.SubmissionPending) {
		err = tx.Commit()
		if err != nil {
			return false, fmt.Errorf("commit unassign transaction: %w", err)
		}
		return false, nil
	}

	now := time.Now().UTC()
	const updateQuery = `UPDATE submissions SET status = 'pending', mentor_id = NULL, mentor_name = NULL, updated_at = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, submissionID, now); err != nil {
		return false, fmt.Errorf("release submission: %w", err)
	}

	if current.MentorID != nil && current.StudentID != nil {
		const stampQuery = `UPDATE assignment_records SET unassigned_at = $3 WHERE student_id = $1 AND mentor_id = $2 AND unassigned_at IS NULL`
		if _, err = tx.ExecContext(ctx, stampQuery, *current.StudentID, *current.MentorID, now); err != nil {
			return false, fmt.Errorf("stamp unassigned ledger entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit unassign transaction: %w", err)
	}
	return true, nil
}

// FindByID returns a ledger entry by identifier.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.AssignmentRecord, error) {
	const query = `SELECT ` + assignmentColumns + ` FROM assignment_records WHERE id = $1 LIMIT 1`
	var record models.AssignmentRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment record: %w", err)
	}
	return &record, nil
}

// HasActivePair checks for an active ledger entry for the (student, mentor)
// pair outside of any transaction. The authoritative check is repeated inside
// Assign; this one exists so callers can fail fast.
func (r *AssignmentRepository) HasActivePair(ctx context.Context, studentID, mentorID string) (bool, error) {
	const query = `SELECT 1 FROM assignment_records WHERE student_id = $1 AND mentor_id = $2 AND unassigned_at IS NULL LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, mentorID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active pair: %w", err)
	}
	return true, nil
}

// FindActiveByPair returns the active ledger entry for the pair.
func (r *AssignmentRepository) FindActiveByPair(ctx context.Context, studentID, mentorID string) (*models.AssignmentRecord, error) {
	const query = `SELECT ` + assignmentColumns + ` FROM assignment_records WHERE student_id = $1 AND mentor_id = $2 AND unassigned_at IS NULL LIMIT 1`
	var record models.AssignmentRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, mentorID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active pair: %w", err)
	}
	return &record, nil
}

// ListDetails returns ledger entries joined with participant names, newest
// pairing first.
func (r *AssignmentRepository) ListDetails(ctx context.Context, page, pageSize int) ([]models.AssignmentDetail, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const query = `
SELECT ar.id, ar.student_id, ar.mentor_id, ar.submission_id, ar.mentor_name, ar.assigned_at, ar.unassigned_at, ar.completed_at, ar.notes,
       COALESCE(su.full_name, s.student_name, '') AS student_name,
       COALESCE(su.email, s.student_email, '') AS student_email,
       s.desired_domain
FROM assignment_records ar
LEFT JOIN users su ON su.id = ar.student_id
LEFT JOIN submissions s ON s.id = ar.submission_id
ORDER BY COALESCE(ar.completed_at, ar.assigned_at) DESC
LIMIT $1 OFFSET $2`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, pageSize, offset); err != nil {
		return nil, fmt.Errorf("list assignment details: %w", err)
	}
	return details, nil
}

// StampCompleted records the completion time on a ledger entry.
func (r *AssignmentRepository) StampCompleted(ctx context.Context, id string, completedAt time.Time) error {
	const query = `UPDATE assignment_records SET completed_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, completedAt)
	if err != nil {
		return fmt.Errorf("stamp completed assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check completed rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpsertProgressNote overwrites the latest progress note for a ledger entry,
// inserting when none exists. Latest wins; prior notes are not kept.
func (r *AssignmentRepository) UpsertProgressNote(ctx context.Context, note *models.ProgressNote) error {
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assignment_progress_notes (assignment_record_id, status, completion_date, notes, updated_at)
		VALUES (:assignment_record_id, :status, :completion_date, :notes, :updated_at)
		ON CONFLICT (assignment_record_id) DO UPDATE
		SET status = EXCLUDED.status, completion_date = EXCLUDED.completion_date, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, note); err != nil {
		return fmt.Errorf("upsert progress note: %w", err)
	}
	return nil
}

// GetProgressNote returns the latest note for a ledger entry.
func (r *AssignmentRepository) GetProgressNote(ctx context.Context, assignmentRecordID string) (*models.ProgressNote, error) {
	const query = `SELECT assignment_record_id, status, completion_date, notes, updated_at FROM assignment_progress_notes WHERE assignment_record_id = $1 LIMIT 1`
	var note models.ProgressNote
	if err := r.db.GetContext(ctx, &note, query, assignmentRecordID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get progress note: %w", err)
	}
	return &note, nil
}
