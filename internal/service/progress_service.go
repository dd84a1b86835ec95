package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mentorlink/mentorlink-api/internal/models"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
)

type submissionProgressStore interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus, updatedAt time.Time) error
}

type ledgerProgressStore interface {
	FindByID(ctx context.Context, id string) (*models.AssignmentRecord, error)
	FindActiveByPair(ctx context.Context, studentID, mentorID string) (*models.AssignmentRecord, error)
	StampCompleted(ctx context.Context, id string, completedAt time.Time) error
	UpsertProgressNote(ctx context.Context, note *models.ProgressNote) error
}

type sessionProgressStore interface {
	FindByID(ctx context.Context, sessionID string) (*models.SessionRecord, error)
	CloseSession(ctx context.Context, sessionID, mentorID string, status models.SessionStatus, at time.Time) error
}

// ProgressNoteRequest describes a latest-wins progress annotation.
type ProgressNoteRequest struct {
	AssignmentRecordID string     `json:"assignment_record_id" validate:"required"`
	Status             string     `json:"status" validate:"required"`
	CompletionDate     *time.Time `json:"completion_date"`
	Notes              *string    `json:"notes"`
}

// ProgressService drives the assigned -> in_progress -> completed/rejected
// transitions on submissions and the scheduled -> completed/canceled
// transitions on sessions.
type ProgressService struct {
	submissions submissionProgressStore
	ledger      ledgerProgressStore
	sessions    sessionProgressStore
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewProgressService creates a service instance.
func NewProgressService(
	submissions submissionProgressStore,
	ledger ledgerProgressStore,
	sessions sessionProgressStore,
	validate *validator.Validate,
	logger *zap.Logger,
) *ProgressService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		submissions: submissions,
		ledger:      ledger,
		sessions:    sessions,
		validator:   validate,
		logger:      logger,
	}
}

// UpdateSubmissionStatus moves a submission through its lifecycle. Mentors may
// only act on submissions bound to them; administrators may act on any.
// Repeating the current status is an idempotent no-op.
func (s *ProgressService) UpdateSubmissionStatus(ctx context.Context, submissionID string, newStatus models.SubmissionStatus, actor *models.JWTClaims) (*models.Submission, error) {
	if !newStatus.Valid() || newStatus == models.SubmissionPending {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid submission status")
	}
	if actor == nil || (actor.Role != models.RoleAdmin && actor.Role != models.RoleMentor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update submission status")
	}

	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	if actor.Role == models.RoleMentor {
		if submission.MentorID == nil || *submission.MentorID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "submission is not assigned to this mentor")
		}
	}

	if submission.Status == newStatus {
		return submission, nil
	}
	if submission.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submission lifecycle already finished")
	}
	if newStatus == models.SubmissionAssigned && submission.MentorID == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submission has no mentor bound")
	}
	// The lifecycle only moves forward; mentoring that started does not
	// revert to merely assigned.
	if newStatus == models.SubmissionAssigned && submission.Status == models.SubmissionInProgress {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "mentoring already in progress")
	}

	now := time.Now().UTC()
	if err := s.submissions.UpdateStatus(ctx, submissionID, newStatus, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission status")
	}

	// Completion is also stamped on the active ledger entry. The submission
	// write is authoritative; a failed stamp is logged, not propagated.
	if newStatus == models.SubmissionCompleted && submission.StudentID != nil && submission.MentorID != nil {
		if record, err := s.ledger.FindActiveByPair(ctx, *submission.StudentID, *submission.MentorID); err == nil {
			if err := s.ledger.StampCompleted(ctx, record.ID, now); err != nil {
				s.logger.Warn("failed to stamp completed assignment record",
					zap.String("record_id", record.ID),
					zap.Error(err))
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to locate active assignment record for completion",
				zap.String("submission_id", submissionID),
				zap.Error(err))
		}
	}

	submission.Status = newStatus
	submission.UpdatedAt = now
	return submission, nil
}

// RecordProgressNote upserts the note attached to a ledger entry. Latest
// wins; no history of prior notes is kept.
func (s *ProgressService) RecordProgressNote(ctx context.Context, req ProgressNoteRequest) (*models.ProgressNote, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid progress note payload")
	}

	if _, err := s.ledger.FindByID(ctx, req.AssignmentRecordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment record")
	}

	note := &models.ProgressNote{
		AssignmentRecordID: req.AssignmentRecordID,
		Status:             req.Status,
		CompletionDate:     req.CompletionDate,
		Notes:              req.Notes,
		UpdatedAt:          time.Now().UTC(),
	}
	if err := s.ledger.UpsertProgressNote(ctx, note); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store progress note")
	}
	return note, nil
}

// CloseSession finishes or cancels a scheduled session on behalf of its
// owning mentor. Closing an already closed session with the same status is a
// no-op; flipping between closed states is rejected.
func (s *ProgressService) CloseSession(ctx context.Context, sessionID string, newStatus models.SessionStatus, actor *models.JWTClaims) (*models.SessionRecord, error) {
	if newStatus != models.SessionCompleted && newStatus != models.SessionCanceled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid session status")
	}
	if actor == nil || actor.Role != models.RoleMentor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only mentors may close sessions")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.MentorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another mentor")
	}
	if session.Status == newStatus {
		return session, nil
	}
	if session.Status != models.SessionScheduled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is already closed")
	}

	now := time.Now().UTC()
	if err := s.sessions.CloseSession(ctx, sessionID, actor.UserID, newStatus, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "session is already closed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close session")
	}

	session.Status = newStatus
	session.UpdatedAt = now
	switch newStatus {
	case models.SessionCompleted:
		session.CompletedAt = &now
		s.enrichCompletedSession(ctx, session, now)
	case models.SessionCanceled:
		session.CanceledAt = &now
	}
	return session, nil
}

// enrichCompletedSession attaches a progress note to the active assignment
// record for the pair. Fire-and-forget: any failure is logged and swallowed.
func (s *ProgressService) enrichCompletedSession(ctx context.Context, session *models.SessionRecord, at time.Time) {
	record, err := s.ledger.FindActiveByPair(ctx, session.StudentID, session.MentorID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to locate assignment record for session note",
				zap.String("session_id", session.ID),
				zap.Error(err))
		}
		return
	}

	notes := "session completed: " + session.Agenda
	note := &models.ProgressNote{
		AssignmentRecordID: record.ID,
		Status:             string(models.SessionCompleted),
		CompletionDate:     &at,
		Notes:              &notes,
		UpdatedAt:          at,
	}
	if err := s.ledger.UpsertProgressNote(ctx, note); err != nil {
		s.logger.Warn("failed to upsert session progress note",
			zap.String("session_id", session.ID),
			zap.String("record_id", record.ID),
			zap.Error(err))
	}
}
