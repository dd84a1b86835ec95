package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mentorlink/mentorlink-api/internal/models"
	"github.com/mentorlink/mentorlink-api/internal/repository"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
)

type mentorDirectory interface {
	FindMentorByID(ctx context.Context, id string) (*models.User, error)
}

type submissionResolver interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindLatestByStudent(ctx context.Context, studentID string) (*models.Submission, error)
}

type assignmentLedger interface {
	Assign(ctx context.Context, submissionID, studentID, mentorID, mentorName string) (*models.AssignmentRecord, error)
	Unassign(ctx context.Context, submissionID string) (bool, error)
	HasActivePair(ctx context.Context, studentID, mentorID string) (bool, error)
}

type historyCache interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AssignRequest describes an assign action. The target submission is resolved
// either by explicit id or, as a fallback, by the student's most recent
// submission.
type AssignRequest struct {
	SubmissionID string `json:"submission_id"`
	StudentID    string `json:"student_id"`
	MentorID     string `json:"mentor_id" validate:"required"`
}

// AssignmentService coordinates the pending->assigned transition and its
// inverse, keeping the submission row and the assignment ledger in agreement.
type AssignmentService struct {
	mentors     mentorDirectory
	submissions submissionResolver
	ledger      assignmentLedger
	cache       historyCache
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService creates a service instance.
func NewAssignmentService(
	mentors mentorDirectory,
	submissions submissionResolver,
	ledger assignmentLedger,
	cache historyCache,
	validate *validator.Validate,
	logger *zap.Logger,
) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		mentors:     mentors,
		submissions: submissions,
		ledger:      ledger,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// Assign pairs a mentor with the resolved submission. Only administrators may
// assign. All precondition checks run before any write; the dual write itself
// is a single transaction in the ledger repository.
func (s *AssignmentService) Assign(ctx context.Context, req AssignRequest, actor *models.JWTClaims) (*models.AssignmentRecord, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may assign mentors")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if req.SubmissionID == "" && req.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission_id or student_id is required")
	}

	// Display-name enrichment is tolerant: a failed lookup logs a warning and
	// the assignment proceeds with an empty snapshot.
	mentorName := ""
	if mentor, err := s.mentors.FindMentorByID(ctx, req.MentorID); err != nil {
		s.logger.Warn("mentor name lookup failed",
			zap.String("mentor_id", req.MentorID),
			zap.Error(err))
	} else {
		mentorName = mentor.FullName
	}

	submission, err := s.resolveTargetSubmission(ctx, req.SubmissionID, req.StudentID)
	if err != nil {
		return nil, err
	}

	studentID := req.StudentID
	if submission.StudentID != nil {
		studentID = *submission.StudentID
	}
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission has no resolvable student identity")
	}

	active, err := s.ledger.HasActivePair(ctx, studentID, req.MentorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing assignment")
	}
	if active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already assigned to this mentor")
	}

	if submission.MentorID != nil || submission.Status == models.SubmissionAssigned {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has a mentor assigned")
	}
	if submission.Status != models.SubmissionPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submission is not pending")
	}

	record, err := s.ledger.Assign(ctx, submission.ID, studentID, req.MentorID, mentorName)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		case errors.Is(err, repository.ErrSubmissionBound):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already has a mentor assigned")
		case errors.Is(err, repository.ErrPairActive):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already assigned to this mentor")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign mentor")
		}
	}

	s.invalidateHistory(ctx)
	return record, nil
}

// Unassign releases the submission back to pending and closes the active
// ledger entry. Re-unassigning an already pending submission is a no-op
// success.
func (s *AssignmentService) Unassign(ctx context.Context, submissionID string, actor *models.JWTClaims) error {
	if actor == nil || actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators may unassign mentors")
	}
	if submissionID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "submission_id is required")
	}

	changed, err := s.ledger.Unassign(ctx, submissionID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		case errors.Is(err, repository.ErrLifecycleFinished):
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "submission lifecycle already finished")
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign mentor")
		}
	}

	if changed {
		s.invalidateHistory(ctx)
	}
	return nil
}

// resolveTargetSubmission implements the resolution contract: an explicit
// submission id wins, otherwise the student's newest submission is picked.
func (s *AssignmentService) resolveTargetSubmission(ctx context.Context, explicitID, studentID string) (*models.Submission, error) {
	if explicitID != "" {
		submission, err := s.submissions.FindByID(ctx, explicitID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
		}
		return submission, nil
	}

	submission, err := s.submissions.FindLatestByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no submissions")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest submission")
	}
	return submission, nil
}

// invalidateHistory drops cached history pages. The cache is a performance
// hint; the reader always re-derives from source tables, so failures only get
// a warning.
func (s *AssignmentService) invalidateHistory(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "history:*"); err != nil {
		s.logger.Warn("history cache invalidation failed", zap.Error(err))
	}
}
