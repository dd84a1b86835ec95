package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mentorlink/mentorlink-api/internal/models"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.SessionRecord) error
	List(ctx context.Context, filter models.SessionFilter) ([]models.SessionRecord, error)
}

type pairingChecker interface {
	HasActivePair(ctx context.Context, studentID, mentorID string) (bool, error)
}

type submissionBindingChecker interface {
	ExistsByStudentAndMentor(ctx context.Context, studentID, mentorID string) (bool, error)
}

// ScheduleSessionRequest describes a mentor scheduling a meeting with one of
// their assigned students.
type ScheduleSessionRequest struct {
	StudentID   string    `json:"student_id" validate:"required"`
	Agenda      string    `json:"agenda" validate:"required"`
	Description *string   `json:"description"`
	Timing      time.Time `json:"timing" validate:"required"`
	MeetingRef  string    `json:"meeting_ref" validate:"required"`
}

// SessionService manages the session register. Scheduling is restricted to
// mentors acting on their currently assigned students.
type SessionService struct {
	sessions    sessionStore
	ledger      pairingChecker
	submissions submissionBindingChecker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSessionService creates a service instance.
func NewSessionService(
	sessions sessionStore,
	ledger pairingChecker,
	submissions submissionBindingChecker,
	validate *validator.Validate,
	logger *zap.Logger,
) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:    sessions,
		ledger:      ledger,
		submissions: submissions,
		validator:   validate,
		logger:      logger,
	}
}

// Schedule creates a session in scheduled state. The mentor must currently be
// paired with the student, either through the ledger or a bound submission.
func (s *SessionService) Schedule(ctx context.Context, req ScheduleSessionRequest, actor *models.JWTClaims) (*models.SessionRecord, error) {
	if actor == nil || actor.Role != models.RoleMentor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only mentors may schedule sessions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	paired, err := s.isPaired(ctx, req.StudentID, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify mentor pairing")
	}
	if !paired {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not assigned to this mentor")
	}

	session := &models.SessionRecord{
		MentorID:    actor.UserID,
		StudentID:   req.StudentID,
		Agenda:      req.Agenda,
		Description: req.Description,
		Timing:      req.Timing,
		MeetingRef:  req.MeetingRef,
		Status:      models.SessionScheduled,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.logger.Info("session scheduled",
		zap.String("session_id", session.ID),
		zap.String("mentor_id", session.MentorID),
		zap.String("student_id", session.StudentID))
	return session, nil
}

// ListByMentor returns the mentor's own sessions, optionally filtered by
// status.
func (s *SessionService) ListByMentor(ctx context.Context, mentorID string, status models.SessionStatus, page, pageSize int) ([]models.SessionRecord, error) {
	if mentorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "mentor_id is required")
	}
	sessions, err := s.sessions.List(ctx, models.SessionFilter{
		MentorID: mentorID,
		Status:   status,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// ListByStudent returns the student's sessions across all mentors.
func (s *SessionService) ListByStudent(ctx context.Context, studentID string, status models.SessionStatus, page, pageSize int) ([]models.SessionRecord, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	sessions, err := s.sessions.List(ctx, models.SessionFilter{
		StudentID: studentID,
		Status:    status,
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// isPaired consults the ledger first, then the submission binding. Older
// pairings made before the ledger existed only show up on the submission.
func (s *SessionService) isPaired(ctx context.Context, studentID, mentorID string) (bool, error) {
	active, err := s.ledger.HasActivePair(ctx, studentID, mentorID)
	if err != nil {
		return false, err
	}
	if active {
		return true, nil
	}
	return s.submissions.ExistsByStudentAndMentor(ctx, studentID, mentorID)
}
