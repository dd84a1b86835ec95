package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mentorlink/mentorlink-api/internal/models"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
)

type submissionProgressStub struct {
	byID    map[string]*models.Submission
	updates []models.SubmissionStatus
}

func (s *submissionProgressStub) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	if sub, ok := s.byID[id]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *submissionProgressStub) UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus, updatedAt time.Time) error {
	s.updates = append(s.updates, status)
	return nil
}

type ledgerProgressStub struct {
	byID       map[string]*models.AssignmentRecord
	activePair *models.AssignmentRecord
	stamped    []string
	stampErr   error
	notes      []*models.ProgressNote
}

func (s *ledgerProgressStub) FindByID(ctx context.Context, id string) (*models.AssignmentRecord, error) {
	if record, ok := s.byID[id]; ok {
		return record, nil
	}
	return nil, sql.ErrNoRows
}

func (s *ledgerProgressStub) FindActiveByPair(ctx context.Context, studentID, mentorID string) (*models.AssignmentRecord, error) {
	if s.activePair == nil {
		return nil, sql.ErrNoRows
	}
	return s.activePair, nil
}

func (s *ledgerProgressStub) StampCompleted(ctx context.Context, id string, completedAt time.Time) error {
	if s.stampErr != nil {
		return s.stampErr
	}
	s.stamped = append(s.stamped, id)
	return nil
}

func (s *ledgerProgressStub) UpsertProgressNote(ctx context.Context, note *models.ProgressNote) error {
	s.notes = append(s.notes, note)
	return nil
}

type sessionProgressStub struct {
	byID     map[string]*models.SessionRecord
	closed   []models.SessionStatus
	closeErr error
}

func (s *sessionProgressStub) FindByID(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	if session, ok := s.byID[sessionID]; ok {
		cp := *session
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessionProgressStub) CloseSession(ctx context.Context, sessionID, mentorID string, status models.SessionStatus, at time.Time) error {
	if s.closeErr != nil {
		return s.closeErr
	}
	s.closed = append(s.closed, status)
	return nil
}

func boundSubmission(id, studentID, mentorID string, status models.SubmissionStatus) *models.Submission {
	sid, mid := studentID, mentorID
	return &models.Submission{
		ID:        id,
		StudentID: &sid,
		MentorID:  &mid,
		Status:    status,
	}
}

func assertAppError(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, want.Code, appErr.Code)
}

func TestProgressServiceUpdateStatusByMentor(t *testing.T) {
	subs := &submissionProgressStub{byID: map[string]*models.Submission{
		"sub-1": boundSubmission("sub-1", "student-1", "mentor-1", models.SubmissionAssigned),
	}}
	svc := NewProgressService(subs, &ledgerProgressStub{}, &sessionProgressStub{}, nil, zap.NewNop())

	updated, err := svc.UpdateSubmissionStatus(context.Background(), "sub-1", models.SubmissionInProgress,
		&models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionInProgress, updated.Status)
	assert.Equal(t, []models.SubmissionStatus{models.SubmissionInProgress}, subs.updates)
}

func TestProgressServiceUpdateStatusIdempotent(t *testing.T) {
	subs := &submissionProgressStub{byID: map[string]*models.Submission{
		"sub-1": boundSubmission("sub-1", "student-1", "mentor-1", models.SubmissionInProgress),
	}}
	svc := NewProgressService(subs, &ledgerProgressStub{}, &sessionProgressStub{}, nil, zap.NewNop())

	updated, err := svc.UpdateSubmissionStatus(context.Background(), "sub-1", models.SubmissionInProgress,
		&models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionInProgress, updated.Status)
	assert.Empty(t, subs.updates)
}

func TestProgressServiceUpdateStatusRejectsPendingTarget(t *testing.T) {
	svc := NewProgressService(&submissionProgressStub{}, &ledgerProgressStub{}, &sessionProgressStub{}, nil, zap.NewNop())

	_, err := svc.UpdateSubmissionStatus(context.Background(), "sub-1", models.SubmissionPending,
		&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	assertAppError(t, err, appErrors.ErrValidation)
}

func TestProgressServiceUpdateStatusTerminalGuard(t *testing.T) {
	subs := &submissionProgressStub{byID: map[string]*models.Submission{
		"sub-1": boundSubmission("sub-1", "student-1", "mentor-1", models.SubmissionCompleted),
	}}
	svc := NewProgressService(subs, &ledgerProgressStub{}, &sessionProgressStub{}, nil, zap.NewNop())

	_, err := svc.UpdateSubmissionStatus(context.Background(), "sub-1", models.SubmissionRejected,
		&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	assertAppError(t, err, appErrors.ErrPreconditionFailed)
	assert.Empty(t, subs.updates)
}

func TestProgressServiceUpdateStatusNoBackwardTransition(t *testing.T) {
	subs := &submissionProgressStub{byID: map[string]*models.Submission{
		"sub-1": boundSubmission("sub-1", "student-1", "mentor-1", models.SubmissionInProgress),
	}}
	svc := NewProgressService(subs, &ledgerProgressStub{}, &sessionProgressStub{}, nil, zap.NewNop())

	_, err := svc.UpdateSubmissionStatus(context.Background(), "sub-1", models.SubmissionAssigned,
		&models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor})
	assertAppError(t, err, appErrors.ErrPreconditionFailed)
	assert.Empty(t, subs.updates)
}

func TestProgressServiceUpdateStatusMentorOwnership(t *testing.T) {
	subs := &submissionProgressStub{byID: map[string]*models.Submission{
		"sub-1": boundSubmission("sub-1", "student-1", "mentor-1", models.SubmissionAssigned),
	}}
	svc := NewProgressService(subs, &ledgerProgressStub{}, &sessionProgressStub{}, nil, zap.NewNop())

	_, err := svc.UpdateSubmissionStatus(context.Background(), "sub-1", models.SubmissionInProgress,
		&models.JWTClaims{UserID: "mentor-2", Role: models.RoleMentor})
	assertAppError(t, err, appErrors.ErrForbidden)
}

func TestProgressServiceUpdateStatusStudentForbidden(t *testing.T) {
	svc := NewProgressService(&submissionProgressStub{}, &ledgerProgressStub{}, &sessionProgressStub{}, nil, zap.NewNop())

	_, err := svc.UpdateSubmissionStatus(context.Background(), "sub-1", models.SubmissionInProgress,
		&models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	assertAppError(t, err, appErrors.ErrForbidden)
}

func TestProgressServiceUpdateStatusCompletedStampsLedger(t *testing.T) {
	subs := &submissionProgressStub{byID: map[string]*models.Submission{
		"sub-1": boundSubmission("sub-1", "student-1", "mentor-1", models.SubmissionInProgress),
	}}
	ledger := &ledgerProgressStub{activePair: &models.AssignmentRecord{ID: "rec-1"}}
	svc := NewProgressService(subs, ledger, &sessionProgressStub{}, nil, zap.NewNop())

	updated, err := svc.UpdateSubmissionStatus(context.Background(), "sub-1", models.SubmissionCompleted,
		&models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionCompleted, updated.Status)
	assert.Equal(t, []string{"rec-1"}, ledger.stamped)
}

func TestProgressServiceUpdateStatusStampFailureIsSwallowed(t *testing.T) {
	subs := &submissionProgressStub{byID: map[string]*models.Submission{
		"sub-1": boundSubmission("sub-1", "student-1", "mentor-1", models.SubmissionInProgress),
	}}
	ledger := &ledgerProgressStub{activePair: &models.AssignmentRecord{ID: "rec-1"}, stampErr: sql.ErrConnDone}
	svc := NewProgressService(subs, ledger, &sessionProgressStub{}, nil, zap.NewNop())

	_, err := svc.UpdateSubmissionStatus(context.Background(), "sub-1", models.SubmissionCompleted,
		&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
}

func TestProgressServiceRecordProgressNote(t *testing.T) {
	ledger := &ledgerProgressStub{byID: map[string]*models.AssignmentRecord{
		"rec-1": {ID: "rec-1"},
	}}
	svc := NewProgressService(&submissionProgressStub{}, ledger, &sessionProgressStub{}, nil, zap.NewNop())

	notes := "good pace"
	note, err := svc.RecordProgressNote(context.Background(), ProgressNoteRequest{
		AssignmentRecordID: "rec-1",
		Status:             "on_track",
		Notes:              &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", note.AssignmentRecordID)
	require.Len(t, ledger.notes, 1)
	assert.Equal(t, "on_track", ledger.notes[0].Status)
}

func TestProgressServiceRecordProgressNoteUnknownRecord(t *testing.T) {
	svc := NewProgressService(&submissionProgressStub{}, &ledgerProgressStub{}, &sessionProgressStub{}, nil, zap.NewNop())

	_, err := svc.RecordProgressNote(context.Background(), ProgressNoteRequest{
		AssignmentRecordID: "rec-404",
		Status:             "on_track",
	})
	assertAppError(t, err, appErrors.ErrNotFound)
}

func TestProgressServiceCloseSessionCompleted(t *testing.T) {
	sessions := &sessionProgressStub{byID: map[string]*models.SessionRecord{
		"sess-1": {
			ID:        "sess-1",
			MentorID:  "mentor-1",
			StudentID: "student-1",
			Agenda:    "retro",
			Status:    models.SessionScheduled,
		},
	}}
	ledger := &ledgerProgressStub{activePair: &models.AssignmentRecord{ID: "rec-1"}}
	svc := NewProgressService(&submissionProgressStub{}, ledger, sessions, nil, zap.NewNop())

	closed, err := svc.CloseSession(context.Background(), "sess-1", models.SessionCompleted,
		&models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor})
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, closed.Status)
	require.NotNil(t, closed.CompletedAt)
	require.Len(t, ledger.notes, 1)
	assert.Equal(t, "rec-1", ledger.notes[0].AssignmentRecordID)
	require.NotNil(t, ledger.notes[0].Notes)
	assert.Equal(t, "session completed: retro", *ledger.notes[0].Notes)
}

func TestProgressServiceCloseSessionSameStatusNoop(t *testing.T) {
	sessions := &sessionProgressStub{byID: map[string]*models.SessionRecord{
		"sess-1": {ID: "sess-1", MentorID: "mentor-1", Status: models.SessionCanceled},
	}}
	svc := NewProgressService(&submissionProgressStub{}, &ledgerProgressStub{}, sessions, nil, zap.NewNop())

	closed, err := svc.CloseSession(context.Background(), "sess-1", models.SessionCanceled,
		&models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor})
	require.NoError(t, err)
	assert.Equal(t, models.SessionCanceled, closed.Status)
	assert.Empty(t, sessions.closed)
}

func TestProgressServiceCloseSessionFlipRejected(t *testing.T) {
	sessions := &sessionProgressStub{byID: map[string]*models.SessionRecord{
		"sess-1": {ID: "sess-1", MentorID: "mentor-1", Status: models.SessionCompleted},
	}}
	svc := NewProgressService(&submissionProgressStub{}, &ledgerProgressStub{}, sessions, nil, zap.NewNop())

	_, err := svc.CloseSession(context.Background(), "sess-1", models.SessionCanceled,
		&models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor})
	assertAppError(t, err, appErrors.ErrConflict)
}

func TestProgressServiceCloseSessionForeignMentor(t *testing.T) {
	sessions := &sessionProgressStub{byID: map[string]*models.SessionRecord{
		"sess-1": {ID: "sess-1", MentorID: "mentor-1", Status: models.SessionScheduled},
	}}
	svc := NewProgressService(&submissionProgressStub{}, &ledgerProgressStub{}, sessions, nil, zap.NewNop())

	_, err := svc.CloseSession(context.Background(), "sess-1", models.SessionCompleted,
		&models.JWTClaims{UserID: "mentor-2", Role: models.RoleMentor})
	assertAppError(t, err, appErrors.ErrForbidden)
}

func TestProgressServiceCloseSessionRaceMapsToConflict(t *testing.T) {
	sessions := &sessionProgressStub{
		byID: map[string]*models.SessionRecord{
			"sess-1": {ID: "sess-1", MentorID: "mentor-1", Status: models.SessionScheduled},
		},
		closeErr: sql.ErrNoRows,
	}
	svc := NewProgressService(&submissionProgressStub{}, &ledgerProgressStub{}, sessions, nil, zap.NewNop())

	_, err := svc.CloseSession(context.Background(), "sess-1", models.SessionCanceled,
		&models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor})
	assertAppError(t, err, appErrors.ErrConflict)
}
