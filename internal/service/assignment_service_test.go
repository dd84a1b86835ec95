package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mentorlink/mentorlink-api/internal/models"
	"github.com/mentorlink/mentorlink-api/internal/repository"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
)

type mentorDirectoryStub struct {
	mentors map[string]*models.User
}

func (s *mentorDirectoryStub) FindMentorByID(ctx context.Context, id string) (*models.User, error) {
	if mentor, ok := s.mentors[id]; ok {
		return mentor, nil
	}
	return nil, sql.ErrNoRows
}

type submissionResolverStub struct {
	byID     map[string]*models.Submission
	latest   map[string]*models.Submission
	idCalls  []string
	latCalls []string
}

func (s *submissionResolverStub) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	s.idCalls = append(s.idCalls, id)
	if sub, ok := s.byID[id]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *submissionResolverStub) FindLatestByStudent(ctx context.Context, studentID string) (*models.Submission, error) {
	s.latCalls = append(s.latCalls, studentID)
	if sub, ok := s.latest[studentID]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type ledgerStub struct {
	activePair bool
	assignErr  error
	unassigned bool
	changed    bool
	assigned   []string
	record     *models.AssignmentRecord
}

func (s *ledgerStub) Assign(ctx context.Context, submissionID, studentID, mentorID, mentorName string) (*models.AssignmentRecord, error) {
	if s.assignErr != nil {
		return nil, s.assignErr
	}
	s.assigned = append(s.assigned, submissionID)
	record := &models.AssignmentRecord{
		ID:           "rec-1",
		StudentID:    studentID,
		MentorID:     mentorID,
		SubmissionID: &submissionID,
		MentorName:   mentorName,
		AssignedAt:   time.Now().UTC(),
	}
	s.record = record
	return record, nil
}

func (s *ledgerStub) Unassign(ctx context.Context, submissionID string) (bool, error) {
	s.unassigned = true
	return s.changed, nil
}

func (s *ledgerStub) HasActivePair(ctx context.Context, studentID, mentorID string) (bool, error) {
	return s.activePair, nil
}

type cacheStub struct {
	patterns []string
}

func (s *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func pendingSubmission(id, studentID string) *models.Submission {
	sid := studentID
	return &models.Submission{
		ID:        id,
		StudentID: &sid,
		Status:    models.SubmissionPending,
	}
}

func newAssignmentService(mentors *mentorDirectoryStub, subs *submissionResolverStub, ledger *ledgerStub, cache *cacheStub) *AssignmentService {
	return NewAssignmentService(mentors, subs, ledger, cache, validator.New(), zap.NewNop())
}

func TestAssignmentServiceAssign(t *testing.T) {
	mentors := &mentorDirectoryStub{mentors: map[string]*models.User{
		"mentor-1": {ID: "mentor-1", FullName: "Dana Mentor", Role: models.RoleMentor},
	}}
	subs := &submissionResolverStub{byID: map[string]*models.Submission{
		"sub-1": pendingSubmission("sub-1", "student-1"),
	}}
	ledger := &ledgerStub{}
	cache := &cacheStub{}

	svc := newAssignmentService(mentors, subs, ledger, cache)
	record, err := svc.Assign(context.Background(), AssignRequest{SubmissionID: "sub-1", MentorID: "mentor-1"}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "Dana Mentor", record.MentorName)
	assert.Equal(t, []string{"sub-1"}, ledger.assigned)
	assert.Equal(t, []string{"history:*"}, cache.patterns)
}

func TestAssignmentServiceAssignResolvesLatestSubmission(t *testing.T) {
	mentors := &mentorDirectoryStub{mentors: map[string]*models.User{
		"mentor-1": {ID: "mentor-1", FullName: "Dana Mentor"},
	}}
	subs := &submissionResolverStub{latest: map[string]*models.Submission{
		"student-1": pendingSubmission("sub-7", "student-1"),
	}}
	ledger := &ledgerStub{}

	svc := newAssignmentService(mentors, subs, ledger, &cacheStub{})
	record, err := svc.Assign(context.Background(), AssignRequest{StudentID: "student-1", MentorID: "mentor-1"}, adminClaims())
	require.NoError(t, err)
	require.NotNil(t, record.SubmissionID)
	assert.Equal(t, "sub-7", *record.SubmissionID)
	assert.Empty(t, subs.idCalls)
	assert.Equal(t, []string{"student-1"}, subs.latCalls)
}

func TestAssignmentServiceAssignToleratesMentorLookupFailure(t *testing.T) {
	mentors := &mentorDirectoryStub{}
	subs := &submissionResolverStub{byID: map[string]*models.Submission{
		"sub-1": pendingSubmission("sub-1", "student-1"),
	}}
	ledger := &ledgerStub{}

	svc := newAssignmentService(mentors, subs, ledger, &cacheStub{})
	record, err := svc.Assign(context.Background(), AssignRequest{SubmissionID: "sub-1", MentorID: "mentor-404"}, adminClaims())
	require.NoError(t, err)
	assert.Empty(t, record.MentorName)
}

func TestAssignmentServiceAssignForbiddenForNonAdmin(t *testing.T) {
	svc := newAssignmentService(&mentorDirectoryStub{}, &submissionResolverStub{}, &ledgerStub{}, &cacheStub{})

	_, err := svc.Assign(context.Background(), AssignRequest{SubmissionID: "sub-1", MentorID: "mentor-1"},
		&models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAssignmentServiceAssignRequiresTarget(t *testing.T) {
	svc := newAssignmentService(&mentorDirectoryStub{}, &submissionResolverStub{}, &ledgerStub{}, &cacheStub{})

	_, err := svc.Assign(context.Background(), AssignRequest{MentorID: "mentor-1"}, adminClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAssignmentServiceAssignConflictOnActivePair(t *testing.T) {
	mentors := &mentorDirectoryStub{mentors: map[string]*models.User{"mentor-1": {ID: "mentor-1"}}}
	subs := &submissionResolverStub{byID: map[string]*models.Submission{
		"sub-1": pendingSubmission("sub-1", "student-1"),
	}}
	ledger := &ledgerStub{activePair: true}

	svc := newAssignmentService(mentors, subs, ledger, &cacheStub{})
	_, err := svc.Assign(context.Background(), AssignRequest{SubmissionID: "sub-1", MentorID: "mentor-1"}, adminClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, ledger.assigned)
}

func TestAssignmentServiceAssignConflictOnBoundSubmission(t *testing.T) {
	mentorID := "mentor-9"
	bound := pendingSubmission("sub-1", "student-1")
	bound.MentorID = &mentorID
	bound.Status = models.SubmissionAssigned

	mentors := &mentorDirectoryStub{mentors: map[string]*models.User{"mentor-1": {ID: "mentor-1"}}}
	subs := &submissionResolverStub{byID: map[string]*models.Submission{"sub-1": bound}}

	svc := newAssignmentService(mentors, subs, &ledgerStub{}, &cacheStub{})
	_, err := svc.Assign(context.Background(), AssignRequest{SubmissionID: "sub-1", MentorID: "mentor-1"}, adminClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAssignmentServiceAssignPreconditionOnNonPending(t *testing.T) {
	inProgress := pendingSubmission("sub-1", "student-1")
	inProgress.Status = models.SubmissionInProgress

	mentors := &mentorDirectoryStub{mentors: map[string]*models.User{"mentor-1": {ID: "mentor-1"}}}
	subs := &submissionResolverStub{byID: map[string]*models.Submission{"sub-1": inProgress}}

	svc := newAssignmentService(mentors, subs, &ledgerStub{}, &cacheStub{})
	_, err := svc.Assign(context.Background(), AssignRequest{SubmissionID: "sub-1", MentorID: "mentor-1"}, adminClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestAssignmentServiceAssignMapsLedgerRace(t *testing.T) {
	mentors := &mentorDirectoryStub{mentors: map[string]*models.User{"mentor-1": {ID: "mentor-1"}}}
	subs := &submissionResolverStub{byID: map[string]*models.Submission{
		"sub-1": pendingSubmission("sub-1", "student-1"),
	}}
	ledger := &ledgerStub{assignErr: repository.ErrPairActive}

	svc := newAssignmentService(mentors, subs, ledger, &cacheStub{})
	_, err := svc.Assign(context.Background(), AssignRequest{SubmissionID: "sub-1", MentorID: "mentor-1"}, adminClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAssignmentServiceAssignNotFound(t *testing.T) {
	mentors := &mentorDirectoryStub{mentors: map[string]*models.User{"mentor-1": {ID: "mentor-1"}}}
	subs := &submissionResolverStub{}

	svc := newAssignmentService(mentors, subs, &ledgerStub{}, &cacheStub{})
	_, err := svc.Assign(context.Background(), AssignRequest{SubmissionID: "missing", MentorID: "mentor-1"}, adminClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestAssignmentServiceUnassignInvalidatesCacheOnlyOnChange(t *testing.T) {
	ledger := &ledgerStub{changed: true}
	cache := &cacheStub{}
	svc := newAssignmentService(&mentorDirectoryStub{}, &submissionResolverStub{}, ledger, cache)

	require.NoError(t, svc.Unassign(context.Background(), "sub-1", adminClaims()))
	assert.True(t, ledger.unassigned)
	assert.Len(t, cache.patterns, 1)

	noop := &ledgerStub{changed: false}
	cache2 := &cacheStub{}
	svc2 := newAssignmentService(&mentorDirectoryStub{}, &submissionResolverStub{}, noop, cache2)

	require.NoError(t, svc2.Unassign(context.Background(), "sub-1", adminClaims()))
	assert.Empty(t, cache2.patterns)
}

func TestAssignmentServiceUnassignForbiddenForMentor(t *testing.T) {
	svc := newAssignmentService(&mentorDirectoryStub{}, &submissionResolverStub{}, &ledgerStub{}, &cacheStub{})
	err := svc.Unassign(context.Background(), "sub-1", &models.JWTClaims{Role: models.RoleMentor})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAssignmentServiceUnassignNotFoundPassthrough(t *testing.T) {
	ledger := &errLedgerStub{err: sql.ErrNoRows}
	svc := NewAssignmentService(&mentorDirectoryStub{}, &submissionResolverStub{}, ledger, &cacheStub{}, validator.New(), zap.NewNop())

	err := svc.Unassign(context.Background(), "missing", adminClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestAssignmentServiceUnassignFinishedLifecycle(t *testing.T) {
	ledger := &errLedgerStub{err: repository.ErrLifecycleFinished}
	svc := NewAssignmentService(&mentorDirectoryStub{}, &submissionResolverStub{}, ledger, &cacheStub{}, validator.New(), zap.NewNop())

	err := svc.Unassign(context.Background(), "sub-1", adminClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

type errLedgerStub struct {
	err error
}

func (s *errLedgerStub) Assign(ctx context.Context, submissionID, studentID, mentorID, mentorName string) (*models.AssignmentRecord, error) {
	return nil, s.err
}

func (s *errLedgerStub) Unassign(ctx context.Context, submissionID string) (bool, error) {
	return false, s.err
}

func (s *errLedgerStub) HasActivePair(ctx context.Context, studentID, mentorID string) (bool, error) {
	return false, errors.New("unreachable")
}
