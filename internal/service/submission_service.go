package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mentorlink/mentorlink-api/internal/models"
	"github.com/mentorlink/mentorlink-api/pkg/config"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
)

type submissionStore interface {
	Create(ctx context.Context, submission *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	ExistsActiveDomain(ctx context.Context, studentID *string, studentEmail, domainKey string) (bool, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
	UpdateStudentFields(ctx context.Context, submission *models.Submission) error
	SetResumeRef(ctx context.Context, id, resumeRef string, updatedAt time.Time) error
}

type resumeStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type resumeSigner interface {
	Generate(submissionID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (submissionID, relPath string, expiresAt time.Time, err error)
}

// CreateSubmissionRequest is the student-facing interest form payload.
type CreateSubmissionRequest struct {
	StudentEmail  string   `json:"student_email" validate:"required,email"`
	StudentName   string   `json:"student_name" validate:"required"`
	Interests     []string `json:"interests" validate:"required,min=1,dive,required"`
	DesiredDomain string   `json:"desired_domain" validate:"required"`
	Goals         string   `json:"goals" validate:"required"`
}

// UpdateSubmissionRequest carries the student-editable fields. Only pending
// submissions accept edits.
type UpdateSubmissionRequest struct {
	StudentName   string   `json:"student_name" validate:"required"`
	Interests     []string `json:"interests" validate:"required,min=1,dive,required"`
	DesiredDomain string   `json:"desired_domain" validate:"required"`
	Goals         string   `json:"goals" validate:"required"`
}

// ResumeUpload is the decoded multipart file handed in by the handler.
type ResumeUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ResumeLink is a time-limited download grant for a stored resume.
type ResumeLink struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SubmissionService manages interest submissions and their resume attachments.
type SubmissionService struct {
	submissions submissionStore
	resumes     resumeStore
	signer      resumeSigner
	resumeCfg   config.ResumesConfig
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSubmissionService creates a service instance.
func NewSubmissionService(
	submissions submissionStore,
	resumes resumeStore,
	signer resumeSigner,
	resumeCfg config.ResumesConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		submissions: submissions,
		resumes:     resumes,
		signer:      signer,
		resumeCfg:   resumeCfg,
		validator:   validate,
		logger:      logger,
	}
}

// Create registers a new pending submission. A student identity may hold at
// most one non-rejected submission per normalized domain.
func (s *SubmissionService) Create(ctx context.Context, req CreateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	var studentID *string
	email := req.StudentEmail
	name := req.StudentName
	if actor != nil && actor.Role == models.RoleStudent {
		id := actor.UserID
		studentID = &id
		email = actor.Email
		name = actor.FullName
	}

	domainKey := models.NormalizeDomain(req.DesiredDomain)
	exists, err := s.submissions.ExistsActiveDomain(ctx, studentID, email, domainKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing submissions")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active submission for this domain already exists")
	}

	submission := &models.Submission{
		StudentID:     studentID,
		StudentEmail:  email,
		StudentName:   name,
		Interests:     pq.StringArray(req.Interests),
		DesiredDomain: req.DesiredDomain,
		Goals:         req.Goals,
		Status:        models.SubmissionPending,
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}

	s.logger.Info("submission created",
		zap.String("submission_id", submission.ID),
		zap.String("domain", submission.DomainKey))
	return submission, nil
}

// Get returns a submission visible to the actor: students see their own,
// mentors see submissions bound to them, administrators see everything.
func (s *SubmissionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Submission, error) {
	submission, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(submission, actor); err != nil {
		return nil, err
	}
	return submission, nil
}

// List returns submissions scoped by role. Mentors and students get their own
// slice regardless of the requested filter.
func (s *SubmissionService) List(ctx context.Context, filter models.SubmissionFilter, actor *models.JWTClaims) ([]models.Submission, int, error) {
	if actor == nil {
		return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list submissions")
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleMentor:
		filter.MentorID = actor.UserID
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	default:
		return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list submissions")
	}

	submissions, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, total, nil
}

// Update edits the student-owned fields of a pending submission. Moving the
// submission to another domain re-runs the per-domain uniqueness check.
func (s *SubmissionService) Update(ctx context.Context, id string, req UpdateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	submission, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(submission, actor); err != nil {
		return nil, err
	}
	if submission.Status != models.SubmissionPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only pending submissions can be edited")
	}

	newKey := models.NormalizeDomain(req.DesiredDomain)
	if newKey != submission.DomainKey {
		exists, err := s.submissions.ExistsActiveDomain(ctx, submission.StudentID, submission.StudentEmail, newKey)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing submissions")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an active submission for this domain already exists")
		}
	}

	submission.StudentName = req.StudentName
	submission.Interests = pq.StringArray(req.Interests)
	submission.DesiredDomain = req.DesiredDomain
	submission.Goals = req.Goals

	if err := s.submissions.UpdateStudentFields(ctx, submission); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only pending submissions can be edited")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
	}
	return submission, nil
}

// AttachResume validates and stores an uploaded resume, then records the
// opaque reference on the submission. Re-uploading replaces the reference.
func (s *SubmissionService) AttachResume(ctx context.Context, id string, upload ResumeUpload, actor *models.JWTClaims) (*models.Submission, error) {
	submission, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(submission, actor); err != nil {
		return nil, err
	}

	if len(upload.Data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resume file is empty")
	}
	if s.resumeCfg.MaxFileSizeBytes > 0 && int64(len(upload.Data)) > s.resumeCfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("resume exceeds the %d byte limit", s.resumeCfg.MaxFileSizeBytes))
	}
	if !s.mimeAllowed(upload.ContentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported resume file type")
	}

	ext := path.Ext(upload.Filename)
	relPath := fmt.Sprintf("%s/%s%s", submission.ID, uuid.NewString(), ext)
	stored, err := s.resumes.Save(relPath, upload.Data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store resume")
	}

	now := time.Now().UTC()
	if err := s.submissions.SetResumeRef(ctx, submission.ID, stored, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record resume reference")
	}

	submission.ResumeRef = &stored
	submission.UpdatedAt = now
	return submission, nil
}

// ResumeLink issues a signed, time-limited download token for the submission's
// stored resume.
func (s *SubmissionService) ResumeLink(ctx context.Context, id string, actor *models.JWTClaims) (*ResumeLink, error) {
	submission, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(submission, actor); err != nil {
		return nil, err
	}
	if submission.ResumeRef == nil || *submission.ResumeRef == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission has no resume attached")
	}

	token, expiresAt, err := s.signer.Generate(submission.ID, *submission.ResumeRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign resume link")
	}
	return &ResumeLink{Token: token, ExpiresAt: expiresAt}, nil
}

// OpenResumeByToken validates a signed token and opens the referenced file.
// The caller owns closing the returned handle.
func (s *SubmissionService) OpenResumeByToken(ctx context.Context, token string) (*os.File, error) {
	submissionID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired resume link")
	}

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.ResumeRef == nil || *submission.ResumeRef != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "resume link no longer valid")
	}

	file, err := s.resumes.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open resume")
	}
	return file, nil
}

func (s *SubmissionService) loadSubmission(ctx context.Context, id string) (*models.Submission, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission id is required")
	}
	submission, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

func (s *SubmissionService) authorizeRead(submission *models.Submission, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this submission")
	}
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleMentor:
		if submission.MentorID != nil && *submission.MentorID == actor.UserID {
			return nil
		}
	case models.RoleStudent:
		if submission.StudentID != nil && *submission.StudentID == actor.UserID {
			return nil
		}
		if submission.StudentEmail == actor.Email {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this submission")
}

func (s *SubmissionService) authorizeWrite(submission *models.Submission, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this submission")
	}
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleStudent:
		if submission.StudentID != nil && *submission.StudentID == actor.UserID {
			return nil
		}
		if submission.StudentEmail == actor.Email {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this submission")
}

func (s *SubmissionService) mimeAllowed(contentType string) bool {
	if len(s.resumeCfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.resumeCfg.AllowedMIMEs {
		if contentType == allowed {
			return true
		}
	}
	return false
}
