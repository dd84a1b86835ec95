package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorlink/mentorlink-api/internal/models"
	"github.com/mentorlink/mentorlink-api/internal/service"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
)

type submissionServiceMock struct {
	createResp   *models.Submission
	createErr    error
	getResp      *models.Submission
	getErr       error
	listResp     []models.Submission
	listTotal    int
	listErr      error
	updateResp   *models.Submission
	updateErr    error
	attachResp   *models.Submission
	attachErr    error
	linkResp     *service.ResumeLink
	linkErr      error
	openErr      error
	lastUpload   service.ResumeUpload
	lastFilter   models.SubmissionFilter
	attachCalled bool
}

func (m *submissionServiceMock) Create(ctx context.Context, req service.CreateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error) {
	return m.createResp, m.createErr
}

func (m *submissionServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Submission, error) {
	return m.getResp, m.getErr
}

func (m *submissionServiceMock) List(ctx context.Context, filter models.SubmissionFilter, actor *models.JWTClaims) ([]models.Submission, int, error) {
	m.lastFilter = filter
	return m.listResp, m.listTotal, m.listErr
}

func (m *submissionServiceMock) Update(ctx context.Context, id string, req service.UpdateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error) {
	return m.updateResp, m.updateErr
}

func (m *submissionServiceMock) AttachResume(ctx context.Context, id string, upload service.ResumeUpload, actor *models.JWTClaims) (*models.Submission, error) {
	m.attachCalled = true
	m.lastUpload = upload
	return m.attachResp, m.attachErr
}

func (m *submissionServiceMock) ResumeLink(ctx context.Context, id string, actor *models.JWTClaims) (*service.ResumeLink, error) {
	return m.linkResp, m.linkErr
}

func (m *submissionServiceMock) OpenResumeByToken(ctx context.Context, token string) (*os.File, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	return os.Open(os.DevNull)
}

func TestSubmissionHandlerCreate(t *testing.T) {
	mockSvc := &submissionServiceMock{
		createResp: &models.Submission{ID: "sub-1", Status: models.SubmissionPending},
	}
	handler := NewSubmissionHandler(mockSvc, 0)

	payload, _ := json.Marshal(service.CreateSubmissionRequest{
		StudentEmail:  "amira@example.com",
		StudentName:   "Amira",
		Interests:     []string{"go"},
		DesiredDomain: "Backend",
		Goals:         "grow",
	})
	c, w := roleContext(t, http.MethodPost, "/submissions", payload, nil)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestSubmissionHandlerCreateDuplicate(t *testing.T) {
	mockSvc := &submissionServiceMock{createErr: appErrors.ErrConflict}
	handler := NewSubmissionHandler(mockSvc, 0)

	payload, _ := json.Marshal(service.CreateSubmissionRequest{
		StudentEmail:  "amira@example.com",
		StudentName:   "Amira",
		Interests:     []string{"go"},
		DesiredDomain: "Backend",
		Goals:         "grow",
	})
	c, w := roleContext(t, http.MethodPost, "/submissions", payload, nil)

	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmissionHandlerListBuildsFilter(t *testing.T) {
	mockSvc := &submissionServiceMock{listTotal: 3}
	handler := NewSubmissionHandler(mockSvc, 0)

	c, w := roleContext(t, http.MethodGet, "/submissions?status=pending&search=amira&page=2&pageSize=5", nil,
		&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SubmissionPending, mockSvc.lastFilter.Status)
	assert.Equal(t, "amira", mockSvc.lastFilter.Search)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	assert.Equal(t, 5, mockSvc.lastFilter.PageSize)
}

func TestSubmissionHandlerGetNotFound(t *testing.T) {
	mockSvc := &submissionServiceMock{getErr: appErrors.ErrNotFound}
	handler := NewSubmissionHandler(mockSvc, 0)

	c, w := roleContext(t, http.MethodGet, "/submissions/missing", nil,
		&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmissionHandlerUploadResume(t *testing.T) {
	mockSvc := &submissionServiceMock{
		attachResp: &models.Submission{ID: "sub-1"},
	}
	handler := NewSubmissionHandler(mockSvc, 1024)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "cv.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	c, w := roleContext(t, http.MethodPost, "/submissions/sub-1/resume", nil,
		&models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	req, _ := http.NewRequest(http.MethodPost, "/submissions/sub-1/resume", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}

	handler.UploadResume(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.attachCalled)
	assert.Equal(t, "cv.pdf", mockSvc.lastUpload.Filename)
	assert.Equal(t, []byte("%PDF-1.4 test"), mockSvc.lastUpload.Data)
}

func TestSubmissionHandlerUploadResumeMissingFile(t *testing.T) {
	handler := NewSubmissionHandler(&submissionServiceMock{}, 1024)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.Close())

	c, w := roleContext(t, http.MethodPost, "/submissions/sub-1/resume", nil,
		&models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	req, _ := http.NewRequest(http.MethodPost, "/submissions/sub-1/resume", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}

	handler.UploadResume(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionHandlerDownloadResumeRequiresToken(t *testing.T) {
	handler := NewSubmissionHandler(&submissionServiceMock{}, 0)

	c, w := roleContext(t, http.MethodGet, "/submissions/resume/download", nil, nil)

	handler.DownloadResume(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionHandlerDownloadResumeInvalidToken(t *testing.T) {
	mockSvc := &submissionServiceMock{openErr: appErrors.ErrForbidden}
	handler := NewSubmissionHandler(mockSvc, 0)

	c, w := roleContext(t, http.MethodGet, "/submissions/resume/download?token=tampered", nil, nil)

	handler.DownloadResume(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
