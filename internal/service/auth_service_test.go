package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mentorlink/mentorlink-api/internal/models"
	appErrors "github.com/mentorlink/mentorlink-api/pkg/errors"
)

type authRepoStub struct {
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
	tokens       map[string]*models.RefreshToken
	revoked      []string
	audits       []*models.AuditLog
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		usersByEmail: map[string]*models.User{},
		usersByID:    map[string]*models.User{},
		tokens:       map[string]*models.RefreshToken{},
	}
}

func (s *authRepoStub) addUser(user *models.User) {
	s.usersByEmail[user.Email] = user
	s.usersByID[user.ID] = user
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.usersByEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.usersByID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *authRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := s.usersByID[id]; ok {
		user.PasswordHash = passwordHash
		return nil
	}
	return sql.ErrNoRows
}

func (s *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

func (s *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := s.tokens[token]; ok {
		return stored, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	s.revoked = append(s.revoked, id)
	for _, token := range s.tokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (s *authRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.audits = append(s.audits, log)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "mentorlink-api",
	}
}

func seedUser(t *testing.T, repo *authRepoStub, password string, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "user-1",
		Email:        "dana@example.com",
		PasswordHash: string(hash),
		FullName:     "Dana Mentor",
		Role:         models.RoleMentor,
		Active:       active,
	}
	repo.addUser(user)
	return user
}

func TestAuthServiceLogin(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret-pass", true)
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "dana@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Len(t, repo.tokens, 1)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionLogin, repo.audits[0].Action)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret-pass", true)
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "dana@example.com",
		Password: "wrong",
	})
	assertAppError(t, err, appErrors.ErrInvalidCredentials)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(newAuthRepoStub(), nil, zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	assertAppError(t, err, appErrors.ErrInvalidCredentials)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret-pass", false)
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "dana@example.com",
		Password: "s3cret-pass",
	})
	assertAppError(t, err, appErrors.ErrInactiveAccount)
}

func TestAuthServiceValidateTokenRoundTrip(t *testing.T) {
	repo := newAuthRepoStub()
	user := seedUser(t, repo, "s3cret-pass", true)
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "dana@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleMentor, claims.Role)
	assert.Equal(t, user.Email, claims.Email)
}

func TestAuthServiceValidateTokenWrongSecret(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret-pass", true)
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "dana@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	other := testAuthConfig()
	other.AccessTokenSecret = "different-secret"
	otherSvc := NewAuthService(repo, nil, zap.NewNop(), other)

	_, err = otherSvc.ValidateToken(resp.AccessToken)
	assertAppError(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret-pass", true)
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "dana@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.Len(t, repo.revoked, 1)

	// The used token is rotated out and cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	assertAppError(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret-pass", true)
	repo.tokens["stale"] = &models.RefreshToken{
		ID:        "tok-1",
		UserID:    "user-1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	assertAppError(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret-pass", true)
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "s3cret-pass",
		NewPassword: "brand-new-pass",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "dana@example.com",
		Password: "brand-new-pass",
	})
	require.NoError(t, err)
}

func TestAuthServiceChangePasswordWrongCurrent(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret-pass", true)
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "brand-new-pass",
	})
	assertAppError(t, err, appErrors.ErrForbidden)
}

func TestAuthServiceLogout(t *testing.T) {
	repo := newAuthRepoStub()
	seedUser(t, repo, "s3cret-pass", true)
	svc := NewAuthService(repo, nil, zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "dana@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "user-1"))
	assert.Len(t, repo.revoked, 1)

	err = svc.Logout(context.Background(), login.RefreshToken, "user-2")
	assertAppError(t, err, appErrors.ErrForbidden)
}
