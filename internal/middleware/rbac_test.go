package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorlink/mentorlink-api/internal/models"
)

func performRBAC(t *testing.T, claims *models.JWTClaims, paramID string, allowed ...string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/users/"+paramID, nil)
	c.Request = req
	if paramID != "" {
		c.Params = gin.Params{{Key: "id", Value: paramID}}
	}
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}

	reached := false
	RBAC(allowed...)(c)
	if !c.IsAborted() {
		reached = true
	}
	return w, reached
}

func TestRBACAllowsMatchingRole(t *testing.T) {
	_, reached := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}, "", "ADMIN")
	assert.True(t, reached)
}

func TestRBACRejectsOtherRole(t *testing.T) {
	w, reached := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, "", "ADMIN")
	assert.False(t, reached)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfMatchesOwnID(t *testing.T) {
	_, reached := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, "u1", "ADMIN", "SELF")
	assert.True(t, reached)
}

func TestRBACSelfRejectsForeignID(t *testing.T) {
	w, reached := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, "u2", "ADMIN", "SELF")
	assert.False(t, reached)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACUnauthenticated(t *testing.T) {
	w, reached := performRBAC(t, nil, "", "ADMIN")
	assert.False(t, reached)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRolesWrapsRoleList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/sessions", nil)
	c.Request = req
	c.Set(ContextUserKey, &models.JWTClaims{UserID: "m1", Role: models.RoleMentor})

	RequireRoles(models.RoleAdmin, models.RoleMentor)(c)
	assert.False(t, c.IsAborted())
}
