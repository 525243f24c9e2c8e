package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/college-portal-api/internal/models"
)

func performWithClaims(t *testing.T, claims *models.JWTClaims, roles ...models.UserRole) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if claims != nil {
		r.Use(func(c *gin.Context) {
			c.Set(ContextUserKey, claims)
		})
	}
	r.GET("/protected", RequireRoles(roles...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/protected", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRoles(t *testing.T) {
	w := performWithClaims(t, &models.JWTClaims{Role: models.RoleLibrarian}, models.RoleLibrarian)
	require.Equal(t, http.StatusOK, w.Code)

	w = performWithClaims(t, &models.JWTClaims{Role: models.RoleStudent}, models.RoleLibrarian)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Admin passes every role check.
	w = performWithClaims(t, &models.JWTClaims{Role: models.RoleAdmin}, models.RoleLibrarian)
	require.Equal(t, http.StatusOK, w.Code)

	w = performWithClaims(t, nil, models.RoleLibrarian)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
