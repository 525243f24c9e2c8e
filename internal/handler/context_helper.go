package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/opencampus/college-portal-api/internal/middleware"
	"github.com/opencampus/college-portal-api/internal/models"
	appErrors "github.com/opencampus/college-portal-api/pkg/errors"
	"github.com/opencampus/college-portal-api/pkg/response"
)

// requireClaims resolves the authenticated caller's claims, writing a 401
// envelope when the jwt middleware did not populate the context. Handlers
// must return immediately when ok is false.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok || claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
