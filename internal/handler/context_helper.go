package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/fpnet-io/fpnet-api/internal/middleware"
	"github.com/fpnet-io/fpnet-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
