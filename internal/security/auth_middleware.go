package security

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nl2sql-tool/pkg/response"
)

const claimsKey = "auth_claims"

// AuthMiddleware guards the generation and execution routes when auth is
// enabled.
type AuthMiddleware struct {
	jwtManager *JWTManager
}

func NewAuthMiddleware(jwtManager *JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
	}
}

// RequireAuth rejects requests without a valid bearer token.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.UnauthorizedResponse(
				err.Error(),
				getCorrelationID(c),
			))
			return
		}

		claims, err := am.jwtManager.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.UnauthorizedResponse(
				"Invalid or expired token",
				getCorrelationID(c),
			))
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// GetClaims returns the claims stored by RequireAuth.
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func getCorrelationID(c *gin.Context) string {
	if correlationID, exists := c.Get("correlation_id"); exists {
		if id, ok := correlationID.(string); ok {
			return id
		}
	}
	return ""
}
