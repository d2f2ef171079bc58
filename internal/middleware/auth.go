package middleware

import (
	"net/http"

	"github.com/NEAR-Edu/contract-registry/pkg/auth"

	"github.com/gin-gonic/gin"
)

const claimsKey = "userClaims"

// AdminAuthMiddleware validates the bearer token and requires scope. A nil
// validator means the operator API was not configured and every call is refused.
func AdminAuthMiddleware(validator auth.Validator, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "operator api not configured"})
			return
		}
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		claims, err := validator.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing scope " + scope})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Claims returns the caller authenticated by AdminAuthMiddleware.
func Claims(c *gin.Context) *auth.Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(*auth.Claims)
	return claims
}
