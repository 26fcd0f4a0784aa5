package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/konkon3660/graduationP/internal/crypto"
)

const controllerKey = "controller"

// AuthMiddleware validates control tokens. A nil manager disables auth.
// Browsers cannot set headers on WebSocket upgrades, so a token query
// parameter is accepted as well.
func AuthMiddleware(jwtManager *crypto.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtManager == nil {
			c.Next()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			c.Abort()
			return
		}

		claims, err := jwtManager.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(controllerKey, claims.Controller)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if q := c.Query("token"); q != "" {
		return q, true
	}
	return "", false
}

// GetController returns the authenticated controller name, if any.
func GetController(c *gin.Context) (string, bool) {
	v, exists := c.Get(controllerKey)
	if !exists {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}
